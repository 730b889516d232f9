// Package pipeline turns one captured audio clip into a talking-avatar video
// reply: transcription, dialogue, speech synthesis, and avatar rendering run
// strictly in sequence, each against an external network service.
package pipeline

// AudioPayload is an opaque audio blob with its declared MIME type. It is
// immutable once created; ownership transfers from stage to stage and the
// payload is discarded when the run completes.
type AudioPayload struct {
	Data []byte
	MIME string
}

// Result is the terminal artifact of one successful pipeline run.
type Result struct {
	Transcription string `json:"transcription"`
	Reply         string `json:"reply"`
	VideoRef      string `json:"videoRef"`
}
