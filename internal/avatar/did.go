// Package avatar renders synthesized speech into a talking-head video
// through the D-ID talks API. Rendering is the only asynchronous stage:
// a submit call creates a server-side job, which is then polled with a
// fixed delay until it completes, fails, or the local attempt ceiling
// is exceeded.
package avatar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/LucasGB13/sttpstpp-1/internal/credentials"
	"github.com/LucasGB13/sttpstpp-1/internal/pipeline"
)

// DefaultSourceImage is the still portrait animated by the render service.
const DefaultSourceImage = "https://create-images-results.d-id.com/DefaultPresenters/Noelle_f/image.jpeg"

// JobStatus is the local view of a server-side render job's state.
type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobDone    JobStatus = "done"
	JobError   JobStatus = "error"
)

// RenderJob tracks one server-side rendering task. It is created by submit
// and mutated only by polling reads.
type RenderJob struct {
	ID          string
	Status      JobStatus
	ResultRef   string
	ErrorDetail string
}

// Config holds avatar render configuration. PollInterval and MaxPolls bound
// the wait for a remote job; past the ceiling the run fails locally while
// the remote job is left to finish (or not) on its own.
type Config struct {
	Endpoint     string        `json:"endpoint"`
	SourceURL    string        `json:"source_url"`
	Fluent       bool          `json:"fluent"`
	Stitch       bool          `json:"stitch"`
	ResultFormat string        `json:"result_format"`
	PollInterval time.Duration `json:"poll_interval"`
	MaxPolls     int           `json:"max_polls"`
	Timeout      time.Duration `json:"timeout"` // per-request HTTP timeout
}

// DefaultConfig returns sensible defaults: poll every 2s, give up after 30
// attempts (60 seconds of rendering).
func DefaultConfig() *Config {
	return &Config{
		Endpoint:     "https://api.d-id.com",
		SourceURL:    DefaultSourceImage,
		Fluent:       true,
		Stitch:       true,
		ResultFormat: "mp4",
		PollInterval: 2 * time.Second,
		MaxPolls:     30,
		Timeout:      30 * time.Second,
	}
}

// DIDClient renders avatar videos through the D-ID talks API.
type DIDClient struct {
	keys   *credentials.Store
	client *http.Client
	logger zerolog.Logger
	config *Config
}

// NewDIDClient creates an avatar render client.
func NewDIDClient(keys *credentials.Store, logger zerolog.Logger, config *Config) *DIDClient {
	if config == nil {
		config = DefaultConfig()
	}

	return &DIDClient{
		keys:   keys,
		client: &http.Client{Timeout: config.Timeout},
		logger: logger.With().Str("component", "avatar-did").Logger(),
		config: config,
	}
}

// Render submits the speech audio for rendering and polls the resulting job
// until it yields a playable video reference. States: Submitted -> Pending
// (keep polling), Done (return result), Error (fail), or local Timeout once
// MaxPolls attempts have been spent.
func (c *DIDClient) Render(ctx context.Context, audio pipeline.AudioPayload) (string, error) {
	apiKey := c.keys.Get(credentials.ProviderDID)
	if apiKey == "" {
		return "", &pipeline.MissingCredentialError{Stage: pipeline.StageRender}
	}

	jobID, err := c.submit(ctx, apiKey, audio)
	if err != nil {
		return "", err
	}
	c.logger.Info().Str("jobId", jobID).Msg("Render job submitted")

	for attempt := 1; attempt <= c.config.MaxPolls; attempt++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.config.PollInterval):
		}

		job, err := c.poll(ctx, apiKey, jobID)
		if err != nil {
			return "", err
		}

		switch job.Status {
		case JobDone:
			c.logger.Info().Str("jobId", jobID).Int("polls", attempt).Str("videoRef", job.ResultRef).Msg("Render complete")
			return job.ResultRef, nil
		case JobError:
			c.logger.Error().Str("jobId", jobID).Str("detail", job.ErrorDetail).Msg("Render job failed")
			return "", &pipeline.UpstreamError{
				Stage:  pipeline.StageRenderPoll,
				Detail: job.ErrorDetail,
			}
		}
		// Still pending; spend another attempt.
	}

	// The remote job is not cancelled; it is simply abandoned.
	c.logger.Warn().Str("jobId", jobID).Int("polls", c.config.MaxPolls).Msg("Render poll ceiling exceeded")
	return "", &pipeline.TimeoutError{Stage: pipeline.StageRender, Attempts: c.config.MaxPolls}
}

// submit posts the audio and the still-image script, returning the job id.
func (c *DIDClient) submit(ctx context.Context, apiKey string, audio pipeline.AudioPayload) (string, error) {
	script, err := json.Marshal(map[string]any{
		"source_url": c.config.SourceURL,
		"config": map[string]any{
			"fluent":        c.config.Fluent,
			"stitch":        c.config.Stitch,
			"result_format": c.config.ResultFormat,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal script: %w", err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("audio", "audio.mp3")
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(audio.Data); err != nil {
		return "", fmt.Errorf("write audio data: %w", err)
	}
	if err := writer.WriteField("script", string(script)); err != nil {
		return "", fmt.Errorf("write script field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	url := strings.TrimRight(c.config.Endpoint, "/") + "/talks"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Basic "+apiKey)
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("submit request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read submit response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		c.logger.Error().Int("status", resp.StatusCode).Str("body", string(body)).Msg("Render submit rejected")
		return "", &pipeline.UpstreamError{
			Stage:      pipeline.StageRenderSubmit,
			StatusCode: resp.StatusCode,
		}
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("parse submit response: %w", err)
	}
	if result.ID == "" {
		return "", fmt.Errorf("submit response carried no job id")
	}

	return result.ID, nil
}

// poll reads the job status once.
func (c *DIDClient) poll(ctx context.Context, apiKey, jobID string) (*RenderJob, error) {
	url := strings.TrimRight(c.config.Endpoint, "/") + "/talks/" + jobID
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Basic "+apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("poll request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		c.logger.Error().Int("status", resp.StatusCode).Str("body", string(body)).Msg("Render poll error")
		return nil, &pipeline.UpstreamError{
			Stage:      pipeline.StageRenderPoll,
			StatusCode: resp.StatusCode,
		}
	}

	var result struct {
		Status    string `json:"status"`
		ResultURL string `json:"result_url"`
		Error     struct {
			Description string `json:"description"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("parse poll response: %w", err)
	}

	job := &RenderJob{ID: jobID, ResultRef: result.ResultURL, ErrorDetail: result.Error.Description}
	switch {
	case result.Status == "done" && result.ResultURL != "":
		job.Status = JobDone
	case result.Status == "error" || result.Status == "rejected":
		job.Status = JobError
		if job.ErrorDetail == "" {
			job.ErrorDetail = "unknown render error"
		}
	default:
		// created / started / done-without-result all count as pending.
		job.Status = JobPending
	}

	return job, nil
}
