package vadasr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/duplexmesh/bargein/internal/audio"
	"github.com/duplexmesh/bargein/internal/enginerouter"
	"github.com/duplexmesh/bargein/internal/httputil"
	"github.com/duplexmesh/bargein/internal/metrics"
)

// ASRResult holds one transcription output, final or partial.
type ASRResult struct {
	Text         string
	IsFinal      bool
	NoSpeechProb float64
	LatencyMs    float64
}

// ASROptions customizes one transcription call.
type ASROptions struct {
	Prompt  string
	IsFinal bool
}

// Transcriber transcribes a buffer of 16 kHz mono float32 samples.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []float32, opts ASROptions) (*ASRResult, error)
}

// Router dispatches to the correct ASR backend based on engine name.
type Router struct {
	*enginerouter.Router[Transcriber]
}

// NewRouter creates an ASR router with registered backends and a fallback default.
func NewRouter(backends map[string]Transcriber, fallback string) *Router {
	return &Router{Router: enginerouter.New(backends, fallback)}
}

// Transcribe routes to the correct backend engine.
func (r *Router) Transcribe(ctx context.Context, samples []float32, engine string, opts ASROptions) (*ASRResult, error) {
	backend, err := r.Route(engine)
	if err != nil {
		return nil, err
	}
	return backend.Transcribe(ctx, samples, opts)
}

// Client sends audio to a whisper.cpp-compatible HTTP server and returns transcriptions.
type Client struct {
	url    string
	client *http.Client
}

// NewClient creates a client pointing at an ASR server URL.
func NewClient(url string, poolSize int) *Client {
	return &Client{
		url:    url,
		client: httputil.NewPooledClient(poolSize, 30*time.Second),
	}
}

// Transcribe sends float32 audio samples (16kHz mono) and returns the transcript.
func (c *Client) Transcribe(ctx context.Context, samples []float32, opts ASROptions) (*ASRResult, error) {
	start := time.Now()

	body, contentType, err := buildMultipartAudio(samples, opts.Prompt)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url+"/inference", body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.Errors.WithLabelValues("asr", "http").Inc()
		return nil, fmt.Errorf("asr request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		metrics.Errors.WithLabelValues("asr", "status").Inc()
		return nil, fmt.Errorf("asr status %d: %s", resp.StatusCode, string(respBody))
	}

	var decoded asrResponse
	if err = json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode asr response: %w", err)
	}

	latency := time.Since(start)
	metrics.StageDuration.WithLabelValues("asr").Observe(latency.Seconds())
	metrics.ASRNoSpeechProb.Observe(decoded.NoSpeechProb)

	return &ASRResult{
		Text:         decoded.Text,
		IsFinal:      opts.IsFinal,
		NoSpeechProb: decoded.NoSpeechProb,
		LatencyMs:    float64(latency.Milliseconds()),
	}, nil
}

type asrResponse struct {
	Text         string  `json:"text"`
	NoSpeechProb float64 `json:"no_speech_prob"`
}

func buildMultipartAudio(samples []float32, prompt string) (*bytes.Buffer, string, error) {
	wavData := audio.SamplesToWAV(samples, 16000)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err = part.Write(wavData); err != nil {
		return nil, "", fmt.Errorf("write wav data: %w", err)
	}
	if prompt != "" {
		if err = writer.WriteField("prompt", prompt); err != nil {
			return nil, "", fmt.Errorf("write prompt field: %w", err)
		}
	}
	if err = writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close writer: %w", err)
	}

	return &body, writer.FormDataContentType(), nil
}
