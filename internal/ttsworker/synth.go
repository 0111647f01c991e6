package ttsworker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/duplexmesh/bargein/internal/audio"
	"github.com/duplexmesh/bargein/internal/enginerouter"
	"github.com/duplexmesh/bargein/internal/httputil"
	"github.com/duplexmesh/bargein/internal/metrics"
)

// SynthOptions customizes one synthesis call.
type SynthOptions struct {
	VoiceID string
}

// SynthResult holds one sentence's synthesized audio.
type SynthResult struct {
	Samples    []float32
	SampleRate int
	LatencyMs  float64
}

// Synthesizer converts text to PCM audio for one engine backend.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, opts SynthOptions) (*SynthResult, error)
}

// Router dispatches to the correct TTS backend by engine name.
type Router struct {
	*enginerouter.Router[Synthesizer]
}

// NewRouter creates a TTS router with registered backends and a fallback default.
func NewRouter(backends map[string]Synthesizer, fallback string) *Router {
	return &Router{Router: enginerouter.New(backends, fallback)}
}

// Synthesize routes to the correct backend engine.
func (r *Router) Synthesize(ctx context.Context, text, engine string, opts SynthOptions) (*SynthResult, error) {
	backend, err := r.Route(engine)
	if err != nil {
		return nil, err
	}
	return backend.Synthesize(ctx, text, opts)
}

// Client synthesizes speech via a Piper-compatible HTTP API, returning WAV audio.
type Client struct {
	url    string
	client *http.Client
}

// NewClient creates a TTS client pointing at a synthesis server URL.
func NewClient(url string, poolSize int) *Client {
	return &Client{
		url:    url,
		client: httputil.NewPooledClient(poolSize, 30*time.Second),
	}
}

// Synthesize converts text to speech and decodes the response WAV into PCM samples.
func (c *Client) Synthesize(ctx context.Context, text string, opts SynthOptions) (*SynthResult, error) {
	start := time.Now()

	reqBody, err := json.Marshal(synthesizeRequest{Text: text, Voice: opts.VoiceID})
	if err != nil {
		return nil, fmt.Errorf("marshal tts request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url+"/synthesize", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.Errors.WithLabelValues("tts", "http").Inc()
		return nil, fmt.Errorf("tts request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.Errors.WithLabelValues("tts", "status").Inc()
		return nil, fmt.Errorf("tts status %d", resp.StatusCode)
	}

	wavData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read tts response: %w", err)
	}

	samples, sampleRate, err := audio.DecodeWAV(wavData)
	if err != nil {
		return nil, fmt.Errorf("decode tts wav: %w", err)
	}

	latency := time.Since(start)
	metrics.StageDuration.WithLabelValues("tts").Observe(latency.Seconds())

	return &SynthResult{Samples: samples, SampleRate: sampleRate, LatencyMs: float64(latency.Milliseconds())}, nil
}

type synthesizeRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}
