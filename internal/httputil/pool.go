// Package httputil provides the pooled HTTP transport shared by the ASR,
// LLM, and TTS model-adapter clients that speak HTTP to their black-box
// backends (spec §6.4).
package httputil

import (
	"net/http"
	"time"
)

// NewPooledClient creates an http.Client with connection pooling and a tuned transport.
func NewPooledClient(poolSize int, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:          poolSize,
			MaxIdleConnsPerHost:   poolSize,
			IdleConnTimeout:       90 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
			ForceAttemptHTTP2:     true,
		},
	}
}
