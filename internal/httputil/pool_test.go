package httputil

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPooledClientConfiguresTimeoutAndTransport(t *testing.T) {
	c := NewPooledClient(8, 15*time.Second)
	assert.Equal(t, 15*time.Second, c.Timeout)

	transport, ok := c.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, 8, transport.MaxIdleConns)
	assert.Equal(t, 8, transport.MaxIdleConnsPerHost)
	assert.True(t, transport.ForceAttemptHTTP2)
}
