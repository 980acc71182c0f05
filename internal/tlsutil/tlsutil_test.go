package tlsutil

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientConfig(t *testing.T) {
	cfg := ClientConfig("search.internal")
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	assert.Equal(t, "search.internal", cfg.ServerName)
	assert.Len(t, cfg.CipherSuites, len(aeadSuites))

	// 每次返回独立副本
	cfg.CipherSuites[0] = 0
	assert.NotEqual(t, uint16(0), ClientConfig("").CipherSuites[0])
}

func TestTransport(t *testing.T) {
	tr := Transport(0)
	require.NotNil(t, tr.TLSClientConfig)
	assert.Equal(t, 8, tr.MaxIdleConnsPerHost)
	assert.True(t, tr.ForceAttemptHTTP2)
	assert.Equal(t, 32, Transport(32).MaxIdleConnsPerHost)
}

func TestHTTPClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := HTTPClient(2 * time.Second)
	assert.Equal(t, 2*time.Second, client.Timeout)

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}
