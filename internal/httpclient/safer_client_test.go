package httpclient

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teranos/ghostwrite/internal/util"
)

func TestNewSaferClient(t *testing.T) {
	client := NewSaferClient(30 * time.Second)
	require.NotNil(t, client)
	assert.Equal(t, 30*time.Second, client.Timeout)
	assert.Equal(t, 10, client.maxRedirects)
	assert.True(t, client.blockPrivateIP)
}

func TestValidateURL(t *testing.T) {
	client := NewSaferClient(time.Second)

	tests := []struct {
		name        string
		url         string
		errContains string
	}{
		{"provider endpoint", "https://openrouter.ai/api/v1/chat/completions", ""},
		{"plain http", "http://example.com", ""},
		{"file scheme", "file:///etc/passwd", "scheme"},
		{"ftp scheme", "ftp://example.com", "scheme"},
		{"localhost", "http://localhost/admin", "localhost"},
		{"localhost subdomain", "http://api.localhost", "localhost"},
		{"loopback ip", "http://127.0.0.1:8080", "private"},
		{"rfc1918", "http://10.0.0.5", "private"},
		{"link local metadata", "http://169.254.169.254/latest", "private"},
		{"ipv6 loopback", "http://[::1]/", "private"},
		{"userinfo confusion", "http://evil.com@localhost/", "userinfo"},
		{"missing host", "http:///path", "hostname"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.ValidateURL(tt.url)
			if tt.errContains == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestIsPrivateIP(t *testing.T) {
	private := []string{"10.1.2.3", "172.16.0.1", "192.168.1.1", "127.0.0.1", "0.0.0.0", "224.0.0.1", "::1", "fe80::1", "fd00::1", "2001:db8::1"}
	public := []string{"8.8.8.8", "1.1.1.1", "2606:4700:4700::1111"}

	for _, s := range private {
		assert.True(t, isPrivateIP(net.ParseIP(s)), s)
	}
	for _, s := range public {
		assert.False(t, isPrivateIP(net.ParseIP(s)), s)
	}
}

func TestRedirectToPrivateBlocked(t *testing.T) {
	redirector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://localhost/secret", http.StatusFound)
	}))
	defer redirector.Close()

	// Only the redirect hop is validated against the private-IP policy
	client := WrapClient(&http.Client{Timeout: time.Second})
	client.blockPrivateIP = true
	client.CheckRedirect = NewSaferClient(time.Second).CheckRedirect

	req, err := http.NewRequest(http.MethodGet, redirector.URL, nil)
	require.NoError(t, err)
	_, err = client.Client.Do(req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redirect blocked")
}

func TestSaferClientOptions(t *testing.T) {
	client := NewSaferClientWithOptions(time.Second, SaferClientOptions{
		AllowedSchemes: []string{"https"},
		MaxRedirects:   util.Ptr(2),
		BlockPrivateIP: util.Ptr(false),
	})

	assert.Equal(t, 2, client.maxRedirects)
	assert.False(t, client.blockPrivateIP)

	_, err := client.ValidateURL("http://example.com")
	assert.Error(t, err)

	// Local inference servers are reachable when blocking is off
	_, err = client.ValidateURL("https://localhost:11434")
	assert.NoError(t, err)
}

func TestDoMethod(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer server.Close()

	t.Run("blocked by default", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, server.URL, nil)
		require.NoError(t, err)
		_, err = NewSaferClient(time.Second).Do(req)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "SSRF")
	})

	t.Run("wrapped client reaches test server", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, server.URL, nil)
		require.NoError(t, err)
		resp, err := WrapClient(server.Client()).Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusTeapot, resp.StatusCode)
	})
}
