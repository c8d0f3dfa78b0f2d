package httpclient

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSaferClientDefaults(t *testing.T) {
	client := NewSaferClient(30 * time.Second)

	assert.Equal(t, 30*time.Second, client.Timeout)
	assert.Equal(t, 10, client.maxRedirects)
	assert.True(t, client.blockPrivateIP)
	assert.NotNil(t, client.Transport)
}

func TestValidateURL(t *testing.T) {
	client := NewSaferClient(time.Second)

	tests := []struct {
		name        string
		url         string
		errContains string
	}{
		{name: "https", url: "https://scheduler.example.com/api/jobs"},
		{name: "http", url: "http://example.com"},
		{name: "file scheme", url: "file:///etc/passwd", errContains: "scheme"},
		{name: "ftp scheme", url: "ftp://example.com", errContains: "scheme"},
		{name: "localhost", url: "http://localhost:8080", errContains: "localhost"},
		{name: "dot localhost", url: "http://api.localhost", errContains: "localhost"},
		{name: "loopback", url: "http://127.0.0.1/", errContains: "private"},
		{name: "rfc1918", url: "http://10.1.2.3/", errContains: "private"},
		{name: "metadata", url: "http://169.254.169.254/latest", errContains: "private"},
		{name: "ipv6 loopback", url: "http://[::1]/", errContains: "private"},
		{name: "ipv6 unique local", url: "http://[fd00::1]/", errContains: "private"},
		{name: "userinfo", url: "http://evil.com@localhost/", errContains: "userinfo"},
		{name: "no host", url: "http:///path", errContains: "hostname"},
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

func TestAllowPrivateHosts(t *testing.T) {
	client := New(time.Second, Options{AllowPrivateHosts: true})

	_, err := client.ValidateURL("http://127.0.0.1:9000/submit")
	assert.NoError(t, err)

	_, err = client.ValidateURL("gopher://127.0.0.1")
	assert.Error(t, err, "scheme policy still applies")
}

func TestIsPrivateIP(t *testing.T) {
	private := []string{"10.0.0.1", "172.16.5.4", "192.168.1.1", "127.0.0.1", "0.0.0.0", "224.0.0.1", "::1", "fe80::1", "fd12::1", "2001:db8::1", "::ffff:10.0.0.1"}
	public := []string{"8.8.8.8", "1.1.1.1", "172.32.0.1", "2606:4700:4700::1111"}

	for _, s := range private {
		assert.True(t, isPrivateIP(net.ParseIP(s)), s)
	}
	for _, s := range public {
		assert.False(t, isPrivateIP(net.ParseIP(s)), s)
	}
}

func TestDoBlocksPrivateTarget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	_, err = NewSaferClient(time.Second).Do(req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SSRF")

	resp, err := New(time.Second, Options{AllowPrivateHosts: true}).Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRedirectLimit(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, srv.URL+"/again", http.StatusFound)
	}))
	defer srv.Close()

	client := New(time.Second, Options{AllowPrivateHosts: true, MaxRedirects: 2})
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	_, err = client.Do(req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stopped after 2 redirects")
}
