package httpclient

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBrowserClient(t *testing.T) {
	var agents []string
	var cookies []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agents = append(agents, r.UserAgent())
		if c, err := r.Cookie("session"); err == nil {
			cookies = append(cookies, c.Value)
		}
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc", Path: "/"})
	}))
	defer server.Close()

	client, err := NewBrowserClient(5*time.Second, "test-agent/1.0")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		resp, err := client.Get(server.URL)
		require.NoError(t, err)
		resp.Body.Close()
	}

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)
	req.Header.Set("User-Agent", "explicit")
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, []string{"test-agent/1.0", "test-agent/1.0", "explicit"}, agents)
	assert.Equal(t, []string{"abc", "abc"}, cookies)
}

func TestNewDefaultHTTPClient(t *testing.T) {
	client := NewDefaultHTTPClient(3 * time.Second)
	assert.Equal(t, 3*time.Second, client.Timeout)
	assert.Nil(t, client.Jar)
}
