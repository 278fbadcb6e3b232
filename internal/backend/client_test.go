package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specterwire/anomscan/internal/healing"
)

func newChatServer(t *testing.T, status int, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/chat/completions":
			if status != http.StatusOK {
				w.WriteHeader(status)
				_, _ = w.Write([]byte(`{"error":"scripted failure"}`))
				return
			}
			resp := map[string]any{
				"choices": []map[string]any{
					{"message": map[string]string{"content": content}},
				},
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(resp)
		case "/models":
			if status != http.StatusOK {
				w.WriteHeader(status)
				return
			}
			_, _ = w.Write([]byte(`{"data":[]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestHTTPClientSubmitAnalysis(t *testing.T) {
	verdict := `{"anomaly_score":0.8,"summary":"obfuscated loader","security_concerns":["eval"],"obfuscation_detected":true}`
	srv := newChatServer(t, http.StatusOK, verdict)
	defer srv.Close()

	client, err := NewHTTPClient(ClientConfig{APIKey: "test-key", APIBase: srv.URL})
	require.NoError(t, err)

	a, err := client.SubmitAnalysis(context.Background(), "/tmp/x.js", []byte("eval(atob('...'))"))
	require.NoError(t, err)
	assert.Equal(t, MethodOnline, a.Method)
	assert.Equal(t, 0.8, a.AnomalyScore)
	assert.Equal(t, "obfuscated loader", a.Summary)
	assert.Equal(t, []string{"eval"}, a.Concerns)
	assert.True(t, a.Obfuscated)
}

func TestHTTPClientTypedFailures(t *testing.T) {
	tests := []struct {
		status int
		want   healing.Kind
	}{
		{429, healing.KindRateLimit},
		{401, healing.KindTokenError},
		{500, healing.KindServerError},
		{503, healing.KindServerError},
	}

	for _, tt := range tests {
		srv := newChatServer(t, tt.status, "")
		client, err := NewHTTPClient(ClientConfig{APIKey: "test-key", APIBase: srv.URL})
		require.NoError(t, err)

		_, err = client.SubmitAnalysis(context.Background(), "/tmp/x", []byte("data"))
		require.Error(t, err)

		var failure *healing.Failure
		require.ErrorAs(t, err, &failure, "status %d must yield a typed failure", tt.status)
		assert.Equal(t, tt.status, failure.Status)
		assert.Equal(t, tt.want, healing.Classify(err))
		srv.Close()
	}
}

func TestHTTPClientProbe(t *testing.T) {
	srv := newChatServer(t, http.StatusOK, "")
	defer srv.Close()

	client, err := NewHTTPClient(ClientConfig{APIKey: "test-key", APIBase: srv.URL})
	require.NoError(t, err)
	assert.NoError(t, client.Probe(context.Background()))

	bad := newChatServer(t, http.StatusUnauthorized, "")
	defer bad.Close()
	client.SetBaseURL(bad.URL)

	err = client.Probe(context.Background())
	var failure *healing.Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, http.StatusUnauthorized, failure.Status)
}

func TestHTTPClientRequiresKey(t *testing.T) {
	_, err := NewHTTPClient(ClientConfig{})
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestParseVerdict(t *testing.T) {
	t.Run("clamps out of range scores", func(t *testing.T) {
		a := parseVerdict(`{"anomaly_score":3.5}`)
		assert.Equal(t, 1.0, a.AnomalyScore)

		a = parseVerdict(`{"anomaly_score":-1}`)
		assert.Equal(t, 0.0, a.AnomalyScore)
	})

	t.Run("unparseable content becomes a neutral summary", func(t *testing.T) {
		a := parseVerdict("the model rambled instead of emitting JSON")
		assert.Equal(t, NeutralScore, a.AnomalyScore)
		assert.Contains(t, a.Summary, "rambled")
		assert.False(t, a.Failed())
	})
}
