package google_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellmind/agentcore/runtime/gateway/providers/google"
	"github.com/cellmind/agentcore/runtime/model"
)

func TestGenerateSendsKeyHeaderAndParsesResponse(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-goog-api-key")
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"hi"}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":2,"candidatesTokenCount":1,"totalTokenCount":3}}`))
	}))
	defer srv.Close()

	c, err := google.New(google.Config{
		Keys:         []string{"key-1"},
		BaseURL:      srv.URL,
		DefaultModel: "gemini-1.5-pro",
	})
	require.NoError(t, err)

	resp, err := c.Generate(context.Background(), &model.Request{
		Messages: []model.Message{{Role: model.RoleUser, Content: "hello"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hi", resp.Text)
	assert.Equal(t, "STOP", resp.StopReason)
	assert.Equal(t, 3, resp.Usage.TotalTokens)
	assert.Equal(t, "key-1", gotKey)
}

func TestGenerateRotatesKeyOnRateLimit(t *testing.T) {
	var keysUsed []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("x-goog-api-key")
		keysUsed = append(keysUsed, key)
		if key == "key-1" {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"ok"}]},"finishReason":"STOP"}]}`))
	}))
	defer srv.Close()

	c, err := google.New(google.Config{
		Keys:         []string{"key-1", "key-2"},
		Cooldown:     time.Minute,
		BaseURL:      srv.URL,
		DefaultModel: "gemini-1.5-pro",
	})
	require.NoError(t, err)

	resp, err := c.Generate(context.Background(), &model.Request{
		Messages: []model.Message{{Role: model.RoleUser, Content: "hello"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, []string{"key-1", "key-2"}, keysUsed)
}

func TestGenerateRequiresMessages(t *testing.T) {
	c, err := google.New(google.Config{Keys: []string{"key-1"}, DefaultModel: "gemini-1.5-pro"})
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), &model.Request{})
	assert.Error(t, err)
}
