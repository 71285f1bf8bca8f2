package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendMessage(t *testing.T) {
	var gotPath string
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "123:abc", "HTML", time.Second)
	resp, err := c.SendMessage(context.Background(), "@channel", "سلام")
	require.NoError(t, err)
	assert.True(t, resp.OK)
	assert.Equal(t, "/bot123:abc/sendMessage", gotPath)
	assert.Equal(t, map[string]any{"chat_id": "@channel", "text": "سلام", "parse_mode": "HTML"}, got)
}

func TestSendStickerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":429,"description":"Too Many Requests","parameters":{"retry_after":3}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "t", "", time.Second)
	resp, err := c.SendSticker(context.Background(), "1", "sticker-id")
	require.NoError(t, err)
	assert.False(t, resp.OK)
	assert.Equal(t, 429, resp.ErrorCode)
	require.NotNil(t, resp.Parameters)
	assert.Equal(t, 3, resp.Parameters.RetryAfter)
}

func TestEmptyToken(t *testing.T) {
	_, err := NewClient("", "", "", 0).SendMessage(context.Background(), "1", "x")
	assert.Error(t, err)
}

func TestTransportErrorRedactsToken(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "secret-token", "", 200*time.Millisecond)
	_, err := c.SendMessage(context.Background(), "1", "x")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret-token")
}
