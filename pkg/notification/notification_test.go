package notification

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSign(t *testing.T) {
	sign, err := Sign(1599360473, "secret")
	require.NoError(t, err)

	h := hmac.New(sha256.New, []byte("1599360473\nsecret"))
	want := base64.StdEncoding.EncodeToString(h.Sum(nil))
	assert.Equal(t, want, sign)
}

func TestWebhookSender_SignedMessage(t *testing.T) {
	var got webhookMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"code":0,"msg":"success"}`))
	}))
	defer srv.Close()

	s := NewLarkSender(time.Second)
	s.now = func() time.Time { return time.Unix(1700000000, 0) }
	require.NoError(t, s.SendMessage(context.Background(), srv.URL, "s3cret", "hello"))

	assert.Equal(t, "text", got.MsgType)
	assert.Equal(t, "hello", got.Content.Text)
	assert.Equal(t, "1700000000", got.Timestamp)
	wantSign, _ := Sign(1700000000, "s3cret")
	assert.Equal(t, wantSign, got.Sign)
}

func TestWebhookSender_Unsigned(t *testing.T) {
	var raw map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		_, _ = w.Write([]byte(`{"code":0}`))
	}))
	defer srv.Close()

	require.NoError(t, NewFeishuSender(time.Second).SendMessage(context.Background(), srv.URL, "", "hi"))
	_, hasSign := raw["sign"]
	assert.False(t, hasSign)
}

func TestWebhookSender_ErrorCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":19021,"msg":"sign match fail"}`))
	}))
	defer srv.Close()

	err := NewFeishuSender(time.Second).SendMessage(context.Background(), srv.URL, "x", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sign match fail")
}

func TestTelegramSender(t *testing.T) {
	var path string
	var got telegramMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		if got.ChatID == "bad" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	s := NewTelegramSender(time.Second).WithBaseURL(srv.URL)
	require.NoError(t, s.SendMessage(context.Background(), "123:abc", "42", "alert"))
	assert.Equal(t, "/bot123:abc/sendMessage", path)
	assert.Equal(t, "42", got.ChatID)
	assert.Equal(t, "alert", got.Text)

	err := s.SendMessage(context.Background(), "123:abc", "bad", "alert")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestRenderAlert(t *testing.T) {
	body, err := RenderAlert(AlertEmail{Title: "Emergency <on>", Body: "line1\nline2", Emergency: true})
	require.NoError(t, err)
	assert.Contains(t, body, "#f44336")
	assert.Contains(t, body, "Emergency &lt;on&gt;")
	assert.True(t, strings.Contains(body, "line1\nline2"))
}
