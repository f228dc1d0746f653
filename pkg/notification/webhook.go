package notification

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"governance-backend/pkg/logger"
)

// WebhookSender Lark/Feishu自定义机器人发送器，两者协议一致
type WebhookSender struct {
	name   string
	client *http.Client
	now    func() time.Time
}

// NewLarkSender 创建Lark发送器
func NewLarkSender(timeout time.Duration) *WebhookSender {
	return newWebhookSender("lark", timeout)
}

// NewFeishuSender 创建Feishu发送器
func NewFeishuSender(timeout time.Duration) *WebhookSender {
	return newWebhookSender("feishu", timeout)
}

func newWebhookSender(name string, timeout time.Duration) *WebhookSender {
	return &WebhookSender{
		name:   name,
		client: &http.Client{Timeout: timeout},
		now:    time.Now,
	}
}

type webhookText struct {
	Text string `json:"text"`
}

type webhookMessage struct {
	Timestamp string      `json:"timestamp,omitempty"`
	Sign      string      `json:"sign,omitempty"`
	MsgType   string      `json:"msg_type"`
	Content   webhookText `json:"content"`
}

type webhookResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// Sign 机器人签名：以 timestamp+"\n"+secret 为密钥对空串做HmacSHA256
func Sign(timestamp int64, secret string) (string, error) {
	key := strconv.FormatInt(timestamp, 10) + "\n" + secret
	h := hmac.New(sha256.New, []byte(key))
	if _, err := h.Write(nil); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(h.Sum(nil)), nil
}

// SendMessage 发送文本消息，secret为空时不签名
func (s *WebhookSender) SendMessage(ctx context.Context, webhookURL, secret, message string) error {
	msg := webhookMessage{
		MsgType: "text",
		Content: webhookText{Text: message},
	}
	if secret != "" {
		ts := s.now().Unix()
		sign, err := Sign(ts, secret)
		if err != nil {
			return fmt.Errorf("failed to sign %s message: %w", s.name, err)
		}
		msg.Timestamp = strconv.FormatInt(ts, 10)
		msg.Sign = sign
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal %s message: %w", s.name, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", s.name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		logger.Error("SendWebhookMessage Error: ", err, "channel", s.name)
		return fmt.Errorf("failed to send %s message: %w", s.name, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s webhook returned status %d", s.name, resp.StatusCode)
	}
	var result webhookResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", s.name, err)
	}
	if result.Code != 0 {
		return fmt.Errorf("%s webhook error %d: %s", s.name, result.Code, result.Msg)
	}
	return nil
}
