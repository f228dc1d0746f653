package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"governance-backend/pkg/logger"
)

const defaultTelegramAPI = "https://api.telegram.org"

// TelegramSender Telegram机器人消息发送器
type TelegramSender struct {
	client  *http.Client
	baseURL string
}

// NewTelegramSender 创建Telegram发送器
func NewTelegramSender(timeout time.Duration) *TelegramSender {
	return &TelegramSender{
		client:  &http.Client{Timeout: timeout},
		baseURL: defaultTelegramAPI,
	}
}

// WithBaseURL 替换API地址
func (s *TelegramSender) WithBaseURL(baseURL string) *TelegramSender {
	s.baseURL = baseURL
	return s
}

type telegramMessage struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// SendMessage 发送文本消息
func (s *TelegramSender) SendMessage(ctx context.Context, botToken, chatID, message string) error {
	payload, err := json.Marshal(telegramMessage{
		ChatID:                chatID,
		Text:                  message,
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal telegram message: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		logger.Error("SendTelegramMessage Error: ", err, "chat_id", chatID)
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var result telegramResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("telegram api returned status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK || !result.OK {
		return fmt.Errorf("telegram api error (status %d): %s", resp.StatusCode, result.Description)
	}
	return nil
}
