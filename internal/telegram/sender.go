// Package telegram is the chat surface: the delivery channel for
// reminders and the long-polling bot that translates chat commands into
// core operations.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/din98/family-tasks/internal/model"
)

const defaultAPIBase = "https://api.telegram.org"

// Sender sends messages via the Telegram Bot API. It is the delivery
// channel: one call per recipient, failures carry no retry guarantee.
type Sender struct {
	botToken string
	baseURL  string
	client   *http.Client
}

// NewSender creates a sender for the given bot token.
func NewSender(botToken string) *Sender {
	return &Sender{
		botToken: botToken,
		baseURL:  defaultAPIBase,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

// SetBaseURL overrides the Bot API base URL. Used by tests.
func (s *Sender) SetBaseURL(u string) {
	s.baseURL = u
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
}

// Send delivers one plain-text message to one recipient chat.
func (s *Sender) Send(ctx context.Context, recipient model.UserID, text string) error {
	payload := map[string]interface{}{
		"chat_id": int64(recipient),
		"text":    text,
	}
	_, err := s.call(ctx, "sendMessage", payload)
	return err
}

// SendWithMarkup sends a message with a reply markup (e.g. an inline
// keyboard opening the mini app).
func (s *Sender) SendWithMarkup(ctx context.Context, recipient model.UserID, text string, markup interface{}) error {
	payload := map[string]interface{}{
		"chat_id":      int64(recipient),
		"text":         text,
		"reply_markup": markup,
	}
	_, err := s.call(ctx, "sendMessage", payload)
	return err
}

// call makes one Bot API request and unwraps the ok-envelope.
func (s *Sender) call(ctx context.Context, method string, payload interface{}) (json.RawMessage, error) {
	url := fmt.Sprintf("%s/bot%s/%s", s.baseURL, s.botToken, method)

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", method, err)
	}

	var envelope apiResponse
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse %s response: %w", method, err)
	}
	if !envelope.OK {
		return nil, fmt.Errorf("telegram API error on %s: %s", method, envelope.Description)
	}
	return envelope.Result, nil
}
