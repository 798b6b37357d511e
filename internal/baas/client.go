package baas

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/johnyarcher2100/chatwithyou-sync/internal/config"
	"github.com/johnyarcher2100/chatwithyou-sync/internal/store"
	"go.uber.org/zap"
)

// APIError is returned for non-2xx responses from the backend REST API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend API error %d: %s", e.Status, e.Message)
}

// Client talks to the hosted backend's row store over REST. All writes go
// through table endpoints; the backend echoes created rows back, including
// the client_id we tag outgoing messages with.
type Client struct {
	baseURL string
	anonKey string
	token   string
	userID  string
	httpc   *http.Client
	logger  *zap.Logger
}

// NewClient creates a REST client for the configured backend.
func NewClient(cfg config.Backend, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		anonKey: cfg.AnonKey,
		token:   cfg.AccessToken,
		userID:  cfg.UserID,
		httpc:   &http.Client{Timeout: 15 * time.Second},
		logger:  logger,
	}
}

// SendMessage durably stores an outgoing message on the backend and returns
// the stored record. The outbox entry's client id travels with the row so
// the realtime echo can be matched exactly.
func (c *Client) SendMessage(ctx context.Context, m *store.OutboxMessage) (*store.Message, error) {
	payload := map[string]any{
		"chat_id":         m.ChatID,
		"sender_id":       m.UserID,
		"content":         m.Content,
		"is_ai_generated": m.IsAIGenerated,
		"client_id":       m.ClientMsgID,
	}
	if m.MediaURL != "" {
		payload["media_url"] = m.MediaURL
	}

	var rows []MessageRow
	if err := c.do(ctx, http.MethodPost, "/rest/v1/messages", nil, payload, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &APIError{Status: http.StatusInternalServerError, Message: "insert returned no row"}
	}
	msg := rows[0].ToStoreMessage()
	msg.FromMe = true
	return msg, nil
}

// FetchMessages returns confirmed messages for a chat, newest first.
func (c *Client) FetchMessages(ctx context.Context, chatID string, beforeMs int64, limit int) ([]store.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	q := url.Values{}
	q.Set("chat_id", "eq."+chatID)
	q.Set("order", "created_at.desc")
	q.Set("limit", strconv.Itoa(limit))
	if beforeMs > 0 {
		q.Set("created_at", "lt."+time.UnixMilli(beforeMs).UTC().Format(time.RFC3339Nano))
	}

	var rows []MessageRow
	if err := c.do(ctx, http.MethodGet, "/rest/v1/messages", q, nil, &rows); err != nil {
		return nil, err
	}
	msgs := make([]store.Message, 0, len(rows))
	for i := range rows {
		msg := rows[i].ToStoreMessage()
		msg.FromMe = rows[i].SenderID == c.userID
		msgs = append(msgs, *msg)
	}
	return msgs, nil
}

// GetProfile fetches a user profile by id, or nil if absent.
func (c *Client) GetProfile(ctx context.Context, userID string) (*ProfileRow, error) {
	q := url.Values{}
	q.Set("id", "eq."+userID)
	q.Set("limit", "1")

	var rows []ProfileRow
	if err := c.do(ctx, http.MethodGet, "/rest/v1/profiles", q, nil, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// GetChat fetches chat metadata by id, or nil if absent.
func (c *Client) GetChat(ctx context.Context, chatID string) (*ChatRow, error) {
	q := url.Values{}
	q.Set("id", "eq."+chatID)
	q.Set("limit", "1")

	var rows []ChatRow
	if err := c.do(ctx, http.MethodGet, "/rest/v1/chats", q, nil, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("apikey", c.anonKey)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Prefer", "return=representation")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
