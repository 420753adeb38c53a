package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// sendAttempts bounds rate-limit retries per message.
const sendAttempts = 3

// restTimeout is the per-request timeout for REST calls.
const restTimeout = 30 * time.Second

// restClient wraps the Discord REST surface used by the channel.
type restClient struct {
	base  string
	token string
	http  *http.Client
}

func newRestClient(base, token string) *restClient {
	return &restClient{
		base:  base,
		token: token,
		http:  &http.Client{Timeout: restTimeout},
	}
}

// createMessage posts one message, honoring 429 retry_after up to
// sendAttempts tries. When replyTo is set the message references it with
// author mentions suppressed.
func (r *restClient) createMessage(ctx context.Context, channelID, content, replyTo string) error {
	body := map[string]any{"content": content}
	if replyTo != "" {
		body["message_reference"] = map[string]any{"message_id": replyTo}
		body["allowed_mentions"] = map[string]any{"replied_user": false}
	}
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/channels/%s/messages", r.base, channelID)
	for attempt := 1; attempt <= sendAttempts; attempt++ {
		status, respBody, err := r.post(ctx, url, data)
		if err != nil {
			return err
		}

		if status == http.StatusTooManyRequests {
			retryAfter := parseRetryAfter(respBody)
			slog.Warn("discord rate limited",
				"channel_id", channelID,
				"retry_after_s", retryAfter.Seconds(),
				"attempt", attempt,
			)
			if attempt == sendAttempts {
				break
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryAfter):
			}
			continue
		}

		if status >= 200 && status < 300 {
			return nil
		}
		return fmt.Errorf("discord api status %d: %s", status, truncateBody(respBody))
	}

	return fmt.Errorf("discord send dropped after %d rate-limited attempts", sendAttempts)
}

// triggerTyping fires the typing indicator for a conversation.
func (r *restClient) triggerTyping(ctx context.Context, channelID string) error {
	url := fmt.Sprintf("%s/channels/%s/typing", r.base, channelID)
	status, body, err := r.post(ctx, url, nil)
	if err != nil {
		return err
	}
	if status >= 300 {
		return fmt.Errorf("discord typing status %d: %s", status, truncateBody(body))
	}
	return nil
}

func (r *restClient) post(ctx context.Context, url string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bot "+r.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	return resp.StatusCode, respBody, nil
}

// parseRetryAfter reads the retry_after seconds from a 429 body.
func parseRetryAfter(body []byte) time.Duration {
	var rl struct {
		RetryAfter float64 `json:"retry_after"`
	}
	if err := json.Unmarshal(body, &rl); err != nil || rl.RetryAfter <= 0 {
		return time.Second
	}
	return time.Duration(rl.RetryAfter * float64(time.Second))
}

func truncateBody(body []byte) string {
	const max = 200
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
