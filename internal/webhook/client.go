// Package webhook предоставляет клиент доставки оповещений во внешний webhook.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Client инкапсулирует HTTP-взаимодействие с приёмником оповещений.
type Client struct {
	url        string
	httpClient *http.Client
}

// Payload описывает тело запроса с оповещениями.
type Payload struct {
	GeneratedAt time.Time `json:"generated_at"`
	Messages    []string  `json:"messages"`
}

// NewClient создаёт клиент для отправки оповещений по указанному адресу.
func NewClient(url string) *Client {
	return &Client{
		url: strings.TrimRight(url, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Send отправляет оповещения. При ответе 429 возвращает код ответа и значение Retry-After без ошибки.
func (c *Client) Send(ctx context.Context, p Payload) (int, time.Duration, error) {
	if c == nil || c.url == "" {
		return 0, 0, fmt.Errorf("webhook client not configured")
	}

	url := c.url
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "http://" + url
	}

	body, err := json.Marshal(p)
	if err != nil {
		return 0, 0, fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := time.Duration(0)
		if v := resp.Header.Get("Retry-After"); v != "" {
			if seconds, parseErr := strconv.Atoi(v); parseErr == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		return resp.StatusCode, retryAfter, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, 0, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	return resp.StatusCode, 0, nil
}
