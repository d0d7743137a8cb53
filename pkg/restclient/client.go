// Package restclient talks to a running gateway's REST channel.
package restclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"chatwire/pkg/channel"
)

const (
	defaultChannelPath = "/webhooks/rest"
	maxErrorBody       = 4 << 10
	maxLineBytes       = 1 << 20
)

// Client posts user messages to the REST channel.
type Client struct {
	baseURL     string
	channelPath string
	httpClient  *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithChannelPath sets where the REST channel is mounted, "/webhooks/rest" by default.
func WithChannelPath(path string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimRight(strings.TrimSpace(path), "/"); trimmed != "" {
			c.channelPath = "/" + strings.TrimLeft(trimmed, "/")
		}
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		channelPath: defaultChannelPath,
		httpClient:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Send posts text in batch mode and returns every fragment of the reply.
func (c *Client) Send(ctx context.Context, senderID, text string) ([]channel.Fragment, error) {
	resp, err := c.post(ctx, senderID, text, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var fragments []channel.Fragment
	if err := json.NewDecoder(resp.Body).Decode(&fragments); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}

	return fragments, nil
}

// Stream posts text in streaming mode and calls fn for each fragment as it arrives.
// An error returned by fn stops reading and is returned.
func (c *Client) Stream(ctx context.Context, senderID, text string, fn func(channel.Fragment) error) error {
	resp, err := c.post(ctx, senderID, text, true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64<<10), maxLineBytes)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var fragment channel.Fragment
		if err := json.Unmarshal(line, &fragment); err != nil {
			return fmt.Errorf("decode stream fragment: %w", err)
		}
		if err := fn(fragment); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}

	return nil
}

// Health checks the channel's health route.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.channelPath+"/", nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode health: %w", err)
	}
	if body.Status != "ok" {
		return fmt.Errorf("channel status %q", body.Status)
	}

	return nil
}

func (c *Client) post(ctx context.Context, senderID, text string, stream bool) (*http.Response, error) {
	if c.baseURL == "" {
		return nil, errors.New("gateway url is required")
	}

	payload, err := json.Marshal(map[string]string{"sender": senderID, "message": text})
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}

	endpoint := c.baseURL + c.channelPath + "/webhook"
	if stream {
		endpoint += "?" + url.Values{"stream": {"true"}}.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}

	return resp, nil
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return fmt.Errorf("gateway returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
}
