// Package gateway adapts a business messaging gateway to the
// conversation engine. Inbound messages arrive on a webhook; outbound
// messages go through the gateway's REST API.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	coreconfig "github.com/swiftline/courierbot/core/config"
	"github.com/swiftline/courierbot/core/transport/netutil"
)

// Client pushes messages out through the gateway. It implements
// transport.Sender.
type Client struct {
	baseURL string
	phoneID string
	token   string
	http    *http.Client
}

// NewClient builds an outbound gateway client from config.
func NewClient(cfg coreconfig.GatewayConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		phoneID: cfg.PhoneID,
		token:   cfg.Token,
		http:    netutil.BuildHTTPClient(),
	}
}

type outboundText struct {
	To   string `json:"to"`
	Type string `json:"type"`
	Text struct {
		Body string `json:"body"`
	} `json:"text"`
}

type outboundMedia struct {
	To    string `json:"to"`
	Type  string `json:"type"`
	Image struct {
		ID      string `json:"id"`
		Caption string `json:"caption,omitempty"`
	} `json:"image"`
}

// SendText delivers a text message. The gateway has no reply keyboards,
// so option rows are appended to the body as plain lines.
func (c *Client) SendText(ctx context.Context, target, text string, keyboard [][]string) error {
	msg := outboundText{To: target, Type: "text"}
	msg.Text.Body = renderWithOptions(text, keyboard)
	return c.post(ctx, msg)
}

// SendMedia delivers a media message by gateway media id.
func (c *Client) SendMedia(ctx context.Context, target, mediaRef, caption string) error {
	msg := outboundMedia{To: target, Type: "image"}
	msg.Image.ID = mediaRef
	msg.Image.Caption = caption
	return c.post(ctx, msg)
}

func (c *Client) post(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("gateway: encode message: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("gateway: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gateway: send: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("gateway: send status %s", resp.Status)
	}
	return nil
}

// renderWithOptions flattens keyboard rows into numbered-free plain lines
// so gateway users still see their choices.
func renderWithOptions(text string, keyboard [][]string) string {
	if len(keyboard) == 0 {
		return text
	}
	var b strings.Builder
	b.WriteString(text)
	b.WriteString("\n")
	for _, row := range keyboard {
		b.WriteString("\n- ")
		b.WriteString(strings.Join(row, " / "))
	}
	return b.String()
}
