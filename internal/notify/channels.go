package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// EmailSender delivers one email. Transport is external; templates are built
// here.
type EmailSender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// MessageSender delivers one plain-text message over the messaging channel.
type MessageSender interface {
	Send(ctx context.Context, to, text string) error
}

type EmailClient struct {
	baseURL string
	client  *http.Client
}

func NewEmailClient(baseURL string, client *http.Client) *EmailClient {
	return &EmailClient{baseURL: baseURL, client: client}
}

func (c *EmailClient) Send(ctx context.Context, to, subject, htmlBody string) error {
	return postJSON(ctx, c.client, c.baseURL+"/send", map[string]string{
		"to":      to,
		"subject": subject,
		"body":    htmlBody,
	})
}

type WhatsAppClient struct {
	baseURL string
	client  *http.Client
}

func NewWhatsAppClient(baseURL string, client *http.Client) *WhatsAppClient {
	return &WhatsAppClient{baseURL: baseURL, client: client}
}

func (c *WhatsAppClient) Send(ctx context.Context, to, text string) error {
	return postJSON(ctx, c.client, c.baseURL+"/messages", map[string]string{
		"to":   to,
		"body": text,
	})
}

func postJSON(ctx context.Context, client *http.Client, url string, body map[string]string) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("channel service returned status %d", resp.StatusCode)
	}

	return nil
}
