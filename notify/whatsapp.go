// Package notify delivers patient notifications over the WhatsApp Cloud API.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fabfab/nexo/config"
)

const defaultGraphURL = "https://graph.facebook.com"

// ErrNotConfigured is returned when the phone number id or token is missing.
var ErrNotConfigured = errors.New("whatsapp is not configured")

type Sender interface {
	Send(ctx context.Context, phone, message string) error
}

type WhatsApp struct {
	baseURL    string
	apiVersion string
	phoneID    string
	token      string
	client     *http.Client
}

type Options struct {
	BaseURL    string
	APIVersion string
	PhoneID    string
	Token      string
}

type whatsAppMessage struct {
	MessagingProduct string       `json:"messaging_product"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Text             whatsAppText `json:"text"`
}

type whatsAppText struct {
	Body string `json:"body"`
}

func NewWhatsApp(opts Options) *WhatsApp {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultGraphURL
	}
	version := opts.APIVersion
	if version == "" {
		version = "v14.0"
	}

	return &WhatsApp{
		baseURL:    baseURL,
		apiVersion: version,
		phoneID:    opts.PhoneID,
		token:      opts.Token,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func NewWhatsAppFromConfig(cfg config.Config) *WhatsApp {
	return NewWhatsApp(Options{
		APIVersion: cfg.WhatsApp.APIVersion,
		PhoneID:    cfg.WhatsApp.PhoneID,
		Token:      cfg.WhatsApp.Token,
	})
}

func (w *WhatsApp) Configured() bool {
	return w.phoneID != "" && w.token != ""
}

func (w *WhatsApp) Send(ctx context.Context, phone, message string) error {
	if !w.Configured() {
		return ErrNotConfigured
	}
	if strings.TrimSpace(phone) == "" {
		return fmt.Errorf("recipient phone is required")
	}

	body, err := json.Marshal(whatsAppMessage{
		MessagingProduct: "whatsapp",
		To:               phone,
		Type:             "text",
		Text:             whatsAppText{Body: message},
	})
	if err != nil {
		return fmt.Errorf("marshal whatsapp message: %w", err)
	}

	url := fmt.Sprintf("%s/%s/%s/messages", w.baseURL, w.apiVersion, w.phoneID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create whatsapp request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+w.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("call whatsapp API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if len(data) > 0 {
			return fmt.Errorf("whatsapp API error %d: %s", resp.StatusCode, string(data))
		}
		return fmt.Errorf("whatsapp API returned status %s", resp.Status)
	}
	return nil
}

var _ Sender = (*WhatsApp)(nil)
