package executor

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"covault/internal/engine"
)

const (
	headerSignature  = "X-Covault-Signature"
	headerEntryIndex = "X-Covault-Entry-Index"
	headerValue      = "X-Covault-Value"

	defaultWebhookTimeout = 10 * time.Second
)

// Webhook delivers an entry's payload as an HTTP POST to the URL embedded in
// the destination ("webhook:https://partner.example/hook"). The body is
// signed with HMAC-SHA256 so receivers can authenticate the vault.
type Webhook struct {
	client *http.Client
	secret []byte
	logger *slog.Logger
}

func NewWebhook(secret []byte, logger *slog.Logger) *Webhook {
	return &Webhook{
		client: &http.Client{Timeout: defaultWebhookTimeout},
		secret: secret,
		logger: logger,
	}
}

// WithClient overrides the HTTP client, mainly for tests.
func (w *Webhook) WithClient(c *http.Client) *Webhook {
	w.client = c
	return w
}

func (w *Webhook) Attempt(ctx context.Context, d engine.Delivery) error {
	_, url, ok := strings.Cut(d.Destination, ":")
	if !ok || url == "" {
		return fmt.Errorf("webhook destination %q missing url", d.Destination)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(d.Payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerEntryIndex, d.Index.String())
	req.Header.Set(headerValue, fmt.Sprintf("%d", d.Value))
	req.Header.Set(headerSignature, w.signature(d))

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook delivery: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook delivery: receiver returned %d", resp.StatusCode)
	}
	if w.logger != nil {
		w.logger.InfoContext(ctx, "webhook delivered",
			"entry_index", d.Index.String(),
			"status", resp.StatusCode,
		)
	}
	return nil
}

// signature covers the entry index and value as well as the payload, so a
// receiver replaying a signed body cannot attach it to a different entry.
func (w *Webhook) signature(d engine.Delivery) string {
	mac := hmac.New(sha256.New, w.secret)
	fmt.Fprintf(mac, "%s.%d.", d.Index.String(), d.Value)
	mac.Write(d.Payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature is the receiver-side check, exported for integration
// partners and used by the webhook tests.
func VerifySignature(secret []byte, index string, value uint64, payload []byte, got string) bool {
	mac := hmac.New(sha256.New, secret)
	fmt.Fprintf(mac, "%s.%d.", index, value)
	mac.Write(payload)
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(want), []byte(got))
}
