package push

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/MelvinVerLia/SiLaporRT-sub001/config"
	"github.com/MelvinVerLia/SiLaporRT-sub001/internal/domain"
)

// WebPushProvider sends VAPID-signed Web Push messages. The stored endpoint
// is the browser's PushSubscription JSON: {endpoint, keys: {p256dh, auth}}.
type WebPushProvider struct {
	opts webpush.Options
}

func NewWebPushProvider(cfg config.WebPush, client webpush.HTTPClient) *WebPushProvider {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebPushProvider{opts: webpush.Options{
		HTTPClient:      client,
		Subscriber:      cfg.Subscriber,
		VAPIDPublicKey:  cfg.VAPIDPublicKey,
		VAPIDPrivateKey: cfg.VAPIDPrivateKey,
		TTL:             int(cfg.TTL.Seconds()),
		Urgency:         webpush.UrgencyHigh,
	}}
}

func (p *WebPushProvider) Send(ctx context.Context, sub *domain.PushSubscription, payload domain.PushPayload) error {
	var target webpush.Subscription
	if err := json.Unmarshal(sub.Endpoint, &target); err != nil {
		return fmt.Errorf("decode endpoint: %w", err)
	}
	if target.Endpoint == "" {
		return fmt.Errorf("decode endpoint: empty url")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	opts := p.opts
	resp, err := webpush.SendNotificationWithContext(ctx, body, &target, &opts)
	if err != nil {
		return fmt.Errorf("send web push: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return fmt.Errorf("%w: status %d", ErrEndpointGone, resp.StatusCode)
	case resp.StatusCode >= 400:
		return fmt.Errorf("web push rejected: status %d", resp.StatusCode)
	}
	return nil
}
