package push

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/pumpops/pumpops-server/cmd/models"
)

// Bounds each delivery attempt so one slow endpoint cannot starve the
// fan-out's aggregate response.
const defaultSendTimeout = 5 * time.Second

// Sender delivers one payload to one subscription endpoint. The returned
// status code is the push service's response (0 on transport error).
type Sender interface {
	Send(ctx context.Context, sub *models.PushSubscription, payload []byte) (int, error)
}

// WebPushSender signs and sends Web Push protocol requests with the
// configured VAPID key pair.
type WebPushSender struct {
	publicKey  string
	privateKey string
	subscriber string
	timeout    time.Duration
}

func NewWebPushSender(publicKey, privateKey, subscriber string) *WebPushSender {
	return &WebPushSender{
		publicKey:  publicKey,
		privateKey: privateKey,
		subscriber: subscriber,
		timeout:    defaultSendTimeout,
	}
}

func (s *WebPushSender) Send(ctx context.Context, sub *models.PushSubscription, payload []byte) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &webpush.Options{
		Subscriber:      s.subscriber,
		VAPIDPublicKey:  s.publicKey,
		VAPIDPrivateKey: s.privateKey,
		TTL:             60 * 60 * 24,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to deliver notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, fmt.Errorf("push endpoint returned %d: %s", resp.StatusCode, string(body))
	}
	return resp.StatusCode, nil
}

// SubscriptionGone reports whether a delivery status means the platform has
// invalidated the subscription and the row should be pruned.
func SubscriptionGone(status int) bool {
	return status == http.StatusNotFound || status == http.StatusGone
}
