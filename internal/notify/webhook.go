package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gigflow/backend/internal/events"
	"github.com/gigflow/backend/internal/metrics"
	"github.com/gigflow/backend/pkg/logger"
)

// WebhookSender POSTs each task's event as JSON to a fixed URL.
type WebhookSender struct {
	url    string
	client *http.Client
}

func NewWebhookSender(url string, timeout time.Duration) *WebhookSender {
	return &WebhookSender{url: url, client: &http.Client{Timeout: timeout}}
}

type webhookPayload struct {
	Source string       `json:"source"`
	Event  events.Event `json:"event"`
}

func (s *WebhookSender) Send(ctx context.Context, task *Task) error {
	body, err := json.Marshal(webhookPayload{Source: "gigflow", Event: task.Event})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Gigflow-Event", string(task.Event.Type))

	resp, err := s.client.Do(req)
	if err != nil {
		metrics.NotificationsSent.WithLabelValues("error").Inc()
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 400 {
		metrics.NotificationsSent.WithLabelValues("rejected").Inc()
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(respBody))
	}

	metrics.NotificationsSent.WithLabelValues("delivered").Inc()
	logger.Debug().Int("status", resp.StatusCode).Str("type", string(task.Event.Type)).Msg("[Notify] Webhook delivered")
	return nil
}

// Dispatcher turns published events into queued notify tasks.
type Dispatcher struct {
	queue Queue
}

func NewDispatcher(queue Queue) *Dispatcher {
	return &Dispatcher{queue: queue}
}

func (d *Dispatcher) Publish(ctx context.Context, event events.Event) {
	if err := d.queue.Enqueue(ctx, &Task{Event: event}); err != nil {
		metrics.NotificationsSent.WithLabelValues("enqueue_failed").Inc()
		logger.Warn().Err(err).Str("type", string(event.Type)).Msg("[Notify] Failed to enqueue event")
	}
}
