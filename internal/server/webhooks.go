package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"workhub/internal/config"
	"workhub/internal/domain"
	"workhub/internal/engine"
	"workhub/internal/repo"
)

const (
	defaultWebhookInterval = 2 * time.Second
	defaultWebhookTimeout  = 5 * time.Second
	defaultWebhookBatch    = 100
)

// Dispatcher delivers committed events to configured webhooks. Each hook
// keeps its own cursor and stops at the first failed delivery so the next
// round retries from there.
type Dispatcher struct {
	repo     repo.Repo
	webhooks []config.Webhook
	client   *http.Client
	logger   *slog.Logger
	interval time.Duration
	nudge    chan struct{}
	mu       sync.Mutex
	cursors  map[int]int64
}

func NewDispatcher(r repo.Repo, hooks []config.Webhook, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		repo:     r,
		webhooks: hooks,
		client:   &http.Client{Timeout: defaultWebhookTimeout},
		logger:   logger,
		interval: defaultWebhookInterval,
		nudge:    make(chan struct{}, 1),
		cursors:  make(map[int]int64),
	}
}

// Hook wakes the dispatcher after a commit instead of waiting for the next tick.
func (d *Dispatcher) Hook(_ context.Context, _ engine.Change) {
	select {
	case d.nudge <- struct{}{}:
	default:
	}
}

// Run polls until ctx is cancelled. Cursors start at the newest event, so
// history from before start-up is not replayed.
func (d *Dispatcher) Run(ctx context.Context) {
	if len(d.webhooks) == 0 {
		return
	}
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		d.DispatchAll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-d.nudge:
		}
	}
}

func (d *Dispatcher) DispatchAll(ctx context.Context) {
	for i, hook := range d.webhooks {
		if !hook.IsEnabled() || strings.TrimSpace(hook.URL) == "" {
			continue
		}
		d.dispatchWebhook(ctx, i, hook)
	}
}

func (d *Dispatcher) dispatchWebhook(ctx context.Context, idx int, hook config.Webhook) {
	cursor := d.cursorFor(ctx, idx)
	events, err := d.repo.EventsAfter(ctx, defaultWebhookBatch, cursor, repo.EventFilter{})
	if err != nil {
		d.logger.Warn("webhook: fetch events failed", "url", hook.URL, "err", err)
		return
	}
	for _, evt := range events {
		if !hook.Wants(evt.Type) {
			d.setCursor(idx, evt.ID)
			continue
		}
		if err := d.postEvent(ctx, hook, evt); err != nil {
			d.logger.Warn("webhook: delivery failed", "url", hook.URL, "event_id", evt.ID, "err", err)
			return
		}
		d.setCursor(idx, evt.ID)
	}
}

func (d *Dispatcher) cursorFor(ctx context.Context, idx int) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.cursors[idx]; ok {
		return cur
	}
	cur, err := d.repo.LatestEventID(ctx)
	if err != nil {
		d.logger.Warn("webhook: init cursor failed", "err", err)
		cur = 0
	}
	d.cursors[idx] = cur
	return cur
}

func (d *Dispatcher) setCursor(idx int, value int64) {
	d.mu.Lock()
	d.cursors[idx] = value
	d.mu.Unlock()
}

type webhookEvent struct {
	ID             int64           `json:"id"`
	Type           string          `json:"type"`
	OrganizationID string          `json:"organization_id,omitempty"`
	EntityKind     string          `json:"entity_kind"`
	EntityID       string          `json:"entity_id,omitempty"`
	ActorID        string          `json:"actor_id"`
	TS             string          `json:"ts"`
	Payload        json.RawMessage `json:"payload"`
	PayloadRaw     string          `json:"payload_raw,omitempty"`
}

func (d *Dispatcher) postEvent(ctx context.Context, hook config.Webhook, evt domain.Event) error {
	payload := json.RawMessage([]byte("{}"))
	var raw string
	if evt.Payload != "" {
		if json.Valid([]byte(evt.Payload)) {
			payload = json.RawMessage([]byte(evt.Payload))
		} else {
			raw = evt.Payload
		}
	}
	body := webhookEvent{
		ID:             evt.ID,
		Type:           evt.Type,
		OrganizationID: evt.OrganizationID,
		EntityKind:     evt.EntityKind,
		EntityID:       evt.EntityID,
		ActorID:        evt.ActorID,
		TS:             evt.TS,
		Payload:        payload,
		PayloadRaw:     raw,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	client := d.client
	if hook.TimeoutSeconds > 0 {
		client = &http.Client{Timeout: time.Duration(hook.TimeoutSeconds) * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Workhub-Event", evt.Type)
	req.Header.Set("X-Workhub-Delivery", fmt.Sprintf("%d", evt.ID))
	if evt.OrganizationID != "" {
		req.Header.Set("X-Workhub-Organization", evt.OrganizationID)
	}
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Workhub-Secret", hook.Secret)
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}
	return nil
}
