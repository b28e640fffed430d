package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/feedback-cascade/internal/core/domain"
	"github.com/kirillkom/feedback-cascade/internal/core/ports"
)

// DeliveryRecorder is the metrics hook; the worker wires Prometheus here.
type DeliveryRecorder interface {
	WebhookDelivery(service, status string)
}

type noopRecorder struct{}

func (noopRecorder) WebhookDelivery(string, string) {}

// Dispatcher registers webhook endpoints and fans review-pending events
// out to every active registration. Each endpoint gets exactly one
// delivery attempt per event; endpoints that fail too many times in a row
// are deactivated until re-registered.
type Dispatcher struct {
	repo            ports.WebhookRepository
	httpClient      *http.Client
	deliveryTimeout time.Duration
	service         string
	recorder        DeliveryRecorder
	logger          *slog.Logger
}

func NewDispatcher(repo ports.WebhookRepository, deliveryTimeout time.Duration, service string, recorder DeliveryRecorder, logger *slog.Logger) *Dispatcher {
	if deliveryTimeout <= 0 {
		deliveryTimeout = 10 * time.Second
	}
	if recorder == nil {
		recorder = noopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		repo:            repo,
		httpClient:      &http.Client{Timeout: deliveryTimeout},
		deliveryTimeout: deliveryTimeout,
		service:         service,
		recorder:        recorder,
		logger:          logger,
	}
}

func (d *Dispatcher) Register(ctx context.Context, name, url, description string, maxFailures int) (*domain.Webhook, error) {
	name = strings.TrimSpace(name)
	url = strings.TrimSpace(url)
	if name == "" || url == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "webhook_register", fmt.Errorf("name and url are required"))
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, domain.WrapError(domain.ErrInvalidInput, "webhook_register", fmt.Errorf("url must be http or https"))
	}
	if maxFailures <= 0 {
		maxFailures = domain.DefaultWebhookMaxFailures
	}

	existing, err := d.repo.ActiveByURL(ctx, url)
	if err != nil && !domain.IsKind(err, domain.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		return nil, domain.WrapError(domain.ErrDuplicateURL, "webhook_register", fmt.Errorf("active webhook already registered for %s", url))
	}

	now := time.Now().UTC()
	webhook := &domain.Webhook{
		ID:          uuid.NewString(),
		Name:        name,
		URL:         url,
		Description: strings.TrimSpace(description),
		Active:      true,
		MaxFailures: maxFailures,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := d.repo.Create(ctx, webhook); err != nil {
		return nil, err
	}
	return webhook, nil
}

// Dispatch delivers one event to all active registrations concurrently.
// Delivery errors are recorded per endpoint and never propagated: a dead
// endpoint must not hold up the queue.
func (d *Dispatcher) Dispatch(ctx context.Context, event domain.ReviewPendingEvent) error {
	webhooks, err := d.repo.ListActive(ctx)
	if err != nil {
		return err
	}
	if len(webhooks) == 0 {
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for _, webhook := range webhooks {
		webhook := webhook
		group.Go(func() error {
			d.deliver(groupCtx, webhook, event, payload)
			return nil
		})
	}
	return group.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, webhook domain.Webhook, event domain.ReviewPendingEvent, payload []byte) {
	now := time.Now().UTC()
	delivery := &domain.WebhookDelivery{
		ID:            uuid.NewString(),
		WebhookID:     webhook.ID,
		ReviewID:      event.ReviewID,
		CategorizerID: event.CategorizerID,
		CreatedAt:     now,
	}

	statusCode, deliverErr := d.post(ctx, webhook.URL, payload)
	delivery.ResponseCode = statusCode
	if deliverErr != nil {
		delivery.Status = domain.DeliveryFailed
		delivery.Error = deliverErr.Error()
	} else {
		sentAt := time.Now().UTC()
		delivery.Status = domain.DeliverySent
		delivery.SentAt = &sentAt
	}

	if err := d.repo.RecordDelivery(ctx, delivery); err != nil {
		d.logger.Error("webhook_delivery_record_failed", "webhook_id", webhook.ID, "error", err)
	}
	d.recorder.WebhookDelivery(d.service, delivery.Status)

	if deliverErr != nil {
		disabled, err := d.repo.MarkFailure(ctx, webhook.ID, time.Now().UTC())
		if err != nil {
			d.logger.Error("webhook_failure_mark_failed", "webhook_id", webhook.ID, "error", err)
			return
		}
		d.logger.Warn("webhook_delivery_failed",
			"webhook_id", webhook.ID,
			"url", webhook.URL,
			"review_id", event.ReviewID,
			"status_code", statusCode,
			"disabled", disabled,
			"error", deliverErr,
		)
		return
	}

	if err := d.repo.MarkSuccess(ctx, webhook.ID, time.Now().UTC()); err != nil {
		d.logger.Error("webhook_success_mark_failed", "webhook_id", webhook.ID, "error", err)
	}
	d.logger.Info("webhook_delivered",
		"webhook_id", webhook.ID,
		"review_id", event.ReviewID,
		"status_code", statusCode,
	)
}

func (d *Dispatcher) post(ctx context.Context, url string, payload []byte) (int, error) {
	reqCtx, cancel := context.WithTimeout(ctx, d.deliveryTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 2048))

	if resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("webhook status: %s", resp.Status)
	}
	return resp.StatusCode, nil
}
