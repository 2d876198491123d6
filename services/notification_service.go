package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/opsdash/commesse-api/models"
	"go.uber.org/zap"
)

// NotificationKind distinguishes the events sent on the notification channel
type NotificationKind string

const (
	KindPhaseStatusChanged NotificationKind = "phase_status_changed"
	KindPhaseScheduled     NotificationKind = "phase_scheduled"
	KindPhaseRescheduled   NotificationKind = "phase_rescheduled"
	KindPriorityChanged    NotificationKind = "priority_changed"
	KindUrgentMessage      NotificationKind = "urgent_message"
)

// MaxUrgentMessageLength caps the free-text urgent broadcast, in characters
const MaxUrgentMessageLength = 500

// Notification is the structured payload delivered to a NotificationChannel
type Notification struct {
	ID          string                 `json:"id"`
	Kind        NotificationKind       `json:"kind"`
	OccurredAt  time.Time              `json:"occurred_at"`
	OrderID     uint                   `json:"order_id"`
	OrderNumber string                 `json:"order_number"`
	OrderTitle  string                 `json:"order_title"`
	OrderType   models.OrderType       `json:"order_type"`
	Customer    string                 `json:"customer"`
	Deadline    *time.Time             `json:"deadline,omitempty"`
	Fields      map[string]interface{} `json:"fields,omitempty"`
}

// NewNotification builds a notification carrying the order-identifying fields
func NewNotification(kind NotificationKind, order models.Order, fields map[string]interface{}) Notification {
	var deadline *time.Time
	if order.Deadline != nil {
		d := *order.Deadline
		deadline = &d
	}
	return Notification{
		ID:          uuid.NewString(),
		Kind:        kind,
		OccurredAt:  time.Now().UTC(),
		OrderID:     order.ID,
		OrderNumber: order.Number,
		OrderTitle:  order.Title,
		OrderType:   order.Type,
		Customer:    order.CustomerName(),
		Deadline:    deadline,
		Fields:      fields,
	}
}

// NewUrgentMessage validates the free text and builds an urgent broadcast
func NewUrgentMessage(order models.Order, text, author string) (Notification, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Notification{}, newValidationError(KindEmptyMessage, "urgent message cannot be empty")
	}
	if n := utf8.RuneCountInString(text); n > MaxUrgentMessageLength {
		return Notification{}, newValidationError(KindMessageTooLong,
			"urgent message is %d characters, the limit is %d", n, MaxUrgentMessageLength)
	}
	return NewNotification(KindUrgentMessage, order, map[string]interface{}{
		"message": text,
		"author":  author,
	}), nil
}

// NotificationChannel delivers a notification to an external system
type NotificationChannel interface {
	Send(ctx context.Context, n Notification) error
}

// Notifier accepts notifications without ever reporting failure to the caller
type Notifier interface {
	Dispatch(ctx context.Context, n Notification)
}

// Dispatcher sends each notification on a detached goroutine. Failures are
// logged and counted; they are never returned and never retried.
type Dispatcher struct {
	channel NotificationChannel
	logger  *zap.Logger
	metrics *Metrics
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewDispatcher creates a dispatcher delivering on channel
func NewDispatcher(channel NotificationChannel, logger *zap.Logger, metrics *Metrics, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		channel: channel,
		logger:  logger,
		metrics: metrics,
		timeout: timeout,
	}
}

// Dispatch returns immediately; delivery happens in the background
func (d *Dispatcher) Dispatch(ctx context.Context, n Notification) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.fail(n, fmt.Errorf("panic in notification channel: %v", r))
			}
		}()

		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()

		if err := d.channel.Send(sendCtx, n); err != nil {
			d.fail(n, err)
			return
		}
		d.metrics.notification(n.Kind, "sent")
		d.logger.Debug("notification sent",
			zap.String("notification_id", n.ID),
			zap.String("kind", string(n.Kind)),
			zap.Uint("order_id", n.OrderID))
	}()
}

func (d *Dispatcher) fail(n Notification, err error) {
	d.metrics.notification(n.Kind, "failed")
	d.logger.Warn("notification dispatch failed",
		zap.String("notification_id", n.ID),
		zap.String("kind", string(n.Kind)),
		zap.Uint("order_id", n.OrderID),
		zap.String("order_number", n.OrderNumber),
		zap.Error(err))
}

// Flush waits for in-flight deliveries or for ctx to expire
func (d *Dispatcher) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("notification flush: %w", ctx.Err())
	}
}
