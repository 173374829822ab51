// Package reconcile удаляет заказы владельца по событию его удаления
// во внешнем сервисе пользователей.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordersvc/internal/domain"
	"github.com/vladislavdragonenkov/ordersvc/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/ordersvc/internal/metrics"
)

// Purger удаляет все заказы владельца и сбрасывает кэш.
type Purger interface {
	Purge(ctx context.Context, ownerID string) (int, error)
}

// Reconciler обрабатывает события удаления владельца.
type Reconciler struct {
	repo    domain.OrderRepository
	cache   domain.OrderCache
	metrics *metrics.LifecycleMetrics
	logger  *log.Entry
}

// Option настраивает Reconciler.
type Option func(*Reconciler)

// WithMetrics подключает метрики очистки.
func WithMetrics(m *metrics.LifecycleMetrics) Option {
	return func(r *Reconciler) {
		r.metrics = m
	}
}

// WithLogger подменяет логгер.
func WithLogger(logger *log.Entry) Option {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewReconciler создаёт Reconciler поверх хранилища и кэша.
func NewReconciler(repo domain.OrderRepository, cache domain.OrderCache, opts ...Option) *Reconciler {
	r := &Reconciler{
		repo:   repo,
		cache:  cache,
		logger: log.WithField("component", "owner-reconciler"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Purge физически удаляет заказы владельца и очищает кэш целиком.
// Повторный вызов для того же владельца возвращает 0.
func (r *Reconciler) Purge(ctx context.Context, ownerID string) (removed int, err error) {
	defer func() {
		r.metrics.RecordOwnerPurge(removed, err)
	}()

	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return 0, domain.ErrOwnerRequired
	}

	removed, err = r.repo.DeleteByOwner(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("delete orders of owner %s: %w", ownerID, err)
	}

	// Снимки в кэше не индексированы по владельцу, поэтому сбрасываются все.
	if err = r.cache.Clear(ctx); err != nil {
		r.metrics.RecordCacheError("clear")
		return removed, fmt.Errorf("clear order cache: %w", err)
	}

	r.logger.WithFields(log.Fields{
		"owner_id": ownerID,
		"removed":  removed,
	}).Info("owner orders purged")
	return removed, nil
}

// HandleEvent запускает Purge для событий удаления и игнорирует остальные.
func (r *Reconciler) HandleEvent(ctx context.Context, event domain.OwnerEvent) error {
	logger := r.logger.WithFields(log.Fields{
		"owner_id":   event.OwnerID,
		"event_type": event.EventType,
	})

	if !event.EventType.IsDeletion() {
		logger.Debug("owner event ignored")
		return nil
	}

	_, err := r.Purge(ctx, event.OwnerID)
	if errors.Is(err, domain.ErrOwnerRequired) {
		logger.Warn("owner deletion event without owner id skipped")
		return nil
	}
	return err
}

// MessageHandler адаптирует Reconciler к kafka.Consumer. Нераспознанные
// сообщения подтверждаются, ошибки хранилища и кэша возвращаются на retry.
func (r *Reconciler) MessageHandler() kafka.MessageHandler {
	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		event, err := kafka.ParseOwnerEvent(message)
		if err != nil {
			r.logger.WithError(err).WithFields(log.Fields{
				"topic":     message.Topic,
				"partition": message.Partition,
				"offset":    message.Offset,
			}).Warn("malformed owner event skipped")
			return nil
		}

		start := time.Now()
		if err := r.HandleEvent(ctx, event); err != nil {
			return err
		}
		r.logger.WithFields(log.Fields{
			"owner_id": event.OwnerID,
			"offset":   message.Offset,
			"took":     time.Since(start).String(),
		}).Debug("owner event handled")
		return nil
	}
}

var _ Purger = (*Reconciler)(nil)
