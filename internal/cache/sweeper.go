package cache

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// DefaultSweepInterval: период очистки in-process кэша по умолчанию.
const DefaultSweepInterval = time.Minute

// SweeperOption настраивает Sweeper.
type SweeperOption func(*Sweeper)

// WithSweepInterval задаёт интервал между проходами; <=0 оставляет значение по умолчанию.
func WithSweepInterval(interval time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithSweepLogger задаёт logger воркера.
func WithSweepLogger(logger *log.Entry) SweeperOption {
	return func(s *Sweeper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Sweeper периодически удаляет истёкшие записи Memory. Без него записи,
// которые больше не читаются, остаются в map до Clear.
type Sweeper struct {
	cache    *Memory
	interval time.Duration
	logger   *log.Entry
}

// NewSweeper создаёт воркер очистки для кэша.
func NewSweeper(cache *Memory, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		cache:    cache,
		interval: DefaultSweepInterval,
		logger:   log.WithField("component", "cache-sweeper"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Interval возвращает период очистки.
func (s *Sweeper) Interval() time.Duration {
	return s.interval
}

// Run чистит кэш каждые interval до отмены ctx. Всегда возвращает nil,
// чтобы остановка воркера не считалась ошибкой группы.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.cache == nil {
		s.logger.Warn("cache sweeper is disabled: cache is nil")
		return nil
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.SweepOnce()
		}
	}
}

// SweepOnce выполняет один проход и возвращает число удалённых записей.
func (s *Sweeper) SweepOnce() int {
	removed := s.cache.Sweep()
	if removed > 0 {
		s.logger.WithFields(log.Fields{
			"removed":   removed,
			"remaining": s.cache.Len(),
		}).Debug("expired cache entries swept")
	}
	return removed
}
