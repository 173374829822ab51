package reconcile

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// DefaultWorkers: число членов consumer group по умолчанию.
const DefaultWorkers = 3

// Member: один участник consumer group.
type Member interface {
	Start(ctx context.Context) error
	Stop() error
}

// MemberFactory создаёт участника с порядковым номером index.
type MemberFactory func(index int) (Member, error)

// Workers запускает и останавливает участников группы вместе.
type Workers struct {
	members []Member
	logger  *log.Entry
}

// NewWorkers создаёт count участников. Если создание одного из них
// завершилось ошибкой, уже созданные останавливаются.
func NewWorkers(count int, factory MemberFactory, logger *log.Entry) (*Workers, error) {
	if count <= 0 {
		count = DefaultWorkers
	}
	if logger == nil {
		logger = log.WithField("component", "owner-workers")
	}

	members := make([]Member, 0, count)
	for i := 0; i < count; i++ {
		member, err := factory(i)
		if err != nil {
			for _, created := range members {
				_ = created.Stop()
			}
			return nil, fmt.Errorf("create owner consumer %d: %w", i, err)
		}
		members = append(members, member)
	}

	return &Workers{members: members, logger: logger}, nil
}

// Size возвращает количество участников.
func (w *Workers) Size() int {
	return len(w.members)
}

// Run запускает всех участников, ждёт отмены ctx и останавливает их.
func (w *Workers) Run(ctx context.Context) error {
	started := make([]Member, 0, len(w.members))
	for i, member := range w.members {
		if err := member.Start(ctx); err != nil {
			stopErr := stopAll(started)
			return errors.Join(fmt.Errorf("start owner consumer %d: %w", i, err), stopErr)
		}
		started = append(started, member)
	}
	w.logger.WithField("workers", len(started)).Info("owner event consumers started")

	<-ctx.Done()

	err := stopAll(started)
	w.logger.Info("owner event consumers stopped")
	return err
}

func stopAll(members []Member) error {
	var errs []error
	for _, member := range members {
		if err := member.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
