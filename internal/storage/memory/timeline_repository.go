package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/coffeetrade/internal/domain"
)

// TimelineRepository: журнал событий заказов в памяти.
type TimelineRepository struct {
	mu  sync.RWMutex
	log map[domain.Identifier][]domain.TimelineEvent
}

func NewTimelineRepository() *TimelineRepository {
	return &TimelineRepository{log: make(map[domain.Identifier][]domain.TimelineEvent)}
}

// Append вставляет событие с сохранением хронологии; события с равным временем идут в порядке записи.
func (r *TimelineRepository) Append(ctx context.Context, event domain.TimelineEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if event.Occurred.IsZero() {
		event.Occurred = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	events := r.log[event.OrderID]
	at, _ := slices.BinarySearchFunc(events, event.Occurred, func(e domain.TimelineEvent, t time.Time) int {
		if e.Occurred.After(t) {
			return 1
		}
		return -1
	})
	r.log[event.OrderID] = slices.Insert(events, at, event)
	return nil
}

func (r *TimelineRepository) List(ctx context.Context, orderID domain.Identifier) ([]domain.TimelineEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.log[orderID]), nil
}

var _ domain.TimelineRepository = (*TimelineRepository)(nil)
