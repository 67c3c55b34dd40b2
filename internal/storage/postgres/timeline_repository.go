package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/coffeetrade/internal/domain"
)

type timelineRepository struct {
	db *sql.DB
}

// NewTimelineRepository хранит журнал заказов в timeline_events.
func NewTimelineRepository(store *Store) domain.TimelineRepository {
	return &timelineRepository{db: store.DB()}
}

func (r *timelineRepository) Append(ctx context.Context, e domain.TimelineEvent) error {
	if e.Occurred.IsZero() {
		e.Occurred = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO timeline_events (order_id, type, reason, total_after_minor, occurred) VALUES ($1, $2, $3, $4, $5)`,
		e.OrderID.String(), e.Type, e.Reason, e.TotalAfter.Minor(), e.Occurred)
	if err != nil {
		return fmt.Errorf("append %s to timeline of %s: %w", e.Type, e.OrderID, err)
	}
	return nil
}

// List возвращает журнал заказа; id разрешает равенство времени в порядке вставки.
func (r *timelineRepository) List(ctx context.Context, orderID domain.Identifier) ([]domain.TimelineEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx,
		`SELECT type, reason, total_after_minor, occurred FROM timeline_events WHERE order_id = $1 ORDER BY occurred, id`,
		orderID.String())
	if err != nil {
		return nil, fmt.Errorf("timeline of %s: %w", orderID, err)
	}
	defer rows.Close()

	var events []domain.TimelineEvent
	for rows.Next() {
		var minor int64
		e := domain.TimelineEvent{OrderID: orderID}
		if err := rows.Scan(&e.Type, &e.Reason, &minor, &e.Occurred); err != nil {
			return nil, fmt.Errorf("timeline of %s: %w", orderID, err)
		}
		e.TotalAfter = domain.MoneyFromMinor(minor)
		e.Occurred = e.Occurred.UTC()
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("timeline of %s: %w", orderID, err)
	}
	return events, nil
}

var _ domain.TimelineRepository = (*timelineRepository)(nil)
