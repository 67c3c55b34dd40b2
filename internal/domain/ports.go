package domain

import (
	"context"
	"time"
)

// QuerySource: контракт «выбрать объекты по запросу», которым пользуются отчёты.
//
// Реализация возвращает ошибку с ErrQueryNotConstructible, если для пары (kind, field)
// запрос не строится, и с ErrDataSourceUnavailable, если хранилище не ответило.
type QuerySource interface {
	// RetrieveByFuzzyMatch возвращает сущности, у которых поле field содержит substring
	// (с учётом регистра).
	RetrieveByFuzzyMatch(ctx context.Context, kind Kind, field, substring string) ([]Entity, error)
	// RetrieveByExactForeignKey возвращает сущности, у которых внешний ключ field равен value.
	RetrieveByExactForeignKey(ctx context.Context, kind Kind, field string, value Identifier) ([]Entity, error)
}

// IdentifierRange: наименьший и наибольший сохранённые идентификаторы вида.
// Пустые строки означают, что сущностей этого вида в хранилище нет.
type IdentifierRange struct {
	Kind  Kind
	MinID string
	MaxID string
}

// Empty сообщает, что хранилище не содержит сущностей вида.
func (r IdentifierRange) Empty() bool {
	return r.MinID == "" || r.MaxID == ""
}

// IdentifierRangeSource отдаёт границы идентификаторов для синхронизации счётчиков после загрузки.
type IdentifierRangeSource interface {
	IdentifierRange(ctx context.Context, kind Kind) (IdentifierRange, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(ctx context.Context, msg OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(ctx context.Context, event TimelineEvent) error
	List(ctx context.Context, orderID Identifier) ([]TimelineEvent, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
