package report

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/coffeetrade/internal/domain"
)

// Run выполняет отчёт def для строки term через источник src.
//
// Отсутствие опорной сущности даёт успешный пустой результат (nil, nil). Любая ошибка
// источника возвращается как *domain.ReportQueryError без повторов.
func Run(ctx context.Context, src domain.QuerySource, def Definition, term string) ([]domain.Entity, error) {
	if !def.TwoStage() {
		matched, err := src.RetrieveByFuzzyMatch(ctx, def.Target.Kind, def.Target.Field, term)
		if err != nil {
			return nil, &domain.ReportQueryError{Report: def.Name, Term: term, Err: err}
		}
		sortByIdentifier(matched)
		return matched, nil
	}

	refs, err := src.RetrieveByFuzzyMatch(ctx, def.Reference.Kind, def.Reference.Field, term)
	if err != nil {
		return nil, &domain.ReportQueryError{Report: def.Name, Term: term, Err: err}
	}
	if len(refs) == 0 {
		return nil, nil
	}

	ref := firstByIdentifier(refs)
	dependents, err := src.RetrieveByExactForeignKey(ctx, def.Target.Kind, def.Target.Field, ref.EntityID())
	if err != nil {
		return nil, &domain.ReportQueryError{Report: def.Name, Term: term, Err: err}
	}
	sortByIdentifier(dependents)
	return dependents, nil
}

// firstByIdentifier выбирает сущность с наименьшим номером идентификатора.
func firstByIdentifier(entities []domain.Entity) domain.Entity {
	first := entities[0]
	for _, e := range entities[1:] {
		if e.EntityID().Seq < first.EntityID().Seq {
			first = e
		}
	}
	return first
}

func sortByIdentifier(entities []domain.Entity) {
	sort.SliceStable(entities, func(i, j int) bool {
		return entities[i].EntityID().Seq < entities[j].EntityID().Seq
	})
}

// Query: сессия отчёта: строка поиска и производные от неё результаты.
//
// SetSearchTerm пересчитывает результаты до возврата, поэтому Results и Count всегда
// соответствуют последней установленной строке. При ошибке источника результаты
// очищаются, а ошибка доступна через Err.
type Query struct {
	def Definition
	src domain.QuerySource

	mu      sync.RWMutex
	term    string
	results []domain.Entity
	err     error
}

// NewQuery создаёт сессию отчёта def поверх источника src.
func NewQuery(src domain.QuerySource, def Definition) *Query {
	return &Query{def: def, src: src}
}

// Definition возвращает описание отчёта.
func (q *Query) Definition() Definition {
	return q.def
}

// SetSearchTerm устанавливает строку поиска и пересчитывает результаты.
func (q *Query) SetSearchTerm(ctx context.Context, term string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.term = term
	results, err := Run(ctx, q.src, q.def, term)
	if err != nil {
		q.results = nil
		q.err = err
		return err
	}
	q.results = results
	q.err = nil
	return nil
}

// SearchTerm возвращает последнюю установленную строку поиска.
func (q *Query) SearchTerm() string {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.term
}

// Results возвращает копию результатов.
func (q *Query) Results() []domain.Entity {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]domain.Entity, len(q.results))
	copy(out, q.results)
	return out
}

// Count возвращает число результатов.
func (q *Query) Count() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.results)
}

// Err возвращает ошибку последнего SetSearchTerm или nil.
func (q *Query) Err() error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.err
}

// Coffees приводит результаты к позициям каталога; прочие сущности пропускаются.
func Coffees(entities []domain.Entity) []*domain.Coffee {
	return only[*domain.Coffee](entities)
}

// Orders приводит результаты к заказам.
func Orders(entities []domain.Entity) []*domain.Order {
	return only[*domain.Order](entities)
}

func only[T domain.Entity](entities []domain.Entity) []T {
	out := make([]T, 0, len(entities))
	for _, e := range entities {
		if typed, ok := e.(T); ok {
			out = append(out, typed)
		}
	}
	return out
}
