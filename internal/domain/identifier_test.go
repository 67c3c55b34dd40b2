package domain_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/coffeetrade/internal/domain"
)

func TestParseIdentifier(t *testing.T) {
	cases := []struct {
		name    string
		kind    domain.Kind
		raw     string
		want    domain.Identifier
		wantErr error
	}{
		{name: "sale order", kind: domain.KindSaleOrder, raw: "SO42", want: domain.Identifier{Kind: domain.KindSaleOrder, Seq: 42}},
		{name: "customer", kind: domain.KindCustomer, raw: "Cus7", want: domain.Identifier{Kind: domain.KindCustomer, Seq: 7}},
		{name: "district bare int", kind: domain.KindDistrict, raw: "3", want: domain.Identifier{Kind: domain.KindDistrict, Seq: 3}},
		{name: "wrong prefix", kind: domain.KindSaleOrder, raw: "IO5", wantErr: domain.ErrIdentifierPrefix},
		{name: "lowercase prefix", kind: domain.KindSaleOrder, raw: "so5", wantErr: domain.ErrIdentifierPrefix},
		{name: "non numeric suffix", kind: domain.KindSaleOrder, raw: "SOx", wantErr: domain.ErrIdentifierSuffix},
		{name: "empty suffix", kind: domain.KindSaleOrder, raw: "SO", wantErr: domain.ErrIdentifierSuffix},
		{name: "negative suffix", kind: domain.KindSaleOrder, raw: "SO-1", wantErr: domain.ErrIdentifierSuffix},
		{name: "leading zero", kind: domain.KindSaleOrder, raw: "SO05", wantErr: domain.ErrIdentifierSuffix},
		{name: "zero", kind: domain.KindStreet, raw: "0", wantErr: domain.ErrIdentifierSuffix},
		{name: "unknown kind", kind: domain.Kind("invoice"), raw: "INV1", wantErr: domain.ErrUnknownKind},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := domain.ParseIdentifier(tc.kind, tc.raw)
			if tc.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tc.wantErr)
				assert.True(t, domain.IsInvalidIdentifier(err))

				var invalid *domain.InvalidIdentifierError
				require.True(t, errors.As(err, &invalid))
				assert.Equal(t, tc.raw, invalid.Value)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.raw, got.String())
		})
	}
}

func TestAllocatorMintsSequentialIdentifiers(t *testing.T) {
	ids := domain.NewIdentifierRegistry()

	first, err := ids.Allocate(domain.KindSaleOrder, "")
	require.NoError(t, err)
	assert.Equal(t, "SO1", first.String())

	second, err := ids.Allocate(domain.KindSaleOrder, "")
	require.NoError(t, err)
	assert.Equal(t, "SO2", second.String())
}

func TestAllocatorAcceptsExplicitIdentifierAndRaisesWatermark(t *testing.T) {
	ids := domain.NewIdentifierRegistry()

	explicit, err := ids.Allocate(domain.KindSaleOrder, "SO5")
	require.NoError(t, err)
	assert.Equal(t, "SO5", explicit.String())
	assert.EqualValues(t, 5, ids.Allocator(domain.KindSaleOrder).Watermark())

	next, err := ids.Allocate(domain.KindSaleOrder, "")
	require.NoError(t, err)
	assert.Equal(t, "SO6", next.String())
}

func TestAllocatorExplicitLowerIdentifierKeepsWatermark(t *testing.T) {
	ids := domain.NewIdentifierRegistry()
	_, err := ids.Allocate(domain.KindCustomer, "Cus10")
	require.NoError(t, err)

	_, err = ids.Allocate(domain.KindCustomer, "Cus3")
	require.NoError(t, err)
	assert.EqualValues(t, 10, ids.Allocator(domain.KindCustomer).Watermark())
}

func TestAllocatorRejectsMalformedIdentifier(t *testing.T) {
	ids := domain.NewIdentifierRegistry()

	_, err := ids.Allocate(domain.KindSaleOrder, "SOx")
	require.Error(t, err)
	assert.True(t, domain.IsInvalidIdentifier(err))
	assert.EqualValues(t, 0, ids.Allocator(domain.KindSaleOrder).Watermark())
}

func TestReconcileRange(t *testing.T) {
	ids := domain.NewIdentifierRegistry()
	alloc := ids.Allocator(domain.KindImportOrder)

	require.NoError(t, alloc.ReconcileRange("IO1", "IO40"))
	assert.EqualValues(t, 40, alloc.Watermark())
	assert.Equal(t, "IO41", alloc.Next().String())

	// Меньший диапазон watermark не опускает.
	require.NoError(t, alloc.ReconcileRange("IO1", "IO7"))
	assert.EqualValues(t, 41, alloc.Watermark())

	// Пустая таблица.
	require.NoError(t, alloc.ReconcileRange("", ""))
	assert.EqualValues(t, 41, alloc.Watermark())

	err := alloc.ReconcileRange("IO1", "SO50")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrIdentifierPrefix)
}

func TestAllocatorsAreIsolatedPerKind(t *testing.T) {
	ids := domain.NewIdentifierRegistry()
	_, err := ids.Allocate(domain.KindSaleOrder, "SO100")
	require.NoError(t, err)

	io, err := ids.Allocate(domain.KindImportOrder, "")
	require.NoError(t, err)
	assert.Equal(t, "IO1", io.String())

	marks := ids.Watermarks()
	assert.EqualValues(t, 100, marks[domain.KindSaleOrder])
	assert.EqualValues(t, 1, marks[domain.KindImportOrder])
	assert.EqualValues(t, 0, marks[domain.KindCoffee])
}

func TestAllocatorConcurrentMintingIsUnique(t *testing.T) {
	ids := domain.NewIdentifierRegistry()
	alloc := ids.Allocator(domain.KindCoffee)

	const workers, perWorker = 8, 50
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]struct{}, workers*perWorker)
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id := alloc.Next().String()
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*perWorker)
	assert.EqualValues(t, workers*perWorker, alloc.Watermark())
}

func TestRegistryPanicsOnUnknownKind(t *testing.T) {
	ids := domain.NewIdentifierRegistry()
	assert.Panics(t, func() { ids.Allocator(domain.Kind("invoice")) })
}

func TestReconcileRangeIsIdempotent(t *testing.T) {
	once := domain.NewIdentifierAllocator(domain.KindSupplier)
	twice := domain.NewIdentifierAllocator(domain.KindSupplier)

	require.NoError(t, once.ReconcileRange("SUP2", "SUP17"))
	require.NoError(t, twice.ReconcileRange("SUP2", "SUP17"))
	require.NoError(t, twice.ReconcileRange("SUP2", "SUP17"))

	assert.Equal(t, once.Watermark(), twice.Watermark())
}

func TestWatermarkIsNonDecreasing(t *testing.T) {
	alloc := domain.NewIdentifierAllocator(domain.KindSaleOrder)
	steps := []func() error{
		func() error { _, err := alloc.Allocate(""); return err },
		func() error { _, err := alloc.Allocate("SO9"); return err },
		func() error { return alloc.ReconcileRange("SO1", "SO4") },
		func() error { _, err := alloc.Allocate("SO2"); return err },
		func() error { _, err := alloc.Allocate(""); return err },
		func() error { return alloc.ReconcileRange("SO1", "SO30") },
	}

	var last int64
	for i, step := range steps {
		require.NoError(t, step(), "step %d", i)
		mark := alloc.Watermark()
		assert.GreaterOrEqual(t, mark, last, "step %d", i)
		last = mark
	}
	assert.EqualValues(t, 30, last)
}
