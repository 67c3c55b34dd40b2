package idsync_test

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/coffeetrade/internal/domain"
	"github.com/vladislavdragonenkov/coffeetrade/internal/metrics"
	"github.com/vladislavdragonenkov/coffeetrade/internal/service/idsync"
	"github.com/vladislavdragonenkov/coffeetrade/internal/storage/memory"
)

type rangeStub struct {
	ranges map[domain.Kind]domain.IdentifierRange
	err    map[domain.Kind]error
}

func (s rangeStub) IdentifierRange(_ context.Context, kind domain.Kind) (domain.IdentifierRange, error) {
	if err := s.err[kind]; err != nil {
		return domain.IdentifierRange{}, err
	}
	r := s.ranges[kind]
	r.Kind = kind
	return r, nil
}

func TestSynchronizer_RaisesWatermarksToStoredMaximum(t *testing.T) {
	ids := domain.NewIdentifierRegistry()
	src := rangeStub{ranges: map[domain.Kind]domain.IdentifierRange{
		domain.KindSaleOrder: {MinID: "SO1", MaxID: "SO5"},
		domain.KindCoffee:    {MinID: "C2", MaxID: "C40"},
		domain.KindDistrict:  {MinID: "1", MaxID: "12"},
	}}

	got, err := idsync.New(ids, src,
		idsync.WithMetrics(metrics.NewTradingMetricsWithRegisterer(prometheus.NewRegistry())),
	).Sync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(5), got[domain.KindSaleOrder])
	assert.Equal(t, int64(40), got[domain.KindCoffee])
	assert.Equal(t, int64(12), got[domain.KindDistrict])
	assert.Zero(t, got[domain.KindCustomer])

	assert.Equal(t, "SO6", ids.Allocator(domain.KindSaleOrder).Next().String())
	assert.Equal(t, "IO1", ids.Allocator(domain.KindImportOrder).Next().String())
}

func TestSynchronizer_NeverLowersWatermark(t *testing.T) {
	ids := domain.NewIdentifierRegistry()
	_, err := ids.Allocate(domain.KindCustomer, "Cus9")
	require.NoError(t, err)

	src := rangeStub{ranges: map[domain.Kind]domain.IdentifierRange{
		domain.KindCustomer: {MinID: "Cus1", MaxID: "Cus3"},
	}}
	got, err := idsync.New(ids, src, idsync.WithKinds(domain.KindCustomer)).Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(9), got[domain.KindCustomer])
}

func TestSynchronizer_PropagatesErrors(t *testing.T) {
	ids := domain.NewIdentifierRegistry()

	src := rangeStub{err: map[domain.Kind]error{domain.KindSupplier: domain.ErrDataSourceUnavailable}}
	_, err := idsync.New(ids, src, idsync.WithConcurrency(1)).Sync(context.Background())
	require.ErrorIs(t, err, domain.ErrDataSourceUnavailable)

	malformed := rangeStub{ranges: map[domain.Kind]domain.IdentifierRange{
		domain.KindSeller: {MinID: "SE1", MaxID: "SEx"},
	}}
	_, err = idsync.New(ids, malformed, idsync.WithKinds(domain.KindSeller)).Sync(context.Background())
	require.Error(t, err)
	assert.True(t, domain.IsInvalidIdentifier(err))
}

func TestSynchronizer_WithMemoryStore(t *testing.T) {
	ctx := context.Background()
	loaded := domain.NewIdentifierRegistry()
	store := memory.NewStore(loaded)

	typ, err := domain.NewTypeOfCoffee(loaded, "T7", "Arabica")
	require.NoError(t, err)
	require.NoError(t, store.Catalog().CreateCoffeeType(ctx, typ))

	fresh := domain.NewIdentifierRegistry()
	_, err = idsync.New(fresh, store).Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, "T8", fresh.Allocator(domain.KindTypeOfCoffee).Next().String())
}

func TestSynchronizer_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := idsync.New(domain.NewIdentifierRegistry(), memory.NewStore(domain.NewIdentifierRegistry())).Sync(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrDataSourceUnavailable) || errors.Is(err, context.Canceled))
}
