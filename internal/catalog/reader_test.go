package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-orders/internal/shared"
)

type stubReader struct {
	rows  map[int64]Snapshot
	calls [][]int64
	err   error
}

func (s *stubReader) LoadSnapshot(_ context.Context, ids []int64) ([]Snapshot, error) {
	s.calls = append(s.calls, ids)
	if s.err != nil {
		return nil, s.err
	}
	var out []Snapshot
	for _, id := range ids {
		if row, ok := s.rows[id]; ok {
			out = append(out, row)
		}
	}
	return out, nil
}

func newStub() *stubReader {
	return &stubReader{rows: map[int64]Snapshot{
		1: {Product: Product{ID: 1, Code: "P-1", Price: 10, IsActive: true}, Stock: StockLevel{ProductID: 1, Quantity: 5}},
		2: {Product: Product{ID: 2, Code: "P-2", Price: 20, IsActive: true}, Stock: StockLevel{ProductID: 2, Quantity: 0}},
	}}
}

func TestLoadReadsOnceWithUniqueSortedIDs(t *testing.T) {
	r := newStub()
	snaps, err := Load(context.Background(), r, []int64{2, 1, 2})
	require.NoError(t, err)
	require.Len(t, r.calls, 1)
	assert.Equal(t, []int64{1, 2}, r.calls[0])
	assert.Equal(t, int64(5), snaps[1].Stock.Quantity)
	assert.Equal(t, 20.0, snaps[2].Product.Price)
}

func TestLoadReportsEveryMissingProduct(t *testing.T) {
	_, err := Load(context.Background(), newStub(), []int64{1, 42, 7})
	require.ErrorIs(t, err, ErrProductNotFound)

	var missing *MissingProductsError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []int64{7, 42}, missing.IDs)
	assert.Equal(t, shared.KindNotFound, shared.KindOf(err))
	assert.Equal(t, "product not found: 7, 42", err.Error())
}

func TestLoadPropagatesReaderErrors(t *testing.T) {
	r := newStub()
	r.err = errors.New("connection reset")
	_, err := Load(context.Background(), r, []int64{1})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrProductNotFound)
}

func TestLoadEmpty(t *testing.T) {
	r := newStub()
	snaps, err := Load(context.Background(), r, nil)
	require.NoError(t, err)
	assert.Empty(t, snaps)
	assert.Empty(t, r.calls)
}
