package shared

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePeriod(t *testing.T) {
	p, err := ParsePeriod("2026-02")
	require.NoError(t, err)
	assert.Equal(t, "2026-02", p.String())
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), p.Start())
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), p.End())

	_, err = ParsePeriod("2026/02")
	require.ErrorIs(t, err, ErrInvalidPeriod)
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestPeriodBounds(t *testing.T) {
	p := Period{Year: 2026, Month: time.January}
	assert.True(t, p.Contains(time.Date(2026, 1, 31, 23, 59, 59, 0, time.UTC)))
	assert.False(t, p.Contains(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)))
	assert.False(t, p.Contains(time.Date(2025, 12, 31, 23, 0, 0, 0, time.UTC)))
	assert.Equal(t, Period{Year: 2025, Month: time.December}, p.Previous())
	assert.Equal(t, p, PeriodOf(time.Date(2026, 1, 15, 8, 0, 0, 0, time.UTC)))
}

func TestPagination(t *testing.T) {
	p := NewPagination(3, 25, 0).WithTotal(60)
	assert.Equal(t, 50, p.Offset())
	assert.Equal(t, 3, p.TotalPages)
	assert.Equal(t, 20, NewPagination(0, 0, 0).PerPage)
}
