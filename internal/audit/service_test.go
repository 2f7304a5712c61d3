package audit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	rows       []TimelineRow
	lastOffset int
	lastLimit  int
	lastFilter TimelineFilters
}

func (f *fakeRepo) Window(_ context.Context, filters TimelineFilters, offset, limit int) ([]TimelineRow, error) {
	f.lastFilter, f.lastOffset, f.lastLimit = filters, offset, limit
	if offset >= len(f.rows) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.rows) {
		end = len(f.rows)
	}
	return f.rows[offset:end], nil
}

func seedRows(n int) []TimelineRow {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	rows := make([]TimelineRow, n)
	for i := range rows {
		rows[i] = TimelineRow{
			ID:       int64(n - i),
			At:       base.Add(-time.Duration(i) * time.Minute),
			Actor:    "u-1",
			Action:   "procurement:approve",
			Entity:   "purchase_order",
			EntityID: fmt.Sprintf("PO-20250301-%04d", n-i),
		}
	}
	return rows
}

func TestTimelinePaging(t *testing.T) {
	repo := &fakeRepo{rows: seedRows(45)}
	svc := NewService(repo)

	first, err := svc.Timeline(context.Background(), TimelineFilters{})
	require.NoError(t, err)
	require.Len(t, first.Rows, 20)
	require.True(t, first.Paging.HasNext)
	require.Equal(t, 2, first.Paging.NextPage)
	require.Zero(t, first.Paging.PrevPage)
	require.Equal(t, 21, repo.lastLimit)

	last, err := svc.Timeline(context.Background(), TimelineFilters{Page: 3})
	require.NoError(t, err)
	require.Len(t, last.Rows, 5)
	require.False(t, last.Paging.HasNext)
	require.Equal(t, 2, last.Paging.PrevPage)
	require.Equal(t, 40, repo.lastOffset)
}

func TestTimelineClampsPageSize(t *testing.T) {
	repo := &fakeRepo{rows: seedRows(3)}
	res, err := NewService(repo).Timeline(context.Background(), TimelineFilters{PageSize: 500})
	require.NoError(t, err)
	require.Equal(t, 50, res.Paging.PageSize)
	require.Equal(t, 51, repo.lastLimit)
	require.Len(t, res.Rows, 3)
}

func TestTimelineEmptyIsNotNil(t *testing.T) {
	res, err := NewService(&fakeRepo{}).Timeline(context.Background(), TimelineFilters{Entity: "vendor_bill"})
	require.NoError(t, err)
	require.NotNil(t, res.Rows)
	require.Empty(t, res.Rows)
}

func TestExportReturnsAllRows(t *testing.T) {
	repo := &fakeRepo{rows: seedRows(75)}
	rows, err := NewService(repo).Export(context.Background(), TimelineFilters{})
	require.NoError(t, err)
	require.Len(t, rows, 75)
	require.Zero(t, repo.lastOffset)
}

func TestServiceWithoutRepository(t *testing.T) {
	_, err := NewService(nil).Timeline(context.Background(), TimelineFilters{})
	require.Error(t, err)
}
