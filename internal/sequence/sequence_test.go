package sequence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-procure/internal/shared"
)

func fixedClock(ts string) func() time.Time {
	return func() time.Time {
		t, _ := time.Parse(time.RFC3339, ts)
		return t
	}
}

func TestNextFormatsPerKindAndDay(t *testing.T) {
	store := NewMemoryStore()
	gen := NewGenerator(WithClock(fixedClock("2024-03-05T23:59:00Z")))

	first, err := gen.Next(context.Background(), store, KindPurchaseOrder)
	require.NoError(t, err)
	require.Equal(t, "PO-20240305-0001", first)

	second, err := gen.Next(context.Background(), store, KindPurchaseOrder)
	require.NoError(t, err)
	require.Equal(t, "PO-20240305-0002", second)

	gr, err := gen.Next(context.Background(), store, KindGoodsReceipt)
	require.NoError(t, err)
	require.Equal(t, "GR-20240305-0001", gr)
}

func TestNextUsesUTCDay(t *testing.T) {
	store := NewMemoryStore()
	loc := time.FixedZone("WIB", 7*3600)
	gen := NewGenerator(WithClock(func() time.Time {
		return time.Date(2024, 3, 6, 1, 0, 0, 0, loc)
	}))

	code, err := gen.Next(context.Background(), store, KindVendorBill)
	require.NoError(t, err)
	require.Equal(t, "BILL-20240305-0001", code)
}

func TestNextSkipsUsedCodes(t *testing.T) {
	store := NewMemoryStore()
	store.MarkUsed("PR-20240305-0001")
	store.MarkUsed("PR-20240305-0002")
	gen := NewGenerator(WithClock(fixedClock("2024-03-05T08:00:00Z")))

	code, err := gen.Next(context.Background(), store, KindPurchaseRequest)
	require.NoError(t, err)
	require.Equal(t, "PR-20240305-0003", code)
}

func TestNextFailsAfterRetryBudget(t *testing.T) {
	store := NewMemoryStore()
	for _, code := range []string{"RET-20240305-0001", "RET-20240305-0002", "RET-20240305-0003"} {
		store.MarkUsed(code)
	}
	gen := NewGenerator(WithClock(fixedClock("2024-03-05T08:00:00Z")), WithMaxAttempts(3))

	_, err := gen.Next(context.Background(), store, KindPurchaseReturn)
	require.Error(t, err)
	require.Equal(t, shared.KindCodeGeneration, shared.KindOf(err))
	require.True(t, errors.Is(err, ErrExhausted))
}

type failingStore struct {
	increments int
	incErr     error
	existsErr  error
}

func (s *failingStore) Increment(context.Context, Kind, string) (int64, error) {
	s.increments++
	if s.incErr != nil {
		return 0, s.incErr
	}
	return int64(s.increments), nil
}

func (s *failingStore) Exists(context.Context, Kind, string) (bool, error) {
	return false, s.existsErr
}

func TestNextReturnsStoreErrorsWithoutRetry(t *testing.T) {
	aborted := errors.New("current transaction is aborted")
	gen := NewGenerator(WithClock(fixedClock("2024-03-05T08:00:00Z")), WithMaxAttempts(5))

	store := &failingStore{incErr: aborted}
	_, err := gen.Next(context.Background(), store, KindPurchaseOrder)
	require.ErrorIs(t, err, aborted)
	require.NotEqual(t, shared.KindCodeGeneration, shared.KindOf(err))
	require.Equal(t, 1, store.increments)

	store = &failingStore{existsErr: aborted}
	_, err = gen.Next(context.Background(), store, KindPurchaseOrder)
	require.ErrorIs(t, err, aborted)
	require.Equal(t, 1, store.increments)
}

func TestNextConcurrentCallsNeverShareSuffix(t *testing.T) {
	store := NewMemoryStore()
	gen := NewGenerator(WithClock(fixedClock("2024-03-05T08:00:00Z")))

	const workers = 64
	codes := make(chan string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			code, err := gen.Next(context.Background(), store, KindGoodsReceipt)
			if err != nil {
				t.Error(err)
				return
			}
			codes <- code
		}()
	}
	wg.Wait()
	close(codes)

	seen := make(map[string]struct{}, workers)
	for code := range codes {
		_, dup := seen[code]
		require.False(t, dup, "duplicate code %s", code)
		seen[code] = struct{}{}
	}
	require.Len(t, seen, workers)
}

func TestNextHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewGenerator().Next(ctx, NewMemoryStore(), KindPurchaseOrder)
	require.ErrorIs(t, err, context.Canceled)
}

func TestParseRoundTrip(t *testing.T) {
	kind, day, n, err := Parse("RET-20240305-0012")
	require.NoError(t, err)
	require.Equal(t, KindPurchaseReturn, kind)
	require.Equal(t, "20240305", day.Format(dayLayout))
	require.EqualValues(t, 12, n)

	_, _, _, err = Parse("garbage")
	require.Error(t, err)
}
