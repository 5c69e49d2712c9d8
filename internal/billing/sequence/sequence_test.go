package sequence

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct{ err error }

func (f failingStore) Increment(context.Context, int64, Kind) (string, int64, error) {
	return "", 0, f.err
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "INV-0001", Format("INV", 1))
	assert.Equal(t, "QUO-0042", Format("QUO", 42))
	assert.Equal(t, "INV-12345", Format("INV", 12345))
}

func TestNextNumberPerCompanyAndKind(t *testing.T) {
	store := NewMemoryStore()
	store.SetPrefix(2, KindInvoice, "FAC")
	gen := NewGenerator(store)
	ctx := context.Background()

	n, err := gen.NextNumber(ctx, 1, KindInvoice)
	require.NoError(t, err)
	assert.Equal(t, "INV-0001", n)

	n, _ = gen.NextNumber(ctx, 1, KindInvoice)
	assert.Equal(t, "INV-0002", n)

	n, _ = gen.NextNumber(ctx, 1, KindQuote)
	assert.Equal(t, "QUO-0001", n)

	n, _ = gen.NextNumber(ctx, 2, KindInvoice)
	assert.Equal(t, "FAC-0001", n)
}

func TestNextNumberConcurrentUnique(t *testing.T) {
	gen := NewGenerator(NewMemoryStore())
	ctx := context.Background()
	const workers = 50

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]struct{}, workers)
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := gen.NextNumber(ctx, 7, KindInvoice)
			assert.NoError(t, err)
			mu.Lock()
			seen[n] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, seen, workers)
	for i := int64(1); i <= workers; i++ {
		assert.Contains(t, seen, Format("INV", i))
	}
}

func TestNextNumberSurfacesStoreErrors(t *testing.T) {
	boom := errors.New("counter row locked")
	gen := NewGenerator(failingStore{err: boom})

	_, err := gen.NextNumber(context.Background(), 1, KindQuote)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "next quote number")
}

func TestNextNumberRejectsUnknownKind(t *testing.T) {
	gen := NewGenerator(NewMemoryStore())
	_, err := gen.NextNumber(context.Background(), 1, Kind("credit_note"))
	assert.Error(t, err)
}
