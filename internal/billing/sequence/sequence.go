// Package sequence issues per-company document numbers.
package sequence

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-billing/internal/platform/db"
)

// Kind selects the counter.
type Kind string

const (
	KindInvoice Kind = "invoice"
	KindQuote   Kind = "quote"
)

// Default prefixes used when a company has no settings row yet.
const (
	DefaultInvoicePrefix = "INV"
	DefaultQuotePrefix   = "QUO"
)

// Store atomically increments a company counter and returns the value issued.
type Store interface {
	Increment(ctx context.Context, companyID int64, kind Kind) (prefix string, issued int64, err error)
}

// Generator formats numbers drawn from a Store.
type Generator struct {
	store Store
}

// NewGenerator constructs a Generator.
func NewGenerator(store Store) *Generator {
	return &Generator{store: store}
}

// NextNumber issues the next number for companyID, e.g. "INV-0042". Numbers
// are never reused.
func (g *Generator) NextNumber(ctx context.Context, companyID int64, kind Kind) (string, error) {
	if kind != KindInvoice && kind != KindQuote {
		return "", fmt.Errorf("sequence: unknown kind %q", kind)
	}
	prefix, issued, err := g.store.Increment(ctx, companyID, kind)
	if err != nil {
		return "", fmt.Errorf("sequence: next %s number: %w", kind, err)
	}
	return Format(prefix, issued), nil
}

// Format renders prefix and counter, zero-padded to four digits.
func Format(prefix string, n int64) string {
	return fmt.Sprintf("%s-%04d", prefix, n)
}

// PGStore keeps counters on company_settings. The upsert takes the row lock,
// so concurrent draws for one company serialize. It runs on the transaction
// carried by ctx, so a draw commits or rolls back with its document.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs a PGStore.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const incrementInvoice = `
INSERT INTO company_settings (company_id, next_invoice_number)
VALUES ($1, 2)
ON CONFLICT (company_id) DO UPDATE
    SET next_invoice_number = company_settings.next_invoice_number + 1,
        updated_at = NOW()
RETURNING invoice_prefix, next_invoice_number - 1`

const incrementQuote = `
INSERT INTO company_settings (company_id, next_quote_number)
VALUES ($1, 2)
ON CONFLICT (company_id) DO UPDATE
    SET next_quote_number = company_settings.next_quote_number + 1,
        updated_at = NOW()
RETURNING quote_prefix, next_quote_number - 1`

// Increment implements Store.
func (s *PGStore) Increment(ctx context.Context, companyID int64, kind Kind) (string, int64, error) {
	query := incrementInvoice
	if kind == KindQuote {
		query = incrementQuote
	}
	var (
		prefix string
		issued int64
	)
	if err := db.Conn(ctx, s.pool).QueryRow(ctx, query, companyID).Scan(&prefix, &issued); err != nil {
		return "", 0, err
	}
	return prefix, issued, nil
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu       sync.Mutex
	next     map[memKey]int64
	prefixes map[memKey]string
}

type memKey struct {
	companyID int64
	kind      Kind
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{next: map[memKey]int64{}, prefixes: map[memKey]string{}}
}

// SetPrefix overrides the prefix for a company and kind.
func (m *MemoryStore) SetPrefix(companyID int64, kind Kind, prefix string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefixes[memKey{companyID, kind}] = prefix
}

// Increment implements Store.
func (m *MemoryStore) Increment(_ context.Context, companyID int64, kind Kind) (string, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := memKey{companyID, kind}
	if m.next[key] == 0 {
		m.next[key] = 1
	}
	issued := m.next[key]
	m.next[key]++
	prefix, ok := m.prefixes[key]
	if !ok {
		prefix = DefaultInvoicePrefix
		if kind == KindQuote {
			prefix = DefaultQuotePrefix
		}
	}
	return prefix, issued, nil
}
