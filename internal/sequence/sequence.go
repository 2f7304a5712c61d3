// Package sequence allocates human-readable document codes of the form
// KIND-YYYYMMDD-NNNN, where NNNN is the 1-based ordinal within the kind and
// UTC day.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-procure/internal/shared"
)

// Kind is the code prefix of a document type.
type Kind string

const (
	KindPurchaseRequest Kind = "PR"
	KindPurchaseOrder   Kind = "PO"
	KindGoodsReceipt    Kind = "GR"
	KindPurchaseReturn  Kind = "RET"
	KindVendorBill      Kind = "BILL"
)

// DefaultMaxAttempts bounds collision retries.
const DefaultMaxAttempts = 5

const dayLayout = "20060102"

// ErrExhausted is wrapped into CodeGenerationFailed after the retry budget.
var ErrExhausted = errors.New("sequence: retry budget exhausted")

// Store backs the per-partition counters. Increment must be atomic per
// (kind, day); Exists checks the document table for an already used code.
type Store interface {
	Increment(ctx context.Context, kind Kind, day string) (int64, error)
	Exists(ctx context.Context, kind Kind, code string) (bool, error)
}

// Generator produces codes from an injected store.
type Generator struct {
	now         func() time.Time
	maxAttempts int
}

// Option customises a Generator.
type Option func(*Generator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		if now != nil {
			g.now = now
		}
	}
}

// WithMaxAttempts overrides the collision retry bound.
func WithMaxAttempts(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

// NewGenerator constructs a Generator.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{now: time.Now, maxAttempts: DefaultMaxAttempts}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Next allocates the next free code for kind.
func (g *Generator) Next(ctx context.Context, store Store, kind Kind) (string, error) {
	if kind == "" {
		return "", shared.Validation("sequence kind required")
	}
	day := g.now().UTC().Format(dayLayout)
	// Only collisions are retried. A failed statement aborts the caller's
	// transaction, so store errors go straight back.
	var last string
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, err := store.Increment(ctx, kind, day)
		if err != nil {
			return "", fmt.Errorf("sequence: increment %s: %w", kind, err)
		}
		code := Format(kind, day, n)
		taken, err := store.Exists(ctx, kind, code)
		if err != nil {
			return "", fmt.Errorf("sequence: check %s: %w", code, err)
		}
		if !taken {
			return code, nil
		}
		last = code
	}
	return "", shared.CodeGenerationFailed(string(kind), fmt.Errorf("%w: last tried %s", ErrExhausted, last))
}

// Format renders a code.
func Format(kind Kind, day string, n int64) string {
	return fmt.Sprintf("%s-%s-%04d", kind, day, n)
}

// Parse splits a code into its parts.
func Parse(code string) (Kind, time.Time, int64, error) {
	idx := strings.LastIndex(code, "-")
	if idx <= 0 {
		return "", time.Time{}, 0, fmt.Errorf("sequence: malformed code %q", code)
	}
	head, tail := code[:idx], code[idx+1:]
	dayIdx := strings.LastIndex(head, "-")
	if dayIdx <= 0 {
		return "", time.Time{}, 0, fmt.Errorf("sequence: malformed code %q", code)
	}
	day, err := time.Parse(dayLayout, head[dayIdx+1:])
	if err != nil {
		return "", time.Time{}, 0, fmt.Errorf("sequence: malformed day in %q: %w", code, err)
	}
	n, err := strconv.ParseInt(tail, 10, 64)
	if err != nil || n <= 0 {
		return "", time.Time{}, 0, fmt.Errorf("sequence: malformed ordinal in %q", code)
	}
	return Kind(head[:dayIdx]), day, n, nil
}
