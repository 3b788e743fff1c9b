package report

import "context"

// Func receives events in process.
type Func func(ctx context.Context, ev Event) error

// Callback delivers events as function calls.
type Callback struct{ fn Func }

// NewCallback wraps fn. A nil fn discards events.
func NewCallback(fn Func) *Callback { return &Callback{fn: fn} }

func (c *Callback) Report(ctx context.Context, ev Event) error {
	if c.fn == nil {
		return nil
	}
	return c.fn(ctx, ev)
}

func (c *Callback) Close() error { return nil }
