package ili9325

import (
	"context"
	"time"
)

// Run flushes reported damage until ctx is done.
//
// After a touch wakes it, Run waits one period of Opts.Rate so that bursts
// of drawing coalesce into a single pass, then flushes. When ctx is done it
// runs a last pass and returns ctx.Err(). Only one Run should be active per
// device; Flush and Draw may still be called alongside it.
func (d *Dev) Run(ctx context.Context) error {
	t := time.NewTimer(d.delay)
	t.Stop()
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			d.Flush()
			return ctx.Err()
		case <-d.wake:
		}

		t.Reset(d.delay)
		select {
		case <-ctx.Done():
			d.Flush()
			return ctx.Err()
		case <-t.C:
		}
		d.Flush()
	}
}
