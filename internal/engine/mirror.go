package engine

import (
	"context"
	"time"
)

const mirrorTimeout = 5 * time.Second

// mirror runs a storage write on the worker pool, fire-and-forget. Room
// state in memory is authoritative; a failed or shed mirror write costs
// durability, never correctness, so it is logged and dropped.
func (e *Engine) mirror(desc string, fn func(ctx context.Context) error) {
	err := e.pool.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			e.log.Warnf("storage mirror (%s): %v", desc, err)
		}
	})
	if err != nil {
		e.log.Warnf("storage mirror (%s) shed: %v", desc, err)
	}
}
