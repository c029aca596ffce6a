// Package simulate stands in for inference latency.
package simulate

import (
	"context"
	"time"
)

// Sleep blocks for d or until ctx is done, whichever comes first. A
// non-positive d returns immediately.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
