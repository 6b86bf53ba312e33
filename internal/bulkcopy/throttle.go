package bulkcopy

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

const refillInterval = 100 * time.Millisecond

// bandwidthLimiter is a byte token bucket shared by all copy workers.
type bandwidthLimiter struct {
	stopCh    chan struct{}
	tokens    int64
	capacity  int64
	perRefill int64
	mu        sync.Mutex
	closeOnce sync.Once
}

// newBandwidthLimiter creates a limiter for the given bytes per second, or nil
// when the rate is unlimited.
func newBandwidthLimiter(bytesPerSecond int64) *bandwidthLimiter {
	if bytesPerSecond <= 0 {
		return nil
	}

	perRefill := bytesPerSecond / int64(time.Second/refillInterval)
	if perRefill < 1 {
		perRefill = 1
	}

	bl := &bandwidthLimiter{
		tokens:    bytesPerSecond,
		capacity:  bytesPerSecond,
		perRefill: perRefill,
		stopCh:    make(chan struct{}),
	}

	go bl.refill()

	return bl
}

// wait blocks until n bytes may be written or the context is canceled.
func (bl *bandwidthLimiter) wait(ctx context.Context, n int64) error {
	ticker := time.NewTicker(refillInterval)
	defer ticker.Stop()

	for n > 0 {
		n -= bl.take(n)
		if n == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("bandwidth limiter canceled: %w", ctx.Err())
		case <-ticker.C:
		}
	}
	return nil
}

// take removes up to n tokens and returns how many were taken.
func (bl *bandwidthLimiter) take(n int64) int64 {
	bl.mu.Lock()
	defer bl.mu.Unlock()

	got := min(n, bl.tokens)
	bl.tokens -= got
	return got
}

func (bl *bandwidthLimiter) refill() {
	ticker := time.NewTicker(refillInterval)
	defer ticker.Stop()

	for {
		select {
		case <-bl.stopCh:
			return
		case <-ticker.C:
			bl.mu.Lock()
			bl.tokens = min(bl.tokens+bl.perRefill, bl.capacity)
			bl.mu.Unlock()
		}
	}
}

// Close stops the refill goroutine.
func (bl *bandwidthLimiter) Close() {
	if bl == nil {
		return
	}
	bl.closeOnce.Do(func() { close(bl.stopCh) })
}

// throttledReader meters reads through the limiter and stops on cancellation.
type throttledReader struct {
	ctx     context.Context
	r       io.Reader
	limiter *bandwidthLimiter
}

func (t *throttledReader) Read(p []byte) (int, error) {
	if err := t.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := t.r.Read(p)
	if n > 0 && t.limiter != nil {
		if werr := t.limiter.wait(t.ctx, int64(n)); werr != nil {
			return n, werr
		}
	}
	return n, err
}
