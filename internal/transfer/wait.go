package transfer

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Veraticus/courier/internal/common"
)

// DefaultPollInterval is how often WaitForDestination checks for the destination.
const DefaultPollInterval = 2 * time.Second

// WaitForDestination blocks until path exists as a directory or ctx is done.
// It is used for removable destinations that may not be mounted yet.
func WaitForDestination(ctx context.Context, path string, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		info, err := os.Stat(path)
		if err == nil {
			if !info.IsDir() {
				return common.Permanent(fmt.Errorf("%w: %s is not a directory", common.ErrDestinationUnavailable, path))
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
