//go:build !linux

package retention

import "time"

func birthTime(string) (time.Time, bool) {
	return time.Time{}, false
}
