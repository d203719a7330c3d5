package progress

import (
	"fmt"
	"math"
)

const (
	kib = 1024
	mib = 1024 * 1024
)

// FormatSize renders a byte count with binary prefixes: whole bytes below
// 1 KiB, one decimal KB below 1 MiB, one decimal MB above.
func FormatSize(bytes int64) string {
	switch {
	case bytes < kib:
		return fmt.Sprintf("%d B", bytes)
	case bytes < mib:
		return fmt.Sprintf("%.1f KB", float64(bytes)/kib)
	default:
		return fmt.Sprintf("%.1f MB", float64(bytes)/mib)
	}
}

// FormatETA renders a duration in seconds as hours and minutes, minutes and
// seconds or seconds depending on its magnitude.
func FormatETA(seconds float64) string {
	s := int64(math.Floor(seconds))
	switch {
	case seconds > 3600:
		return fmt.Sprintf("%dh %dm", s/3600, (s%3600)/60)
	case seconds > 60:
		return fmt.Sprintf("%dm %ds", s/60, s%60)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
