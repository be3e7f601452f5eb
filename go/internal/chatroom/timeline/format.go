package timeline

import "fmt"

// FormatCountdown renders a second count as HH:MM:SS. Hours are not capped at 24.
func FormatCountdown(sec int64) string {
	if sec < 0 {
		sec = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", sec/3600, (sec%3600)/60, sec%60)
}
