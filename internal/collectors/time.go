package collectors

import "time"

var timeLayouts = []string{time.RFC3339, "2006-01-02", "2006-01-02T15:04:05"}

func parseTimeLenient(s string) time.Time {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
