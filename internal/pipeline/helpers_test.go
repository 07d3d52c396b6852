package pipeline

import "time"

func timeRFC3339(millis int64) string {
	return time.UnixMilli(millis).UTC().Format(time.RFC3339)
}
