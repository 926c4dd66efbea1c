package rmgr

import (
	"strconv"
	"time"
)

func formatInt(v int) string { return strconv.Itoa(v) }

// retryAfterSeconds arredonda para cima; Retry-After não aceita fração e 0
// faz o cliente tentar de novo na hora.
func retryAfterSeconds(d time.Duration) string {
	s := int((d + time.Second - 1) / time.Second)
	if s < 1 {
		s = 1
	}
	return formatInt(s)
}
