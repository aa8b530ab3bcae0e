package orders

import (
	"fmt"
	"strings"
	"time"
)

const DefaultNumberPrefix = "ORD"

// Period is the counter bucket an order number is drawn from.
func Period(at time.Time) string {
	at = at.UTC()
	return fmt.Sprintf("%04d%02d", at.Year(), int(at.Month()))
}

// FormatOrderNumber renders e.g. ORD-202610-000042.
func FormatOrderNumber(prefix string, at time.Time, seq int64) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultNumberPrefix
	}
	return fmt.Sprintf("%s-%s-%06d", prefix, Period(at), seq)
}
