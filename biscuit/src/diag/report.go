package diag

import (
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Report renders every counter's current value, thousands-separated for
// readability on a long-running kernel (stats.go's own Stats2String was
// a debug-build-only printf; this is its always-on, locale-aware
// successor built on the teacher's golang.org/x/text dependency, which
// otherwise had no caller in this port).
func Report(c *Counters) string {
	p := message.NewPrinter(language.English)
	snap := c.Snapshot()

	order := make([]Name, 0, numCounters)
	for n := range snap {
		order = append(order, n)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	var b strings.Builder
	for _, n := range order {
		p.Fprintf(&b, "%-14s %v\n", n.String(), number.Decimal(snap[n]))
	}
	return b.String()
}
