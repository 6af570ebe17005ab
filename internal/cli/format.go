package cli

import (
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"github.com/lazypower/atlas/internal/scheduler"
)

// relDue describes a due date relative to today, e.g. "due today",
// "3 days overdue" or "2 weeks from now".
func relDue(due, today time.Time) string {
	due, today = scheduler.Day(due), scheduler.Day(today)
	switch {
	case due.Equal(today):
		return "due today"
	case due.Before(today):
		days := int(today.Sub(due).Hours() / 24)
		return english.Plural(days, "day", "") + " overdue"
	default:
		return humanize.RelTime(due, today, "ago", "from now")
	}
}

// relTime describes t relative to now, e.g. "3 hours ago".
func relTime(t, now time.Time) string {
	return humanize.RelTime(t, now, "ago", "from now")
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// clip shortens s to n runes for table cells.
func clip(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
