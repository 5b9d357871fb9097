package backtest

import (
	"sort"

	"github.com/tickerlens/tickerlens/internal/finance"
)

// Calendar is the set of trading sessions observed across every loaded
// price series. Dates are YYYY-MM-DD strings, which order lexically.
type Calendar struct {
	sessions []string
	index    map[string]int
}

// NewCalendar unions the dates of the given series.
func NewCalendar(series ...[]finance.PriceBar) *Calendar {
	seen := map[string]struct{}{}
	for _, bars := range series {
		for _, bar := range bars {
			if bar.Date != "" {
				seen[bar.Date] = struct{}{}
			}
		}
	}
	sessions := make([]string, 0, len(seen))
	for d := range seen {
		sessions = append(sessions, d)
	}
	sort.Strings(sessions)

	index := make(map[string]int, len(sessions))
	for i, d := range sessions {
		index[d] = i
	}
	return &Calendar{sessions: sessions, index: index}
}

// Sessions returns the ordered session dates.
func (c *Calendar) Sessions() []string {
	return append([]string(nil), c.sessions...)
}

// Len returns the session count.
func (c *Calendar) Len() int { return len(c.sessions) }

// AlignNextSession maps an anchor date onto the calendar: the date itself
// when it is a session, otherwise the smallest session after it. Shifted
// reports whether the anchor moved. Anchors past the loaded window fail.
func (c *Calendar) AlignNextSession(date string) (aligned string, shifted bool, err error) {
	if _, ok := c.index[date]; ok {
		return date, false, nil
	}
	i := sort.SearchStrings(c.sessions, date)
	if i >= len(c.sessions) {
		return "", false, errf(CodeAnchorOutOfRange,
			"anchor %s is beyond the loaded price window", date)
	}
	return c.sessions[i], true, nil
}

// Offset returns the session n steps after the given session. ok is false
// when the session is unknown or the step leaves the loaded window.
func (c *Calendar) Offset(session string, n int) (string, bool) {
	i, known := c.index[session]
	if !known {
		return "", false
	}
	j := i + n
	if j < 0 || j >= len(c.sessions) {
		return "", false
	}
	return c.sessions[j], true
}
