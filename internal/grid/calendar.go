package grid

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// Calendar is the fixed inclusive date range the system serves.
type Calendar struct {
	start time.Time
	end   time.Time
	days  []string
	index map[string]int
}

// NewCalendar parses two YYYY-MM-DD keys into a Calendar.
func NewCalendar(start, end string) (*Calendar, error) {
	s, err := time.Parse(dateLayout, start)
	if err != nil {
		return nil, fmt.Errorf("invalid calendar start: %w", err)
	}
	e, err := time.Parse(dateLayout, end)
	if err != nil {
		return nil, fmt.Errorf("invalid calendar end: %w", err)
	}
	if e.Before(s) {
		return nil, fmt.Errorf("calendar end %s is before start %s", end, start)
	}

	c := &Calendar{start: s, end: e, index: make(map[string]int)}
	for d := s; !d.After(e); d = d.AddDate(0, 0, 1) {
		key := d.Format(dateLayout)
		c.index[key] = len(c.days)
		c.days = append(c.days, key)
	}
	return c, nil
}

// Start returns the first date key.
func (c *Calendar) Start() string { return c.days[0] }

// End returns the last date key.
func (c *Calendar) End() string { return c.days[len(c.days)-1] }

// Days lists every date key in ascending order.
func (c *Calendar) Days() []string {
	out := make([]string, len(c.days))
	copy(out, c.days)
	return out
}

// Contains reports whether dateKey is inside the range.
func (c *Calendar) Contains(dateKey string) bool {
	_, ok := c.index[dateKey]
	return ok
}

// Months lists the month keys (YYYY-MM) touched by the range, ascending.
func (c *Calendar) Months() []string {
	var months []string
	for _, d := range c.days {
		m := MonthKey(d)
		if len(months) == 0 || months[len(months)-1] != m {
			months = append(months, m)
		}
	}
	return months
}

// MonthAt returns the month key at index i of Months.
func (c *Calendar) MonthAt(i int) (string, error) {
	months := c.Months()
	if i < 0 || i >= len(months) {
		return "", fmt.Errorf("month index %d: %w", i, ErrOutOfRange)
	}
	return months[i], nil
}

// MonthKey returns the YYYY-MM prefix of a date key.
func MonthKey(dateKey string) string {
	if len(dateKey) < 7 {
		return dateKey
	}
	return dateKey[:7]
}
