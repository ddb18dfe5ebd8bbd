package catalog

import (
	"fmt"
	"time"
)

// timeLayout is the fixed catalog timestamp format: month/day/year followed
// by a 24-hour clock time.
const timeLayout = "01/02/2006 15:04:05"

// Normalize parses each event's Date and Time strings into a single numeric
// timestamp (seconds since the Unix epoch). Timestamps are interpreted as
// UTC so repeated runs produce identical features regardless of the host
// timezone. A parse failure marks the event invalid instead of returning an
// error; Clean removes marked events afterwards, keeping the final dataset
// rectangular and fully populated.
func (c *Catalog) Normalize() {
	for i := range c.Events {
		ev := &c.Events[i]
		if !ev.Valid {
			continue
		}
		t, err := time.ParseInLocation(timeLayout, ev.Date+" "+ev.Time, time.UTC)
		if err != nil {
			ev.Valid = false
			continue
		}
		ev.Timestamp = float64(t.Unix())
	}
}

// Clean returns a new catalog containing only the valid events, in source
// order, with RowsDropped set to the number of events removed. The receiver
// is left unchanged.
func (c *Catalog) Clean() *Catalog {
	out := &Catalog{
		Path:     c.Path,
		RowsRead: c.RowsRead,
		Events:   make([]Event, 0, len(c.Events)),
	}
	for _, ev := range c.Events {
		if ev.Valid {
			out.Events = append(out.Events, ev)
		}
	}
	out.RowsDropped = len(c.Events) - len(out.Events)
	return out
}

// Stats summarizes a catalog for the console report.
type Stats struct {
	Rows    int
	Dropped int

	// First and Last bound the event timestamps. Zero when the catalog
	// has no valid events.
	First time.Time
	Last  time.Time

	// MinMagnitude and MaxMagnitude bound the event magnitudes.
	MinMagnitude float64
	MaxMagnitude float64
}

// Stats computes summary statistics over the catalog's valid events.
func (c *Catalog) Stats() Stats {
	s := Stats{Rows: c.Len(), Dropped: c.RowsDropped}
	seen := false
	var minTS, maxTS float64
	for _, ev := range c.Events {
		if !ev.Valid {
			continue
		}
		if !seen {
			minTS, maxTS = ev.Timestamp, ev.Timestamp
			s.MinMagnitude, s.MaxMagnitude = ev.Magnitude, ev.Magnitude
			seen = true
			continue
		}
		if ev.Timestamp < minTS {
			minTS = ev.Timestamp
		}
		if ev.Timestamp > maxTS {
			maxTS = ev.Timestamp
		}
		if ev.Magnitude < s.MinMagnitude {
			s.MinMagnitude = ev.Magnitude
		}
		if ev.Magnitude > s.MaxMagnitude {
			s.MaxMagnitude = ev.Magnitude
		}
	}
	if seen {
		s.First = time.Unix(int64(minTS), 0).UTC()
		s.Last = time.Unix(int64(maxTS), 0).UTC()
	}
	return s
}

// String renders the stats as a single report line.
func (s Stats) String() string {
	if s.Rows == 0 {
		return fmt.Sprintf("0 events (%d dropped)", s.Dropped)
	}
	return fmt.Sprintf("%d events (%d dropped), %s to %s, magnitude %.1f-%.1f",
		s.Rows, s.Dropped,
		s.First.Format("2006-01-02"), s.Last.Format("2006-01-02"),
		s.MinMagnitude, s.MaxMagnitude)
}
