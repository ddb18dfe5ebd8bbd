package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// This file loads the earthquake catalog CSV and narrows it to the six
// columns the pipeline consumes. Loading is tolerant at the cell level:
// a numeric cell that fails to parse marks its row invalid instead of
// aborting the whole load, and Clean drops marked rows later. Only
// structural problems (missing file, missing required column, ragged
// records) abort the load with an error.

// ErrNoValidRows is returned by downstream stages when a cleaned catalog
// contains no usable events, for example when every row failed date parsing.
var ErrNoValidRows = errors.New("catalog: no valid rows after cleaning")

// requiredColumns are the catalog columns the pipeline consumes, in
// selection order. Header matching is case-insensitive.
var requiredColumns = []string{"date", "time", "latitude", "longitude", "depth", "magnitude"}

// Event is one catalog row. Events have no primary key; identity is the
// positional row index within the source file.
type Event struct {
	// Date and Time hold the raw strings as read, e.g. "01/02/1965" and
	// "13:44:18". They are consumed by Normalize and carry no meaning
	// after cleaning.
	Date string
	Time string

	// Latitude and Longitude in degrees.
	Latitude  float64
	Longitude float64

	// Depth in kilometers.
	Depth float64

	// Magnitude is the event magnitude (scale as reported by the catalog).
	Magnitude float64

	// Timestamp is seconds since the Unix epoch, populated by Normalize.
	Timestamp float64

	// Valid is false once any cell of the row failed to parse. Invalid
	// events are retained until Clean so drop counts can be reported.
	Valid bool
}

// Catalog holds the loaded events plus source bookkeeping.
type Catalog struct {
	// Path of the source CSV.
	Path string

	// Events in source row order.
	Events []Event

	// RowsRead is the number of data rows in the source file.
	RowsRead int

	// RowsDropped is the number of invalid rows removed by Clean. Zero
	// until Clean has run.
	RowsDropped int
}

// Load reads the catalog CSV at path and selects the Date, Time, Latitude,
// Longitude, Depth and Magnitude columns, preserving row order. It returns
// an error if the file cannot be opened or a required column is missing
// from the header. Rows whose numeric cells fail to parse are marked
// invalid rather than reported as errors.
func Load(path string) (*Catalog, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.TrimSpace(strings.ToLower(col))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := colIndex[col]; !ok {
			return nil, fmt.Errorf("required column %q not found in %s", col, path)
		}
	}

	c := &Catalog{Path: path}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d of %s: %w", c.RowsRead+1, path, err)
		}
		c.Events = append(c.Events, eventFromRecord(record, colIndex))
		c.RowsRead++
	}

	return c, nil
}

// eventFromRecord selects the six catalog columns from a raw record. Any
// numeric cell that fails to parse, or parses to a non-finite value, marks
// the event invalid.
func eventFromRecord(record []string, colIndex map[string]int) Event {
	ev := Event{
		Date:  strings.TrimSpace(record[colIndex["date"]]),
		Time:  strings.TrimSpace(record[colIndex["time"]]),
		Valid: true,
	}

	fields := []struct {
		name string
		dst  *float64
	}{
		{"latitude", &ev.Latitude},
		{"longitude", &ev.Longitude},
		{"depth", &ev.Depth},
		{"magnitude", &ev.Magnitude},
	}
	for _, f := range fields {
		v, err := parseFloat(record[colIndex[f.name]])
		if err != nil || !finite(v) {
			ev.Valid = false
			continue
		}
		*f.dst = v
	}

	return ev
}

// Len returns the number of events in the catalog.
func (c *Catalog) Len() int { return len(c.Events) }

func parseFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty string")
	}
	return strconv.ParseFloat(s, 64)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
