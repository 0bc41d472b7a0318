// Package rowtime maps schedule-table row indices to wall-clock minutes.
// Source tables often omit lunch rows, and a row's leading cell may carry
// an absolute "H:MM" time, a bare hour, or a bare minute-within-the-hour —
// the mapper disambiguates using the invariant that mapped times must
// strictly increase with row index.
package rowtime

import (
	"regexp"
	"strconv"
	"strings"
)

// Row is one row's leading-cell text plus whether the row carries at
// least one schedule anchor (used for interpolating otherwise-blank rows)
type Row struct {
	Text      string
	HasAnchor bool
}

var absoluteTimeRe = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

// Mapping is a row_index -> minute-of-day map, with extrapolation for
// row indices outside the built range
type Mapping struct {
	byRow    map[int]int
	interval int
}

// Build walks rows in order, applying the parsing states described by the
// row-time mapping contract, and returns the resulting Mapping
func Build(rows []Row, interval int) *Mapping {
	m := &Mapping{byRow: make(map[int]int), interval: interval}

	currentHour := -1
	haveHour := false
	previous := -1

	for idx, row := range rows {
		text := strings.TrimSpace(row.Text)

		if g := absoluteTimeRe.FindStringSubmatch(text); g != nil {
			h, _ := strconv.Atoi(g[1])
			mm, _ := strconv.Atoi(g[2])
			t := h*60 + mm
			currentHour = h
			haveHour = true
			m.byRow[idx] = t
			previous = t
			continue
		}

		if v, ok := parseBareInt(text); ok {
			if !haveHour {
				if v >= 0 && v <= 23 {
					t := v * 60
					currentHour = v
					haveHour = true
					m.byRow[idx] = t
					previous = t
				}
				continue
			}
			if v >= 0 && v < 60 {
				candidate := currentHour*60 + v
				switch {
				case candidate > previous:
					m.byRow[idx] = candidate
					previous = candidate
				case v > currentHour && v <= 23:
					t := v * 60
					currentHour = v
					m.byRow[idx] = t
					previous = t
				case v == currentHour && v*60 > previous:
					t := v * 60
					m.byRow[idx] = t
					previous = t
				}
			}
			continue
		}

		if text == "" && row.HasAnchor && haveHour && previous >= 0 {
			t := previous + interval
			m.byRow[idx] = t
			previous = t
			continue
		}

		// row is not part of the grid; skip
	}

	return m
}

// At returns the wall-clock minute for rowIndex, extrapolating from the
// nearest mapped row when rowIndex was never directly mapped. ok is false
// only when the mapping has no rows at all
func (m *Mapping) At(rowIndex int) (minute int, ok bool) {
	if t, found := m.byRow[rowIndex]; found {
		return t, true
	}
	if len(m.byRow) == 0 {
		return 0, false
	}
	nearestRow, nearestTime := 0, 0
	best := -1
	for row, t := range m.byRow {
		d := row - rowIndex
		if d < 0 {
			d = -d
		}
		if best == -1 || d < best {
			best, nearestRow, nearestTime = d, row, t
		}
	}
	return nearestTime + (rowIndex-nearestRow)*m.interval, true
}

// Len reports how many rows were directly mapped (as opposed to
// extrapolated on lookup)
func (m *Mapping) Len() int {
	return len(m.byRow)
}

func parseBareInt(text string) (int, bool) {
	if text == "" {
		return 0, false
	}
	for _, r := range text {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	v, err := strconv.Atoi(text)
	if err != nil {
		return 0, false
	}
	return v, true
}
