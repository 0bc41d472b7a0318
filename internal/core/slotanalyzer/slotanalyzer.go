// Package slotanalyzer computes contiguous bookable-slot blocks from raw
// minute-of-day timestamps. Every function here is pure: no I/O, no clock.
package slotanalyzer

import (
	"fmt"
	"sort"
)

// candidateIntervals are the only slot granularities the source systems use
var candidateIntervals = []int{5, 10, 15, 20, 30}

// TimeRange is an inclusive [StartMinute, EndMinute] run of slot time, where
// EndMinute is the last slot's own timestamp; FormatTimeRange adds one
// interval to it when rendering
type TimeRange struct {
	StartMinute int
	EndMinute   int
}

// StaffAnalysis is the derived availability picture for one staff member
type StaffAnalysis struct {
	Staff            string
	Blocks           int
	Times            []string
	ThresholdMinutes int
	RawSlotTimes     []int
	SlotInterval     int
}

// DetectInterval computes the modal positive gap between consecutive sorted
// times and snaps it to the nearest of {5,10,15,20,30}. With fewer than two
// observations there's nothing to detect, so the caller-supplied default wins
func DetectInterval(times []int, def int) int {
	if len(times) < 2 {
		return def
	}
	sorted := append([]int(nil), times...)
	sort.Ints(sorted)

	counts := make(map[int]int)
	for i := 1; i < len(sorted); i++ {
		gap := sorted[i] - sorted[i-1]
		if gap > 0 {
			counts[gap]++
		}
	}
	if len(counts) == 0 {
		return def
	}

	modalGap, best := 0, -1
	for gap, n := range counts {
		if n > best || (n == best && gap < modalGap) {
			modalGap, best = gap, n
		}
	}
	return snapInterval(modalGap)
}

func snapInterval(gap int) int {
	nearest := candidateIntervals[0]
	bestDist := abs(gap - nearest)
	for _, c := range candidateIntervals[1:] {
		if d := abs(gap - c); d < bestDist {
			nearest, bestDist = c, d
		}
	}
	return nearest
}

// CountConsecutiveBlocks walks the sorted times and groups maximal runs whose
// successive elements differ by exactly interval. A run contributes a
// TimeRange only once it reaches requiredRun in length
func CountConsecutiveBlocks(times []int, requiredRun, interval int) (int, []TimeRange) {
	if len(times) == 0 || requiredRun <= 0 {
		return 0, nil
	}
	sorted := append([]int(nil), times...)
	sort.Ints(sorted)

	var ranges []TimeRange
	count := 0

	runStart := sorted[0]
	runLen := 1
	flush := func(last int) {
		if runLen >= requiredRun {
			ranges = append(ranges, TimeRange{StartMinute: runStart, EndMinute: last})
			count++
		}
	}
	for i := 1; i < len(sorted); i++ {
		if sorted[i] == sorted[i-1]+interval {
			runLen++
			continue
		}
		flush(sorted[i-1])
		runStart = sorted[i]
		runLen = 1
	}
	flush(sorted[len(sorted)-1])

	return count, ranges
}

// Count30MinBlocks sums floor(runLength/requiredRun) over every maximal run
// of consecutive (interval-spaced) timestamps. A 12-wide run of 5-minute
// cells is two 30-minute blocks, not one — this is the authoritative block
// count for availability decisions, distinct from CountConsecutiveBlocks
func Count30MinBlocks(times []int, interval, requiredRun int) int {
	if len(times) == 0 || requiredRun <= 0 {
		return 0
	}
	sorted := append([]int(nil), times...)
	sort.Ints(sorted)

	total := 0
	runLen := 1
	flush := func() { total += runLen / requiredRun }
	for i := 1; i < len(sorted); i++ {
		if sorted[i] == sorted[i-1]+interval {
			runLen++
			continue
		}
		flush()
		runLen = 1
	}
	flush()
	return total
}

// MinutesToTimeStr renders a minute-of-day as "H:MM"
func MinutesToTimeStr(minutes int) string {
	return fmt.Sprintf("%d:%02d", minutes/60, minutes%60)
}

// FormatTimeRange renders start..end+interval as "H:MM-H:MM". The interval
// is added to the end because EndMinute, as produced by
// CountConsecutiveBlocks, names the last occupied slot rather than the
// moment the slot frees up
func FormatTimeRange(startMinute, endMinute, interval int) string {
	return MinutesToTimeStr(startMinute) + "-" + MinutesToTimeStr(endMinute+interval)
}

// AnalyzeStaff derives the full StaffAnalysis for one staff member's raw
// slot timestamps. requiredConsecutive is accepted for call-site symmetry
// with the per-backend settings it's drawn from but, as in
// analyze_doctor_slots, is not itself used: both the formatted ranges and
// the block count key off the threshold-derived requiredRun below
func AnalyzeStaff(name string, times []int, requiredConsecutive, defaultInterval, thresholdMinutes int) StaffAnalysis {
	raw := append([]int(nil), times...)
	sort.Ints(raw)

	interval := DetectInterval(raw, defaultInterval)
	requiredRun := thresholdMinutes / interval
	if requiredRun < 1 {
		requiredRun = 1
	}

	_, ranges := CountConsecutiveBlocks(raw, requiredRun, interval)
	blocks := Count30MinBlocks(raw, interval, requiredRun)

	formatted := make([]string, 0, len(ranges))
	for _, r := range ranges {
		formatted = append(formatted, FormatTimeRange(r.StartMinute, r.EndMinute, interval))
	}

	return StaffAnalysis{
		Staff:            name,
		Blocks:           blocks,
		Times:            formatted,
		ThresholdMinutes: thresholdMinutes,
		RawSlotTimes:     raw,
		SlotInterval:     interval,
	}
}

// CheckClinicAvailability sums blocks across all staff and compares against
// the clinic-wide minimum
func CheckClinicAvailability(analyses []StaffAnalysis, minimumBlocks int) (bool, int) {
	total := 0
	for _, a := range analyses {
		total += a.Blocks
	}
	return total >= minimumBlocks, total
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
