// Package aggregate is the Result Aggregator: it turns raw per-clinic
// scrape observations into the categorized, thresholded availability
// report the rest of the system persists and serves, grounded on the
// source's analyze_results/check_clinic_availability.
package aggregate

import (
	"dentslot/internal/core/slotanalyzer"
	"dentslot/internal/services/rules"
)

// Settings are the slot-shape constants that differ between the two
// back-end families, read once from clinic-wide configuration
type Settings struct {
	ConsecutiveRequired int
	IntervalMinutes     int
}

// LegacySettings and SPASettings mirror the source's hard split between
// dent-sys.net (5-minute slots, 6 consecutive = 30 min) and the SPA
// back-end (15-minute slots, 2 consecutive = 30 min)
var (
	LegacySettings = Settings{ConsecutiveRequired: 6, IntervalMinutes: 5}
	SPASettings    = Settings{ConsecutiveRequired: 2, IntervalMinutes: 15}
)

// MinimumBlocksRequired is the clinic-wide pass/fail bar: a clinic is
// "available" once its staff collectively clear this many 30-minute
// blocks
const MinimumBlocksRequired = 4

// StaffResult is one staff member's derived availability, omitted from a
// ClinicResult's Details entirely when Blocks is zero, matching the
// source's "if analysis['blocks'] > 0" filter
type StaffResult struct {
	Staff        string
	Category     rules.Category
	Blocks       int
	Times        []string
	Threshold    int
	WebBooking   bool
	RawSlotTimes []int
	SlotInterval int
}

// ClinicResult is one clinic's full analyzed availability
type ClinicResult struct {
	Clinic           string
	System           string
	Available        bool
	Total30MinBlocks int
	Details          []StaffResult
}

// Report is the full run's output: every clinic's result, canonically
// ordered, plus run-level counters
type Report struct {
	Results []ClinicResult
	Summary Summary
}

// Summary mirrors the source's combined_results['summary'] block
type Summary struct {
	TotalClinics           int
	ClinicsWithAvailability int
}

// Analyze derives one clinic's ClinicResult from its raw scrape
// observations and staff ruleset
func Analyze(clinicName, system string, slots map[string][]int, ruleset rules.StaffRuleset, settings Settings, minimumBlocks int) ClinicResult {
	hasWebBookingFilter := len(ruleset.WebBooking) > 0

	var details []StaffResult
	var analyses []slotanalyzer.StaffAnalysis

	for staffName, times := range slots {
		if _, disabled := disabledSet(ruleset.Disabled)[staffName]; disabled {
			continue
		}
		// web_booking is an explicit allow-list: when a clinic declares
		// one, staff absent from it are excluded from the report, per
		// the resolved "empty policy = exclude" rule
		isWebBooking := webBookingSet(ruleset.WebBooking)[staffName]
		if hasWebBookingFilter && !isWebBooking {
			continue
		}

		category, threshold := ruleset.Classify(staffName)
		a := slotanalyzer.AnalyzeStaff(staffName, times, settings.ConsecutiveRequired, settings.IntervalMinutes, threshold)
		if a.Blocks == 0 {
			continue
		}
		analyses = append(analyses, a)
		details = append(details, StaffResult{
			Staff:        staffName,
			Category:     category,
			Blocks:       a.Blocks,
			Times:        a.Times,
			Threshold:    threshold,
			WebBooking:   isWebBooking,
			RawSlotTimes: a.RawSlotTimes,
			SlotInterval: a.SlotInterval,
		})
	}

	available, total := slotanalyzer.CheckClinicAvailability(analyses, minimumBlocks)

	return ClinicResult{
		Clinic:           clinicName,
		System:           system,
		Available:        available,
		Total30MinBlocks: total,
		Details:          details,
	}
}

func disabledSet(xs []string) map[string]struct{} {
	m := make(map[string]struct{}, len(xs))
	for _, x := range xs {
		m[x] = struct{}{}
	}
	return m
}

func webBookingSet(xs []string) map[string]bool {
	m := make(map[string]bool, len(xs))
	for _, x := range xs {
		m[x] = true
	}
	return m
}

// Build assembles the full Report from every clinic's ClinicResult,
// ordering clinics canonically and computing run-level summary counters
func Build(results []ClinicResult, canonicalOrder []string) Report {
	names := make([]string, 0, len(results))
	byName := make(map[string]ClinicResult, len(results))
	for _, r := range results {
		names = append(names, r.Clinic)
		byName[r.Clinic] = r
	}
	ordered := rules.OrderClinics(canonicalOrder, names)

	summary := Summary{TotalClinics: len(ordered)}
	out := make([]ClinicResult, 0, len(ordered))
	for _, name := range ordered {
		r := byName[name]
		if r.Available {
			summary.ClinicsWithAvailability++
		}
		out = append(out, r)
	}

	return Report{Results: out, Summary: summary}
}

// SettingsFor picks the slot-shape constants for a back-end system
func SettingsFor(system string) Settings {
	if system == "spa" {
		return SPASettings
	}
	return LegacySettings
}
