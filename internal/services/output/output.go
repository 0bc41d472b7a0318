// Package output is the Output Writer: it persists one run's aggregated
// result as a timestamped artifact in both a structured (JSON) and
// tabular (CSV) form, grounded on the source's output_writer.py.
package output

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dentslot/internal/platform/logger"
	"dentslot/internal/platform/objectstorage"
	"dentslot/internal/services/aggregate"
)

// StaffDetail is one staff member's entry in the structured artifact
type StaffDetail struct {
	Doctor           string   `json:"doctor"`
	Blocks           int      `json:"blocks"`
	Times            []string `json:"times"`
	ThresholdMinutes int      `json:"threshold_minutes"`
	RawSlotTimes     []int    `json:"raw_slot_times"`
	SlotInterval     int      `json:"slot_interval"`
}

// ClinicArtifact mirrors one ClinicResult in the structured artifact
type ClinicArtifact struct {
	Clinic           string        `json:"clinic"`
	System           string        `json:"system"`
	Result           bool          `json:"result"`
	Total30MinBlocks int           `json:"total_30min_blocks"`
	Details          []StaffDetail `json:"details"`
}

// Artifact is the full structured run-artifact shape, per spec.md §6
type Artifact struct {
	CheckDate string           `json:"check_date"`
	CheckedAt string           `json:"checked_at"`
	Results   []ClinicArtifact `json:"results"`
	Summary   SummaryArtifact  `json:"summary"`
}

// SummaryArtifact mirrors Report.Summary in the wire shape
type SummaryArtifact struct {
	TotalClinics            int `json:"total_clinics"`
	ClinicsWithAvailability int `json:"clinics_with_availability"`
}

// ToArtifact converts a Report plus timing metadata into the persisted
// wire/JSON shape
func ToArtifact(report aggregate.Report, checkDate, checkedAt string) Artifact {
	results := make([]ClinicArtifact, 0, len(report.Results))
	for _, r := range report.Results {
		details := make([]StaffDetail, 0, len(r.Details))
		for _, d := range r.Details {
			details = append(details, StaffDetail{
				Doctor:           d.Staff,
				Blocks:           d.Blocks,
				Times:            d.Times,
				ThresholdMinutes: d.Threshold,
				RawSlotTimes:     d.RawSlotTimes,
				SlotInterval:     d.SlotInterval,
			})
		}
		results = append(results, ClinicArtifact{
			Clinic:           r.Clinic,
			System:           r.System,
			Result:           r.Available,
			Total30MinBlocks: r.Total30MinBlocks,
			Details:          details,
		})
	}

	return Artifact{
		CheckDate: checkDate,
		CheckedAt: checkedAt,
		Results:   results,
		Summary: SummaryArtifact{
			TotalClinics:            report.Summary.TotalClinics,
			ClinicsWithAvailability: report.Summary.ClinicsWithAvailability,
		},
	}
}

// ParseArtifact decodes a structured artifact previously written by Save
func ParseArtifact(data []byte) (Artifact, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return Artifact{}, fmt.Errorf("output: parse artifact: %w", err)
	}
	return a, nil
}

// Writer persists run artifacts to a local directory and, when
// configured, to object storage
type Writer struct {
	dir   string
	store objectstorage.Store
}

// New constructs a Writer. dir is created if missing
func New(dir string, store objectstorage.Store) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("output: create output dir: %w", err)
	}
	return &Writer{dir: dir, store: store}, nil
}

// filename builds "slot_check_<check-date>_<run-date>_<HHMMSS>.<ext>" per
// spec.md §4.8
func filename(checkDate string, runTime time.Time, ext string) string {
	return fmt.Sprintf("slot_check_%s_%s_%s.%s",
		strings.ReplaceAll(checkDate, "-", ""),
		runTime.Format("20060102"),
		runTime.Format("150405"),
		ext,
	)
}

// Save writes both the structured (JSON) and tabular (CSV) forms of an
// artifact, flushing and syncing the structured write before returning,
// and uploads both forms to object storage (non-fatal on failure) if
// configured — the tabular form is uploaded too, not just the structured
// one, since it's what a spreadsheet-consuming operator actually wants
func (w *Writer) Save(ctx context.Context, artifact Artifact, runTime time.Time) (jsonPath, csvPath string, err error) {
	log := logger.Named("output")

	jsonName := filename(artifact.CheckDate, runTime, "json")
	jsonPath = filepath.Join(w.dir, jsonName)

	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("output: marshal artifact: %w", err)
	}
	if err := writeSynced(jsonPath, data); err != nil {
		return "", "", fmt.Errorf("output: write structured artifact: %w", err)
	}

	csvName := filename(artifact.CheckDate, runTime, "csv")
	csvPath = filepath.Join(w.dir, csvName)
	if err := writeCSV(csvPath, artifact); err != nil {
		return jsonPath, "", fmt.Errorf("output: write tabular artifact: %w", err)
	}

	if w.store != nil && w.store.Enabled() {
		if err := w.store.Upload(ctx, jsonName, data); err != nil {
			log.Warn().Err(err).Str("file", jsonName).Msg("object storage upload failed")
		}
		if csvData, err := os.ReadFile(csvPath); err != nil {
			log.Warn().Err(err).Str("file", csvName).Msg("read tabular artifact for upload failed")
		} else if err := w.store.Upload(ctx, csvName, csvData); err != nil {
			log.Warn().Err(err).Str("file", csvName).Msg("object storage upload failed")
		}
	}

	return jsonPath, csvPath, nil
}

func writeSynced(path string, data []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

// writeCSV emits one row per (clinic, staff, range); a clinic with no
// staff details still gets one row with blank staff fields, matching the
// source's "else" branch in write_csv
func writeCSV(path string, artifact Artifact) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{
		"check_date", "clinic", "result", "total_30min_blocks", "staff", "blocks", "ranges",
	}); err != nil {
		return err
	}

	for _, clinic := range artifact.Results {
		resultGlyph := "x"
		if clinic.Result {
			resultGlyph = "o"
		}
		if len(clinic.Details) == 0 {
			if err := w.Write([]string{
				artifact.CheckDate, clinic.Clinic, resultGlyph,
				fmt.Sprintf("%d", clinic.Total30MinBlocks), "", "", "",
			}); err != nil {
				return err
			}
			continue
		}
		for _, d := range clinic.Details {
			ranges := d.Times
			if len(ranges) == 0 {
				ranges = []string{""}
			}
			for _, rng := range ranges {
				if err := w.Write([]string{
					artifact.CheckDate, clinic.Clinic, resultGlyph,
					fmt.Sprintf("%d", clinic.Total30MinBlocks),
					d.Doctor, fmt.Sprintf("%d", d.Blocks), rng,
				}); err != nil {
					return err
				}
			}
		}
	}
	return w.Error()
}

// FormatSummary renders a human-readable console summary, grounded on
// the source's format_summary
func FormatSummary(artifact Artifact) string {
	var b strings.Builder
	rule := strings.Repeat("=", 50)
	b.WriteString(rule + "\n")
	b.WriteString("slot check summary\n")
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "check date: %s\n", artifact.CheckDate)
	fmt.Fprintf(&b, "checked at: %s\n", artifact.CheckedAt)
	fmt.Fprintf(&b, "clinics checked: %d\n", artifact.Summary.TotalClinics)
	fmt.Fprintf(&b, "clinics with availability: %d\n", artifact.Summary.ClinicsWithAvailability)
	b.WriteString(strings.Repeat("-", 50) + "\n")
	for _, c := range artifact.Results {
		glyph := "x"
		if c.Result {
			glyph = "o"
		}
		fmt.Fprintf(&b, "[%s] %s: %d blocks\n", glyph, c.Clinic, c.Total30MinBlocks)
	}
	b.WriteString(rule)
	return b.String()
}
