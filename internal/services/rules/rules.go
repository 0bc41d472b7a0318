// Package rules is the Credential & Rule Store: the engine's read-only
// view of per-clinic login data and per-staff classification/threshold
// rules. spec.md treats this as an external contract; this package
// supplies both that contract (Store) and a concrete YAML-backed
// implementation grounded on the source's clinics.yaml/staff_rules.yaml.
package rules

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/width"
	"gopkg.in/yaml.v3"

	"dentslot/internal/core/adapters"
	"dentslot/internal/platform/logger"
)

// DefaultThresholdMinutes applies to any staff member with no category
// match and to clinics with no ruleset at all
const DefaultThresholdMinutes = 30

// DefaultExcludePatterns matches the source's default clinic-wide exclude
// list (visiting-only doctors)
var DefaultExcludePatterns = []string{"訪問"}

// ClinicConfig is one clinic's declared, non-secret configuration plus its
// credentials (kept on the same record; callers needing to separate them
// should project this struct rather than the store splitting it)
type ClinicConfig struct {
	Name        string   `yaml:"name"`
	System      string   `yaml:"system"` // "legacy" | "spa"
	URL         string   `yaml:"url"`
	DisplayName string   `yaml:"display_name"`
	Enabled     bool     `yaml:"enabled"`
	Username    string   `yaml:"username"`
	Password    string   `yaml:"password"`
	ExcludeTags []string `yaml:"exclude_patterns"`
}

// StaffRuleset is one clinic's staff classification and threshold rules
type StaffRuleset struct {
	Doctors        []string          `yaml:"doctors"`
	Hygienists     []string          `yaml:"hygienists"`
	Orthodontists  []string          `yaml:"orthodontists"`
	Disabled       []string          `yaml:"disabled"`
	WebBooking     []string          `yaml:"web_booking"`
	Memos          map[string]string `yaml:"memos"`
	Tags           map[string]string `yaml:"tags"`
	DrThreshold    int               `yaml:"dr_threshold_minutes"`
	DHThreshold    int               `yaml:"dh_threshold_minutes"`
	DefaultThresh  int               `yaml:"default_threshold_minutes"`
	AllStaffCached []string          `yaml:"all_staff"`
}

// Category is a staff member's classification, in precedence order
// orthodontist > doctor > hygienist > unknown
type Category string

const (
	CategoryOrthodontist Category = "orthodontist"
	CategoryDoctor       Category = "doctor"
	CategoryHygienist    Category = "hygienist"
	CategoryUnknown      Category = "unknown"
)

// Classify returns the staff member's category and the threshold minutes
// that apply to it
func (r StaffRuleset) Classify(staffName string) (Category, int) {
	switch {
	case contains(r.Orthodontists, staffName):
		return CategoryOrthodontist, thresholdOr(r.DrThreshold, DefaultThresholdMinutes)
	case contains(r.Doctors, staffName):
		return CategoryDoctor, thresholdOr(r.DrThreshold, DefaultThresholdMinutes)
	case contains(r.Hygienists, staffName):
		return CategoryHygienist, thresholdOr(r.DHThreshold, DefaultThresholdMinutes)
	default:
		return CategoryUnknown, thresholdOr(r.DefaultThresh, DefaultThresholdMinutes)
	}
}

func thresholdOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}

// Store is the engine's read-only view into clinic/staff configuration
type Store interface {
	EnabledClinics(ctx context.Context) ([]ClinicConfig, error)
	Clinic(ctx context.Context, name string) (ClinicConfig, bool, error)
	Ruleset(ctx context.Context, clinicName string) (StaffRuleset, bool, error)
	// ExcludePatterns returns the clinic-wide header-text exclusion list
	ExcludePatterns(ctx context.Context) []string
	// CanonicalOrder returns clinic names in their configured display
	// order; clinics absent from it sort to the end, alphabetically
	CanonicalOrder(ctx context.Context) []string
	// SyncAllStaff logs into every enabled clinic via the given backend
	// factory and refreshes each ruleset's cached all_staff snapshot
	SyncAllStaff(ctx context.Context, backendFor func(system string) adapters.Backend) error
}

// FileStore is a YAML-file-backed Store, grounded on the source's
// config_loader.load_config/get_enabled_clinics/get_exclude_patterns and
// web/routes/staff.py's load_staff_rules/save_staff_rules/CLINIC_ORDER
type FileStore struct {
	clinicsPath string
	rulesPath   string

	mu       sync.RWMutex
	clinics  []ClinicConfig
	rulesets map[string]StaffRuleset
	exclude  []string
	order    []string
}

// clinicsFile and rulesFile mirror the on-disk YAML document shapes
type clinicsFile struct {
	ExcludePatterns []string       `yaml:"exclude_patterns"`
	CanonicalOrder  []string       `yaml:"canonical_order"`
	Clinics         []ClinicConfig `yaml:"clinics"`
}

type rulesFile struct {
	Rulesets map[string]StaffRuleset `yaml:"rulesets"`
}

// NewFileStore loads clinics.yaml and staff_rules.yaml from the given
// paths. Both files are re-read on every Load call, never cached across
// process restarts, matching the source's "always re-read at run start"
// behavior
func NewFileStore(clinicsPath, rulesPath string) *FileStore {
	return &FileStore{clinicsPath: clinicsPath, rulesPath: rulesPath}
}

// Load parses both YAML files into memory. Call once at service startup
// and again whenever an admin surface mutates the files
func (s *FileStore) Load(ctx context.Context) error {
	log := logger.Named("rules")

	var cf clinicsFile
	if err := loadYAML(s.clinicsPath, &cf); err != nil {
		return fmt.Errorf("rules: load clinics: %w", err)
	}
	var rf rulesFile
	if err := loadYAML(s.rulesPath, &rf); err != nil {
		return fmt.Errorf("rules: load staff rules: %w", err)
	}

	exclude := cf.ExcludePatterns
	if len(exclude) == 0 {
		exclude = DefaultExcludePatterns
	}

	order := cf.CanonicalOrder
	if len(order) == 0 {
		for _, c := range cf.Clinics {
			order = append(order, c.Name)
		}
	}

	s.mu.Lock()
	s.clinics = cf.Clinics
	s.rulesets = rf.Rulesets
	s.exclude = exclude
	s.order = order
	s.mu.Unlock()

	log.Info().Int("clinics", len(cf.Clinics)).Int("rulesets", len(rf.Rulesets)).Msg("rule store loaded")
	return nil
}

func loadYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, out)
}

// EnabledClinics returns every clinic with enabled=true
func (s *FileStore) EnabledClinics(ctx context.Context) ([]ClinicConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ClinicConfig
	for _, c := range s.clinics {
		if c.Enabled {
			out = append(out, c)
		}
	}
	return out, nil
}

// Clinic looks up one clinic by name
func (s *FileStore) Clinic(ctx context.Context, name string) (ClinicConfig, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clinics {
		if c.Name == name {
			return c, true, nil
		}
	}
	return ClinicConfig{}, false, nil
}

// Ruleset looks up one clinic's staff ruleset
func (s *FileStore) Ruleset(ctx context.Context, clinicName string) (StaffRuleset, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rulesets[clinicName]
	return r, ok, nil
}

// ExcludePatterns returns the clinic-wide header-text exclusion list
func (s *FileStore) ExcludePatterns(ctx context.Context) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.exclude...)
}

// CanonicalOrder returns the configured display order
func (s *FileStore) CanonicalOrder(ctx context.Context) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// OrderClinics sorts clinic names by CanonicalOrder, with names absent
// from it sorted to the end alphabetically — spec.md §4.6 step 5
func OrderClinics(order, names []string) []string {
	pos := make(map[string]int, len(order))
	for i, n := range order {
		pos[n] = i
	}
	out := append([]string(nil), names...)
	sort.SliceStable(out, func(i, j int) bool {
		pi, oki := pos[out[i]]
		pj, okj := pos[out[j]]
		switch {
		case oki && okj:
			return pi < pj
		case oki && !okj:
			return true
		case !oki && okj:
			return false
		default:
			return out[i] < out[j]
		}
	})
	return out
}

// SyncAllStaff logs into every enabled clinic with its backend and
// refreshes each ruleset's all_staff snapshot with the full unfiltered
// column roster, grounded on the source's sync_all_staff/sync_stransa_staff
func (s *FileStore) SyncAllStaff(ctx context.Context, backendFor func(system string) adapters.Backend) error {
	log := logger.Named("rules")

	clinics, err := s.EnabledClinics(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rulesets == nil {
		s.rulesets = make(map[string]StaffRuleset)
	}

	for _, c := range clinics {
		backend := backendFor(c.System)
		if backend == nil {
			log.Warn().Str("clinic", c.Name).Str("system", c.System).Msg("no backend for system")
			continue
		}
		clinicArg := adapters.Clinic{
			Name: c.Name, System: c.System, URL: c.URL,
			Username: c.Username, Password: c.Password, DisplayName: c.DisplayName,
		}
		if ok, err := backend.Login(ctx, clinicArg); err != nil || !ok {
			log.Warn().Err(err).Str("clinic", c.Name).Msg("staff sync login failed")
			continue
		}
		obs, err := backend.Extract(ctx, clinicArg)
		if err != nil {
			log.Warn().Err(err).Str("clinic", c.Name).Msg("staff sync extraction failed")
			continue
		}
		names := make([]string, 0, len(obs))
		for name := range obs {
			names = append(names, TrimDisplayName(name))
		}
		sort.Strings(names)

		ruleset := s.rulesets[c.Name]
		ruleset.AllStaffCached = names
		s.rulesets[c.Name] = ruleset
	}
	return nil
}

// TrimDisplayName folds fullwidth forms (the ideographic space U+3000
// included) down to their ASCII/halfwidth equivalents, then trims, so
// names scraped out of Japanese-language UIs compare equal regardless of
// which width the source table happened to render them in
func TrimDisplayName(s string) string {
	return strings.TrimSpace(width.Fold.String(s))
}
