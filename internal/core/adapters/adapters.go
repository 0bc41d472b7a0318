// Package adapters defines the shared extraction protocol both back-end
// adapters implement, plus the classification predicates (staff-column,
// empty-slot-cell) that are identical in rule content across back-ends
// even though only the SPA back-end currently needs them at the DOM level.
package adapters

import (
	"context"
	"regexp"
	"strings"
)

// Backend is the three-step protocol every back-end adapter implements.
// Per spec.md §9, this is expressed as a shared interface with exactly two
// concrete implementations rather than string-keyed dispatch
type Backend interface {
	// Login navigates to the clinic's URL and authenticates
	Login(ctx context.Context, clinic Clinic) (bool, error)
	// AdvanceToTomorrow moves the visible grid to the next day, or logs a
	// warning and proceeds with today's grid if no control is found
	AdvanceToTomorrow(ctx context.Context) (bool, error)
	// Extract returns staff-name -> ordered minute-of-day slot timestamps
	Extract(ctx context.Context, clinic Clinic) (map[string][]int, error)
}

// Clinic is the subset of clinic configuration an adapter needs to log in
// and navigate. Full clinic/ruleset records live in internal/services/rules
type Clinic struct {
	Name            string
	System          string // "legacy" | "spa"
	URL             string
	Username        string
	Password        string
	DisplayName     string
	ExcludePatterns []string
	DisabledStaff   map[string]struct{}
}

// knownColumnTokens are exact-match column names accepted regardless of
// the glyph-count heuristic below
var knownColumnTokens = map[string]struct{}{
	"TC": {}, "SP急患": {}, "SP": {}, "急患": {}, "アシスト": {}, "TC/SP": {}, "矯正": {},
}

// chromeHeaderWords are UI chrome strings that are never staff columns
var chromeHeaderWords = map[string]struct{}{
	"": {}, "予約日": {}, "空き枠数": {}, "名前": {}, "AM": {}, "PM": {}, "日": {}, "月": {},
	"火": {}, "水": {}, "木": {}, "金": {}, "土": {}, "«": {}, "»": {}, "<": {}, ">": {},
	"本日": {}, "本 日": {}, "週": {}, "今日": {}, "クリア": {},
}

// commonVocabWords are kanji words that would otherwise pass the 2-4
// glyph heuristic but are ordinary UI vocabulary, not staff names
var commonVocabWords = map[string]struct{}{
	"診療": {}, "予約": {}, "患者": {}, "連絡": {}, "掲示": {}, "一覧": {}, "追加": {}, "削除": {}, "設定": {}, "表示": {}, "非表示": {},
}

var kanjiOnlyRe = regexp.MustCompile(`^[\p{Han}]{2,4}$`)

// IsStaffColumn classifies a table header's text as a staff column or not,
// per the predicate the SPA back-end's settings/grid pages both rely on
func IsStaffColumn(text string) bool {
	t := strings.TrimSpace(text)

	if strings.Contains(t, ":") {
		return false
	}
	if _, chrome := chromeHeaderWords[t]; chrome {
		return false
	}
	if strings.Contains(t, "年") && strings.Contains(t, "月") {
		return false
	}
	if isDigitsOnly(t) {
		return false
	}

	if strings.HasPrefix(t, "チェア") || strings.HasPrefix(t, "Dr") || strings.HasPrefix(t, "DH") || strings.HasPrefix(t, "衛生士") {
		return true
	}
	if _, known := knownColumnTokens[t]; known {
		return true
	}
	if strings.Contains(t, "/") && len(t) >= 4 && len(t) <= 12 {
		return true
	}
	if kanjiOnlyRe.MatchString(t) {
		if _, common := commonVocabWords[t]; !common {
			return true
		}
	}
	return false
}

func isDigitsOnly(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// blockedClassFragments mark a cell as occupied/unavailable regardless of
// its text content
var blockedClassFragments = []string{
	"closed", "blocked", "disabled", "holiday", "off", "gray",
	"lunch", "break", "reserve", "past", "empty", "none", "unavailable", "inactive",
}

// allowedBackgroundTokens are the only background style values that do not
// disqualify a cell from being a free slot
var allowedBackgroundTokens = []string{"#fff", "white", "transparent", "rgb(255"}

// Cell is the batched-evaluation shape for one grid cell, gathered in a
// single DOM round-trip per spec.md §9's "DOM batching" design note
type Cell struct {
	Text    string
	HTML    string
	Class   string
	Style   string
	Colspan int
	Rowspan int
}

// IsEmptySlotCell applies the four-part empty-cell predicate: blank text,
// no merged span, no blocklisted class fragment, and a background that
// either is unset or names one of the allowed "free" tokens
func IsEmptySlotCell(c Cell) bool {
	text := stripInvisible(c.Text)
	if text != "" {
		return false
	}
	if c.Colspan > 1 || c.Rowspan > 1 {
		return false
	}

	class := strings.ToLower(c.Class)
	for _, frag := range blockedClassFragments {
		if strings.Contains(class, frag) {
			return false
		}
	}

	style := strings.ToLower(c.Style)
	if strings.Contains(style, "display:none") || strings.Contains(style, "display: none") {
		return false
	}
	if strings.Contains(style, "background") {
		ok := false
		for _, tok := range allowedBackgroundTokens {
			if strings.Contains(style, tok) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

func stripInvisible(s string) string {
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "​", "")
	return strings.TrimSpace(s)
}
