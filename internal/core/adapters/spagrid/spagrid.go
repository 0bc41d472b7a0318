// Package spagrid implements the Backend protocol for the single-page-app
// grid back-end. There is no server-rendered "new slot" marker here: a
// cell's vacancy is inferred from batched DOM attributes (text, spans,
// class, style) per adapters.IsEmptySlotCell.
package spagrid

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"dentslot/internal/core/adapters"
	"dentslot/internal/platform/browserpool"
	"dentslot/internal/platform/logger"
)

// fixed 15-minute interval and chair-tab selector candidates, both taken
// verbatim from the SPA back-end's own behavior
const slotInterval = 15

var staffTabSelectors = []string{
	`text="スタッフ"`,
	`button:has-text("スタッフ")`,
	`a:has-text("スタッフ")`,
	`span:has-text("スタッフ")`,
	`label:has-text("スタッフ")`,
	`div:has-text("スタッフ")`,
	`input[value="スタッフ"]`,
}

var todayButtonSelectors = []string{
	`button:has-text("本日")`,
	`a:has-text("本日")`,
	`input[value="本日"]`,
}

// Settings configures the fixed-interval grid back-end
type Settings struct {
	SlotInterval int

	// DebugScreenshotDir, if non-empty, captures a PNG on a failed
	// login/navigate step under this directory. Off by default
	DebugScreenshotDir string
}

// Adapter implements adapters.Backend against the SPA grid reservation
// system
type Adapter struct {
	pool     *browserpool.Pool
	settings Settings

	pageCtx context.Context
	cancel  context.CancelFunc
}

// New constructs a SPA-grid adapter bound to the given browser pool
func New(pool *browserpool.Pool, settings Settings) *Adapter {
	if settings.SlotInterval == 0 {
		settings.SlotInterval = slotInterval
	}
	return &Adapter{pool: pool, settings: settings}
}

// Open acquires a fresh page/tab from the pool
func (a *Adapter) Open(ctx context.Context) error {
	pageCtx, cancel, err := a.pool.NewPage(ctx)
	if err != nil {
		return fmt.Errorf("spagrid: open page: %w", err)
	}
	a.pageCtx = pageCtx
	a.cancel = cancel
	return nil
}

// Close releases the page/tab
func (a *Adapter) Close() {
	if a.cancel != nil {
		a.cancel()
	}
}

// Login navigates, fills credentials, submits, and waits for either the
// office-picker or calendar URL; on an office picker it disambiguates by
// clinic display name, falling back to URL path substitution
func (a *Adapter) Login(ctx context.Context, clinic adapters.Clinic) (bool, error) {
	log := logger.Named("spagrid").With().Str("clinic", clinic.Name).Logger()

	runCtx, cancel := context.WithTimeout(a.pageCtx, 60*time.Second)
	defer cancel()

	err := chromedp.Run(runCtx,
		chromedp.Navigate(clinic.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.SendKeys(`input[type="text"], input[type="email"]`, clinic.Username, chromedp.ByQuery),
		chromedp.SendKeys(`input[type="password"]`, clinic.Password, chromedp.ByQuery),
		chromedp.Click(`button[type="submit"], input[type="submit"]`, chromedp.ByQuery),
		chromedp.Sleep(500*time.Millisecond),
	)
	if err != nil {
		log.Warn().Err(err).Msg("login failed")
		adapters.CaptureDebugScreenshot(runCtx, a.settings.DebugScreenshotDir, clinic.Name, "login")
		return false, err
	}

	var currentURL string
	for {
		if err := chromedp.Run(runCtx, chromedp.Location(&currentURL)); err != nil {
			return false, err
		}
		if strings.Contains(currentURL, "/office") || strings.Contains(currentURL, "/calendar/") {
			break
		}
		select {
		case <-runCtx.Done():
			log.Warn().Str("url", currentURL).Msg("login did not reach office or calendar page")
			adapters.CaptureDebugScreenshot(runCtx, a.settings.DebugScreenshotDir, clinic.Name, "login")
			return false, runCtx.Err()
		case <-time.After(250 * time.Millisecond):
		}
	}
	if !strings.Contains(currentURL, "/office") {
		return true, nil
	}

	if err := a.disambiguateOffice(runCtx, clinic, currentURL); err != nil {
		log.Warn().Err(err).Msg("office disambiguation failed")
		adapters.CaptureDebugScreenshot(runCtx, a.settings.DebugScreenshotDir, clinic.Name, "navigate")
		return false, err
	}
	return true, nil
}

// disambiguateOffice clicks the office link matching the clinic's display
// name (full, then a short variant with parenthesized suffixes stripped);
// on failure it substitutes /calendar/ for /office directly in the URL
func (a *Adapter) disambiguateOffice(ctx context.Context, clinic adapters.Clinic, currentURL string) error {
	candidates := []string{clinic.DisplayName}
	if short := shortDisplayName(clinic.DisplayName); short != "" && short != clinic.DisplayName {
		candidates = append(candidates, short)
	}

	for _, name := range candidates {
		if name == "" {
			continue
		}
		sel := fmt.Sprintf(`a:has-text("%s")`, name)
		if err := chromedp.Run(ctx, chromedp.Click(sel, chromedp.ByQuery)); err == nil {
			return nil
		}
	}

	fallbackURL := strings.Replace(currentURL, "/office", "/calendar/", 1)
	return chromedp.Run(ctx, chromedp.Navigate(fallbackURL))
}

// shortDisplayName splits on the full-width middle dot and strips a
// parenthesized suffix, matching the source's short-name heuristic
func shortDisplayName(name string) string {
	parts := strings.Split(name, "・")
	first := parts[0]
	for _, suffix := range []string{"（歯科）", "（", "("} {
		if idx := strings.Index(first, suffix); idx >= 0 {
			first = first[:idx]
		}
	}
	return strings.TrimSpace(first)
}

// AdvanceToTomorrow clicks "today" to normalize position, switches to the
// staff view if available, then clicks the "next day" control
func (a *Adapter) AdvanceToTomorrow(ctx context.Context) (bool, error) {
	log := logger.Named("spagrid")
	runCtx, cancel := context.WithTimeout(a.pageCtx, 30*time.Second)
	defer cancel()

	for _, sel := range todayButtonSelectors {
		if err := chromedp.Run(runCtx, chromedp.Click(sel, chromedp.ByQuery)); err == nil {
			break
		}
	}

	// chromedp.Click already waits for the target to be visible and
	// interactable, so the first selector that succeeds here is, by
	// construction, the first visible match — matching the "first
	// visible wins" tab-switch rule
	for _, sel := range staffTabSelectors {
		if err := chromedp.Run(runCtx, chromedp.Click(sel, chromedp.ByQuery)); err == nil {
			break
		}
	}

	if err := chromedp.Run(runCtx, chromedp.Click(`a[title="翌日"]`, chromedp.ByQuery)); err == nil {
		return true, nil
	}
	for _, glyph := range []string{"›", ">"} {
		sel := fmt.Sprintf(`a:has-text("%s")`, glyph)
		if err := chromedp.Run(runCtx, chromedp.Click(sel, chromedp.ByQuery)); err == nil {
			return true, nil
		}
	}

	log.Warn().Msg("next-day control not found, proceeding with today's grid")
	return false, nil
}

// rawCell mirrors adapters.Cell for the JSON shape returned by the batched
// DOM evaluation
type rawCell struct {
	Text    string `json:"text"`
	HTML    string `json:"html"`
	Class   string `json:"class"`
	Style   string `json:"style"`
	Colspan int    `json:"colspan"`
	Rowspan int    `json:"rowspan"`
}

type rawTable struct {
	Headers []string    `json:"headers"`
	Rows    [][]rawCell `json:"rows"`
}

// Extract evaluates every table's structure in one batched round-trip
// (load-bearing per the Design Notes: per-cell queries are orders of
// magnitude slower), selects the first table with >= 10 rows and at
// least one staff-column header, and derives minute-of-day observations
// from empty cells
func (a *Adapter) Extract(ctx context.Context, clinic adapters.Clinic) (map[string][]int, error) {
	runCtx, cancel := context.WithTimeout(a.pageCtx, 60*time.Second)
	defer cancel()

	var tables []rawTable
	err := chromedp.Run(runCtx, chromedp.Evaluate(extractTablesScript, &tables))
	if err != nil {
		return nil, fmt.Errorf("spagrid: table extraction: %w", err)
	}

	table, ok := selectStaffTable(tables)
	if !ok {
		return nil, fmt.Errorf("spagrid: no staff table found among %d tables", len(tables))
	}

	staffCols := make(map[int]string)
	for i, h := range table.Headers {
		if adapters.IsStaffColumn(h) {
			staffCols[i] = strings.TrimSpace(h)
		}
	}

	result := make(map[string][]int)
	for _, row := range table.Rows {
		if len(row) == 0 {
			continue
		}
		minute, ok := parseRowTime(row[0].Text)
		if !ok {
			continue
		}
		for colIdx, name := range staffCols {
			if colIdx >= len(row) {
				continue
			}
			cell := adapters.Cell{
				Text:    row[colIdx].Text,
				HTML:    row[colIdx].HTML,
				Class:   row[colIdx].Class,
				Style:   row[colIdx].Style,
				Colspan: row[colIdx].Colspan,
				Rowspan: row[colIdx].Rowspan,
			}
			if adapters.IsEmptySlotCell(cell) {
				result[name] = append(result[name], minute)
			}
		}
	}
	return result, nil
}

func selectStaffTable(tables []rawTable) (rawTable, bool) {
	for _, t := range tables {
		if len(t.Rows) < 10 {
			continue
		}
		for _, h := range t.Headers {
			if adapters.IsStaffColumn(h) {
				return t, true
			}
		}
	}
	return rawTable{}, false
}

func parseRowTime(text string) (int, bool) {
	text = strings.TrimSpace(strings.SplitN(text, "\n", 2)[0])
	parts := strings.SplitN(text, ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	h, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	m, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil {
		return 0, false
	}
	return h*60 + m, true
}

const extractTablesScript = `
(() => {
	const tables = [];
	document.querySelectorAll('table').forEach(table => {
		const trs = Array.from(table.querySelectorAll('tr'));
		if (trs.length === 0) return;
		const headerCells = Array.from(trs[0].querySelectorAll('th,td'));
		const headers = headerCells.map(c => (c.textContent || '').trim());
		const rows = trs.slice(1).map(tr =>
			Array.from(tr.querySelectorAll('td,th')).map(c => ({
				text: c.textContent || '',
				html: c.innerHTML || '',
				class: c.className || '',
				style: c.getAttribute('style') || '',
				colspan: c.colSpan || 1,
				rowspan: c.rowSpan || 1,
			}))
		);
		tables.push({headers, rows});
	});
	return tables;
})()
`
