// Package legacytable implements the Backend protocol for the nested-frame
// table back-end: login fills a form on the main page, the schedule lives
// inside a child iframe whose URL carries a well-known "week" marker, and
// each bookable slot is an anchor embedding makeSlot(col,row) in its href.
package legacytable

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"dentslot/internal/core/adapters"
	"dentslot/internal/core/rowtime"
	"dentslot/internal/platform/browserpool"
	"dentslot/internal/platform/logger"
)

// weekFrameMarker is the substring every legacy schedule iframe's URL
// contains
const weekFrameMarker = "ts_timetable_week"

// nextDayTokens are the literal strings the "advance to tomorrow" control
// may carry as its value or link text
var nextDayTokens = []string{"翌日", "次の日"}

var makeSlotRe = regexp.MustCompile(`(?:makeSlot|ts_set_new)\((\d+),\s*(\d+)\)`)

// Settings configures row/column parsing independent of any one clinic
type Settings struct {
	SlotInterval    int
	StartHourGuess  int
	StartMinuteHint int

	// DebugScreenshotDir, if non-empty, captures a PNG on a failed
	// login step under this directory. Off by default
	DebugScreenshotDir string
}

// Adapter implements adapters.Backend against the legacy nested-table
// reservation system
type Adapter struct {
	pool     *browserpool.Pool
	settings Settings

	pageCtx context.Context
	cancel  context.CancelFunc
}

// New constructs a legacy-table adapter bound to the given browser pool
func New(pool *browserpool.Pool, settings Settings) *Adapter {
	if settings.SlotInterval == 0 {
		settings.SlotInterval = 5
	}
	return &Adapter{pool: pool, settings: settings}
}

// Open acquires a fresh page/tab from the pool. Callers must call Close
// when done with the clinic
func (a *Adapter) Open(ctx context.Context) error {
	pageCtx, cancel, err := a.pool.NewPage(ctx)
	if err != nil {
		return fmt.Errorf("legacytable: open page: %w", err)
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

// Login navigates to the clinic URL, fills the first text/email field and
// the first password field, and submits
func (a *Adapter) Login(ctx context.Context, clinic adapters.Clinic) (bool, error) {
	log := logger.Named("legacytable").With().Str("clinic", clinic.Name).Logger()

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
	return true, nil
}

// AdvanceToTomorrow clicks the "next day" control if present, else logs a
// warning and proceeds with today's grid
func (a *Adapter) AdvanceToTomorrow(ctx context.Context) (bool, error) {
	log := logger.Named("legacytable")

	runCtx, cancel := context.WithTimeout(a.pageCtx, 10*time.Second)
	defer cancel()

	for _, token := range nextDayTokens {
		sel := fmt.Sprintf(`input[value="%s"]`, token)
		err := chromedp.Run(runCtx, chromedp.Click(sel, chromedp.ByQuery))
		if err == nil {
			return true, nil
		}
		linkSel := fmt.Sprintf(`a`)
		err = chromedp.Run(runCtx, chromedp.Click(linkSel+fmt.Sprintf(`:-soup-contains("%s")`, token), chromedp.ByQuery))
		if err == nil {
			return true, nil
		}
	}
	log.Warn().Msg("next-day control not found, proceeding with today's grid")
	return false, nil
}

// headerInfo is one column header's anchor index and resolved column number
type headerInfo struct {
	Name string
	Col  int
}

// Extract builds the header index from the top-level page and the row-time
// map inside the schedule iframe, then walks every "new" slot anchor,
// mapping (col,row) to (staff-name, minute-of-day)
func (a *Adapter) Extract(ctx context.Context, clinic adapters.Clinic) (map[string][]int, error) {
	log := logger.Named("legacytable").With().Str("clinic", clinic.Name).Logger()

	runCtx, cancel := context.WithTimeout(a.pageCtx, 60*time.Second)
	defer cancel()

	headers, err := a.extractHeaders(runCtx, clinic)
	if err != nil {
		return nil, fmt.Errorf("legacytable: header extraction: %w", err)
	}

	frameID, err := a.findScheduleFrame(runCtx)
	if err != nil {
		return nil, fmt.Errorf("legacytable: frame lookup: %w", err)
	}

	rows, err := a.extractRows(runCtx, frameID)
	if err != nil {
		return nil, fmt.Errorf("legacytable: row extraction: %w", err)
	}
	rowMap := rowtime.Build(rows, a.settings.SlotInterval)

	anchors, err := a.extractSlotAnchors(runCtx, frameID)
	if err != nil {
		return nil, fmt.Errorf("legacytable: anchor extraction: %w", err)
	}

	colToStaff := make(map[int]string, len(headers))
	for _, h := range headers {
		colToStaff[h.Col] = h.Name
	}

	result := make(map[string][]int)
	for _, href := range anchors {
		m := makeSlotRe.FindStringSubmatch(href)
		if m == nil {
			continue
		}
		col, _ := strconv.Atoi(m[1])
		row, _ := strconv.Atoi(m[2])

		name, ok := colToStaff[col]
		if !ok {
			log.Debug().Int("col", col).Msg("column not present in header table, dropping (excluded staff)")
			continue
		}
		minute, ok := rowMap.At(row)
		if !ok {
			log.Debug().Int("row", row).Msg("row outside mapped range")
			continue
		}
		result[name] = appendUnique(result[name], minute)
	}

	for name := range result {
		result[name] = sortedInts(result[name])
	}

	return result, nil
}

// extractHeaders enumerates header cells with an anchor in the "doctor
// info" row, applying the exclude-pattern and disabled-staff filters
func (a *Adapter) extractHeaders(ctx context.Context, clinic adapters.Clinic) ([]headerInfo, error) {
	var raw []map[string]string
	err := chromedp.Run(ctx, chromedp.Evaluate(`
		(() => {
			const out = [];
			document.querySelectorAll('tr.d_info th a').forEach(a => {
				out.push({name: (a.textContent || '').trim()});
			});
			return out;
		})()
	`, &raw))
	if err != nil {
		return nil, err
	}

	headers := make([]headerInfo, 0, len(raw))
	col := 0
	for _, cell := range raw {
		name := cell["name"]
		if name == "" {
			continue
		}
		if matchesAny(name, clinic.ExcludePatterns) {
			col++
			continue
		}
		if _, disabled := clinic.DisabledStaff[name]; disabled {
			col++
			continue
		}
		headers = append(headers, headerInfo{Name: name, Col: col})
		col++
	}
	return headers, nil
}

func matchesAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if p != "" && strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// findScheduleFrame locates the descendant frame whose URL contains the
// well-known week-view marker and returns its frame ID, so the row/anchor
// evaluations below can run inside that frame's own document rather than
// the outer page's
func (a *Adapter) findScheduleFrame(ctx context.Context) (cdp.FrameID, error) {
	var frameID cdp.FrameID
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		tree, err := page.GetFrameTree().Do(ctx)
		if err != nil {
			return err
		}
		var find func(*page.FrameTree) bool
		find = func(f *page.FrameTree) bool {
			if strings.Contains(f.Frame.URL, weekFrameMarker) {
				frameID = f.Frame.ID
				return true
			}
			for _, child := range f.ChildFrames {
				if find(child) {
					return true
				}
			}
			return false
		}
		if !find(tree) {
			return fmt.Errorf("no iframe with marker %q found", weekFrameMarker)
		}
		return nil
	}))
	return frameID, err
}

// evaluateInFrame runs js inside frameID's own isolated execution context.
// document.querySelectorAll in a plain chromedp.Evaluate call always
// targets the top-level document, which is invisible to the nested
// schedule frame's own DOM
func evaluateInFrame(ctx context.Context, frameID cdp.FrameID, js string, res any) error {
	return chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		execCtx, err := page.CreateIsolatedWorld(frameID).WithWorldName("dentslot_scrape").Do(ctx)
		if err != nil {
			return fmt.Errorf("create isolated world: %w", err)
		}
		remote, exp, err := runtime.Evaluate(js).WithContextID(execCtx).WithReturnByValue(true).Do(ctx)
		if err != nil {
			return err
		}
		if exp != nil {
			return fmt.Errorf("evaluate in frame: %s", exp.Text)
		}
		if res == nil || remote == nil || remote.Value == nil {
			return nil
		}
		return json.Unmarshal(remote.Value, res)
	}))
}

// extractRows reads each schedule row's leading-cell text and whether it
// carries at least one anchor, in one batched evaluation
func (a *Adapter) extractRows(ctx context.Context, frameID cdp.FrameID) ([]rowtime.Row, error) {
	var raw []map[string]any
	err := evaluateInFrame(ctx, frameID, `
		(() => {
			const out = [];
			document.querySelectorAll('table tr').forEach(tr => {
				const first = tr.querySelector('td,th');
				out.push({
					text: first ? (first.textContent || '').trim() : '',
					hasAnchor: tr.querySelectorAll('a').length > 0,
				});
			});
			return out;
		})()
	`, &raw)
	if err != nil {
		return nil, err
	}
	rows := make([]rowtime.Row, 0, len(raw))
	for _, r := range raw {
		text, _ := r["text"].(string)
		hasAnchor, _ := r["hasAnchor"].(bool)
		rows = append(rows, rowtime.Row{Text: text, HasAnchor: hasAnchor})
	}
	return rows, nil
}

// extractSlotAnchors returns every anchor's href matching the "new slot"
// class or visible-text token
func (a *Adapter) extractSlotAnchors(ctx context.Context, frameID cdp.FrameID) ([]string, error) {
	var hrefs []string
	err := evaluateInFrame(ctx, frameID, `
		Array.from(document.querySelectorAll('a.new, a'))
			.filter(a => a.classList.contains('new') || (a.textContent || '').trim() === 'new')
			.map(a => a.getAttribute('href') || '')
	`, &hrefs)
	if err != nil {
		return nil, err
	}
	return hrefs, nil
}

func appendUnique(times []int, t int) []int {
	for _, existing := range times {
		if existing == t {
			return times
		}
	}
	return append(times, t)
}

func sortedInts(times []int) []int {
	out := append([]int(nil), times...)
	sort.Ints(out)
	return out
}
