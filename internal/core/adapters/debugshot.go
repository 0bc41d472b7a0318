package adapters

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"dentslot/internal/platform/logger"
)

// CaptureDebugScreenshot writes a PNG of the current page under dir, named
// after the clinic and the step that failed. dir empty is a no-op, so
// adapters can call this unconditionally from a failure path without
// checking whether debugging is enabled first.
//
// Unlike the source's _debug_screenshot, which dumps one PNG per
// milestone unconditionally, this fires only on a failed login/navigate
// step, to bound disk usage on a long-lived service.
func CaptureDebugScreenshot(ctx context.Context, dir, clinic, step string) {
	if dir == "" {
		return
	}
	log := logger.Named("adapters")

	var buf []byte
	if err := chromedp.Run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		log.Warn().Err(err).Str("clinic", clinic).Str("step", step).Msg("debug screenshot capture failed")
		return
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("debug screenshot dir create failed")
		return
	}

	name := fmt.Sprintf("%s_%s_%s.png", sanitizeForFilename(clinic), step, time.Now().Format("20060102_150405"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("debug screenshot write failed")
	}
}

func sanitizeForFilename(s string) string {
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
