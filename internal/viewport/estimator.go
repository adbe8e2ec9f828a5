package viewport

import (
	"strings"

	"helpdesk-chat-core/internal/entity"
)

// Baseline pixel heights per message shape. Ordering matters: system <
// file attachment < text-only < text+image < image-only at baseline, with
// text growing in line increments until measured heights replace estimates.
const (
	heightSystem        = 28.0
	heightFile          = 64.0
	heightTextBase      = 76.0
	heightCaptionBase   = 40.0
	heightImageOnly     = 320.0
	heightImageWithText = 220.0
	heightLine          = 20.0
	charsPerLine        = 50
)

// EstimateHeight guesses a row height before the renderer has measured it.
func EstimateHeight(m *entity.ChatMessage) float64 {
	switch {
	case m.IsSystem():
		return heightSystem
	case m.IsScreenshot && strings.TrimSpace(m.Content) == "":
		return heightImageOnly
	case m.IsScreenshot:
		return heightImageWithText + heightCaptionBase + lineExtra(m.Content)
	case m.FileName != "":
		return heightFile
	default:
		return heightTextBase + lineExtra(m.Content)
	}
}

// lineExtra adds one line-height per started 50-character block past the first.
func lineExtra(content string) float64 {
	lines := (len(content) + charsPerLine - 1) / charsPerLine
	if lines <= 1 {
		return 0
	}
	return float64(lines-1) * heightLine
}
