package domain

import (
	"fmt"
	"strings"
)

type TranscriptSegment struct {
	ID    int     `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcript is the raw speech-to-text result stored as transcript.json.
type Transcript struct {
	Text     string              `json:"text"`
	Language string              `json:"language,omitempty"`
	Duration float64             `json:"duration,omitempty"`
	Model    string              `json:"model,omitempty"`
	Segments []TranscriptSegment `json:"segments"`
}

func (t *Transcript) WordCount() int {
	if t == nil {
		return 0
	}
	return len(strings.Fields(t.Text))
}

// Format renders the human readable transcript.txt body.
func (t *Transcript) Format() string {
	var b strings.Builder
	b.WriteString("=== VIDEO TRANSCRIPT ===\n\n")
	b.WriteString("FULL TEXT:\n")
	if t != nil {
		b.WriteString(strings.TrimSpace(t.Text))
	}
	b.WriteString("\n\n")
	b.WriteString("TIMESTAMPED SEGMENTS:\n")
	if t != nil {
		for _, seg := range t.Segments {
			fmt.Fprintf(&b, "[%s - %s] %s\n", FormatTimestamp(seg.Start), FormatTimestamp(seg.End), strings.TrimSpace(seg.Text))
		}
	}
	return b.String()
}

// FormatTimestamp renders seconds as MM:SS.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// CountWords counts whitespace separated words.
func CountWords(text string) int {
	return len(strings.Fields(text))
}
