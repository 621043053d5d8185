package prompt

import (
	"fmt"
	"strings"

	"github.com/kirillkom/video-evaluator/internal/core/domain"
)

// Batch is one partial visual analysis produced by a vision model.
type Batch struct {
	Number   int
	Frames   []string
	Analysis string
}

// BuildSinglePass is the prompt for models that take every frame in one request.
func BuildSinglePass(in domain.EvaluationInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Video Evaluation\n\n")
	fmt.Fprintf(&b, "VIDEO ID: %s\n", in.VideoID)
	fmt.Fprintf(&b, "DURATION: %s\n", formatDuration(in.Metadata.DurationSeconds))
	fmt.Fprintf(&b, "FRAMES: %d attached, sampled from %d extracted every %s seconds\n",
		len(in.Frames), in.TotalFrames, formatFloat(in.Metadata.FrameIntervalSeconds))
	if in.Metadata.Title != "" {
		fmt.Fprintf(&b, "TITLE: %s\n", in.Metadata.Title)
	}
	b.WriteString("\nThe attached images are frames from the video in chronological order. ")
	b.WriteString("Use them together with the transcript below.\n\n")
	b.WriteString("---\n\n## TRANSCRIPT\n\n")
	b.WriteString(transcriptOrPlaceholder(in.Transcript))
	b.WriteString("\n\n---\n\n## RUBRIC\n\n")
	b.WriteString(strings.TrimSpace(in.Rubric.Prompt))
	b.WriteString("\n\n---\n\nWrite the complete evaluation in markdown, following the rubric structure. ")
	b.WriteString("Cite frame positions or transcript quotes as evidence.\n")
	return b.String()
}

// BuildBatch asks a vision model for a focused partial analysis of a few frames.
func BuildBatch(number, total, frames int, durationSeconds float64) string {
	return fmt.Sprintf(`You are looking at batch %d of %d from a video aimed at children (duration: %s).
There are %d frames attached in chronological order. Review them for content safety and age suitability.

Report on each of these areas:
1. Violence or aggressive behaviour
2. Frightening imagery or threatening scenes
3. Sexual content, drugs or alcohol
4. On-screen text with crude or inappropriate language
5. Stereotypes or exclusionary portrayals
6. Dangerous actions a child could copy
7. Visual intensity: colour, flashing, clutter

For every finding give what you see, a severity (none, mild, moderate, significant) and the frame number.
If the frames are fine, say so plainly. Keep it short: other batches are analysed separately and merged later.
`, number, total, formatDuration(durationSeconds), frames)
}

// BuildSynthesis merges batch analyses and the transcript into one rubric-shaped report.
func BuildSynthesis(in domain.EvaluationInput, batches []Batch) string {
	framesSeen := 0
	for _, batch := range batches {
		framesSeen += len(batch.Frames)
	}

	var b strings.Builder
	b.WriteString("# Evaluation Synthesis\n\n")
	b.WriteString("Several partial visual analyses of one video follow. Merge them into a single evaluation.\n\n")
	fmt.Fprintf(&b, "VIDEO ID: %s\n", in.VideoID)
	fmt.Fprintf(&b, "DURATION: %s\n", formatDuration(in.Metadata.DurationSeconds))
	fmt.Fprintf(&b, "FRAMES ANALYZED: %d in %d batches\n\n", framesSeen, len(batches))
	b.WriteString("---\n\n## PARTIAL VISUAL ANALYSES\n")
	for _, batch := range batches {
		fmt.Fprintf(&b, "\n### Batch %d\n%s\n", batch.Number, strings.TrimSpace(batch.Analysis))
	}
	b.WriteString("\n---\n\n## TRANSCRIPT\n\n")
	b.WriteString(transcriptOrPlaceholder(in.Transcript))
	b.WriteString("\n\n---\n\n## RUBRIC\n\n")
	b.WriteString(strings.TrimSpace(in.Rubric.Prompt))
	b.WriteString(`

---

## INSTRUCTIONS

1. Use both the visual analyses and the transcript.
2. Follow the rubric sections and output format exactly.
3. Reference batch findings and quote the transcript as evidence.
4. Estimate timestamps from the batch number and the video duration.
5. Treat failed batches as missing evidence, not as clean frames.

Write the final evaluation now.
`)
	return b.String()
}

func transcriptOrPlaceholder(t string) string {
	if strings.TrimSpace(t) == "" {
		return "(no transcript available)"
	}
	return strings.TrimSpace(t)
}

func formatDuration(seconds float64) string {
	if seconds <= 0 {
		return "unknown"
	}
	return formatFloat(seconds) + "s"
}

func formatFloat(v float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.1f", v), "0"), ".")
}
