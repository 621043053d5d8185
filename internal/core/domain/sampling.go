package domain

import (
	"fmt"
	"strings"
)

type SamplingStrategy string

const (
	SamplingEven   SamplingStrategy = "even"
	SamplingAll    SamplingStrategy = "all"
	SamplingFirstN SamplingStrategy = "first_n"
	SamplingLastN  SamplingStrategy = "last_n"
)

func ParseSamplingStrategy(raw string) (SamplingStrategy, error) {
	switch s := SamplingStrategy(strings.TrimSpace(raw)); s {
	case SamplingEven, SamplingAll, SamplingFirstN, SamplingLastN:
		return s, nil
	case "":
		return SamplingEven, nil
	default:
		return "", WrapError(ErrInvalidInput, "parse sampling strategy", fmt.Errorf("unknown strategy %q", raw))
	}
}

// SampleFrames selects at most max frames from the ordered list.
func SampleFrames(frames []string, strategy SamplingStrategy, max int) ([]string, error) {
	if _, err := ParseSamplingStrategy(string(strategy)); err != nil {
		return nil, err
	}
	if max <= 0 || len(frames) <= max || strategy == SamplingAll {
		return append([]string(nil), frames...), nil
	}

	switch strategy {
	case SamplingFirstN:
		return append([]string(nil), frames[:max]...), nil
	case SamplingLastN:
		return append([]string(nil), frames[len(frames)-max:]...), nil
	default:
		out := make([]string, 0, max)
		for i := 0; i < max; i++ {
			out = append(out, frames[i*len(frames)/max])
		}
		return out, nil
	}
}
