package costlog

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kirillkom/video-evaluator/internal/core/domain"
)

// Ledger appends one JSON line per evaluation to a cost log file.
type Ledger struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

func New(path string) *Ledger {
	if path == "" {
		path = "./data/cost_log.jsonl"
	}
	return &Ledger{path: path, now: time.Now}
}

func (l *Ledger) Record(_ context.Context, entry domain.CostEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = domain.NewTimestamp(l.now())
	}
	entry.Cost = domain.RoundCost(entry.Cost)

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cost entry: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create cost log dir: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open cost log: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append cost log: %w", err)
	}
	return nil
}

// Summary totals the ledger; malformed lines are skipped with a warning.
func (l *Ledger) Summary(_ context.Context) (domain.CostSummary, error) {
	out := domain.CostSummary{ByModel: map[string]float64{}, GeneratedAt: l.now().UTC()}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return out, nil
		}
		return out, fmt.Errorf("open cost log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var entry domain.CostEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			slog.Warn("cost_log_line_skipped", "path", l.path, "line", lineNo, "error", err)
			continue
		}
		out.TotalCost += entry.Cost
		out.ByModel[entry.Model] += entry.Cost
		out.Evaluations++
	}
	if err := scanner.Err(); err != nil {
		return out, fmt.Errorf("scan cost log: %w", err)
	}

	out.TotalCost = domain.RoundCost(out.TotalCost)
	for model, cost := range out.ByModel {
		out.ByModel[model] = domain.RoundCost(cost)
	}
	return out, nil
}
