package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/kirillkom/video-evaluator/internal/core/domain"
)

const maxVersionAttempts = 5

type EvaluationRepository struct {
	db *sql.DB
}

func NewEvaluationRepository(db *sql.DB) *EvaluationRepository {
	return &EvaluationRepository{db: db}
}

const evaluationColumns = `id, video_id, rubric_name, version, status, evaluator, model_name, cost,
	started_at, completed_at, duration_seconds, error_message, result, summary, result_path, created_at, updated_at`

func (r *EvaluationRepository) CreatePending(ctx context.Context, eval *domain.Evaluation) error {
	now := time.Now().UTC()
	var lastErr error
	for attempt := 0; attempt < maxVersionAttempts; attempt++ {
		row := r.db.QueryRowContext(ctx, `
INSERT INTO evaluations (video_id, rubric_name, version, status, evaluator, model_name, created_at, updated_at)
SELECT ?1, ?2, COALESCE(MAX(version), 0) + 1, ?3, ?4, ?5, ?6, ?6
FROM evaluations
WHERE video_id = ?1 AND rubric_name = ?2
RETURNING id, version
`, eval.VideoID, eval.RubricName, string(domain.EvaluationPending), eval.Evaluator, eval.ModelName, now)

		err := row.Scan(&eval.ID, &eval.Version)
		if err == nil {
			eval.Status = domain.EvaluationPending
			eval.CreatedAt = now
			eval.UpdatedAt = now
			return nil
		}
		switch {
		case isConstraint(err, sqlite3.ErrConstraintUnique):
			lastErr = err
			continue
		case isConstraint(err, sqlite3.ErrConstraintForeignKey):
			return domain.WrapError(domain.ErrVideoNotFound, "create evaluation", fmt.Errorf("video_id=%s", eval.VideoID))
		}
		return fmt.Errorf("create evaluation: %w", err)
	}
	return domain.WrapError(domain.ErrConflict, "create evaluation", lastErr)
}

func (r *EvaluationRepository) GetByID(ctx context.Context, id int64) (*domain.Evaluation, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+evaluationColumns+` FROM evaluations WHERE id = ?`, id)
	eval, err := scanEvaluation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrEvaluationNotFound, "get evaluation", fmt.Errorf("id=%d", id))
		}
		return nil, fmt.Errorf("scan evaluation: %w", err)
	}
	return &eval, nil
}

func (r *EvaluationRepository) Latest(ctx context.Context, videoID, rubric string) (*domain.Evaluation, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+evaluationColumns+`
FROM evaluations
WHERE video_id = ? AND rubric_name = ?
ORDER BY version DESC
LIMIT 1
`, videoID, rubric)
	eval, err := scanEvaluation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrEvaluationNotFound, "latest evaluation",
				fmt.Errorf("video_id=%s rubric=%s", videoID, rubric))
		}
		return nil, fmt.Errorf("scan evaluation: %w", err)
	}
	return &eval, nil
}

func (r *EvaluationRepository) ListVersions(ctx context.Context, videoID, rubric string) ([]domain.Evaluation, error) {
	return r.list(ctx, "list evaluation versions", `
SELECT `+evaluationColumns+`
FROM evaluations
WHERE video_id = ? AND rubric_name = ?
ORDER BY version DESC
`, videoID, rubric)
}

func (r *EvaluationRepository) ListByVideo(ctx context.Context, videoID string) ([]domain.Evaluation, error) {
	return r.list(ctx, "list video evaluations", `
SELECT `+evaluationColumns+`
FROM evaluations
WHERE video_id = ?
ORDER BY rubric_name, version DESC
`, videoID)
}

func (r *EvaluationRepository) ListByStatus(ctx context.Context, status domain.EvaluationStatus) ([]domain.Evaluation, error) {
	return r.list(ctx, "list evaluations by status", `
SELECT `+evaluationColumns+`
FROM evaluations
WHERE status = ?
ORDER BY created_at, id
`, string(status))
}

func (r *EvaluationRepository) list(ctx context.Context, op, query string, args ...interface{}) ([]domain.Evaluation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out := make([]domain.Evaluation, 0)
	for rows.Next() {
		eval, err := scanEvaluation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan evaluation: %w", err)
		}
		out = append(out, eval)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate evaluations: %w", err)
	}
	return out, nil
}

func (r *EvaluationRepository) Start(ctx context.Context, id int64, startedAt time.Time) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE evaluations
SET status = ?, started_at = ?, updated_at = ?
WHERE id = ? AND status = ?
`, string(domain.EvaluationInProgress), startedAt.UTC(), time.Now().UTC(), id, string(domain.EvaluationPending))
	if err != nil {
		return fmt.Errorf("start evaluation: %w", err)
	}
	return r.checkTransition(ctx, result, id, domain.EvaluationInProgress)
}

func (r *EvaluationRepository) Complete(ctx context.Context, id int64, c domain.EvaluationCompletion) error {
	var resultJSON interface{}
	if len(c.Result) > 0 {
		resultJSON = string(c.Result)
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE evaluations
SET status = ?, evaluator = ?, model_name = ?, cost = ?, completed_at = ?, duration_seconds = ?,
	result = ?, summary = ?, result_path = ?, error_message = NULL, updated_at = ?
WHERE id = ? AND status = ?
`, string(domain.EvaluationCompleted), c.Evaluator, c.ModelName, c.Cost, c.CompletedAt.UTC(), c.DurationSeconds,
		resultJSON, nullableString(c.Summary), nullableString(c.ResultPath), time.Now().UTC(),
		id, string(domain.EvaluationInProgress))
	if err != nil {
		if isConstraint(err, sqlite3.ErrConstraintUnique) {
			return domain.WrapError(domain.ErrConflict, "complete evaluation", fmt.Errorf("result_path=%s already recorded", c.ResultPath))
		}
		return fmt.Errorf("complete evaluation: %w", err)
	}
	return r.checkTransition(ctx, result, id, domain.EvaluationCompleted)
}

func (r *EvaluationRepository) Fail(ctx context.Context, id int64, message string, completedAt time.Time, durationSeconds float64) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE evaluations
SET status = ?, error_message = ?, completed_at = ?, duration_seconds = ?, updated_at = ?
WHERE id = ? AND status = ?
`, string(domain.EvaluationFailed), message, completedAt.UTC(), durationSeconds, time.Now().UTC(),
		id, string(domain.EvaluationInProgress))
	if err != nil {
		return fmt.Errorf("fail evaluation: %w", err)
	}
	return r.checkTransition(ctx, result, id, domain.EvaluationFailed)
}

func (r *EvaluationRepository) checkTransition(ctx context.Context, result sql.Result, id int64, next domain.EvaluationStatus) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("evaluation rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	var current string
	err = r.db.QueryRowContext(ctx, `SELECT status FROM evaluations WHERE id = ?`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.WrapError(domain.ErrEvaluationNotFound, "update evaluation status", fmt.Errorf("id=%d", id))
		}
		return fmt.Errorf("read evaluation status: %w", err)
	}
	return domain.WrapError(domain.ErrInvalidStatusTransition, "update evaluation status",
		fmt.Errorf("id=%d %s -> %s", id, current, next))
}

func (r *EvaluationRepository) ExistsByResultPath(ctx context.Context, path string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM evaluations WHERE result_path = ?)`, path).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("evaluation exists by result path: %w", err)
	}
	return exists, nil
}

// TotalCost sums one video, or every video when videoID is empty.
func (r *EvaluationRepository) TotalCost(ctx context.Context, videoID string) (float64, error) {
	var total float64
	err := r.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(cost), 0.0) FROM evaluations WHERE (?1 = '' OR video_id = ?1)`, videoID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("evaluation total cost: %w", err)
	}
	return domain.RoundCost(total), nil
}

func scanEvaluation(row rowScanner) (domain.Evaluation, error) {
	var e domain.Evaluation
	var status string
	var startedAt, completedAt sql.NullTime
	var errMessage, result, summary, resultPath sql.NullString
	err := row.Scan(
		&e.ID, &e.VideoID, &e.RubricName, &e.Version, &status, &e.Evaluator, &e.ModelName, &e.Cost,
		&startedAt, &completedAt, &e.DurationSeconds, &errMessage, &result, &summary, &resultPath,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return domain.Evaluation{}, err
	}
	e.Status = domain.EvaluationStatus(status)
	if startedAt.Valid {
		t := startedAt.Time
		e.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		e.CompletedAt = &t
	}
	e.ErrorMessage = errMessage.String
	e.Summary = summary.String
	e.ResultPath = resultPath.String
	if result.Valid && result.String != "" {
		e.Result = []byte(result.String)
	}
	return e, nil
}
