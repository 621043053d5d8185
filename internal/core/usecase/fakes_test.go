package usecase

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/video-evaluator/internal/core/domain"
)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

// clock returns t and then advances by step on every call.
func clock(t time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := t
		t = t.Add(step)
		return now
	}
}

type workspaceFake struct {
	base        string
	dirs        map[string]bool
	sources     map[string]string
	frames      map[string][]string
	transcripts map[string]*domain.Transcript
	metadata    map[string]domain.VideoMetadata
	youtube     map[string]domain.YouTubeMetadata
	listErr     error
	clearCalls  int
}

func newWorkspaceFake() *workspaceFake {
	return &workspaceFake{
		base:        "/data",
		dirs:        map[string]bool{},
		sources:     map[string]string{},
		frames:      map[string][]string{},
		transcripts: map[string]*domain.Transcript{},
		metadata:    map[string]domain.VideoMetadata{},
		youtube:     map[string]domain.YouTubeMetadata{},
	}
}

func (w *workspaceFake) Prepare(id string) error {
	w.dirs[id] = true
	return nil
}

func (w *workspaceFake) Exists(id string) bool { return w.dirs[id] }

func (w *workspaceFake) NextAvailableID(base string) string {
	if !w.dirs[base] {
		return base
	}
	for n := 2; ; n++ {
		id := domain.VersionedVideoID(base, n)
		if !w.dirs[id] {
			return id
		}
	}
}

func (w *workspaceFake) ListVideoIDs() ([]string, error) {
	if w.listErr != nil {
		return nil, w.listErr
	}
	ids := make([]string, 0, len(w.dirs))
	for id := range w.dirs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (w *workspaceFake) SaveSource(_ context.Context, id string, body io.Reader) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	w.dirs[id] = true
	w.sources[id] = string(data)
	return w.SourcePath(id), nil
}

func (w *workspaceFake) SourcePath(id string) string {
	return filepath.Join(w.base, id, "source.mp4")
}

func (w *workspaceFake) HasSource(id string) bool {
	_, ok := w.sources[id]
	return ok
}

func (w *workspaceFake) FramesDir(id string) string { return filepath.Join(w.base, id, "frames") }

func (w *workspaceFake) ClearFrames(id string) error {
	w.clearCalls++
	delete(w.frames, id)
	return nil
}

func (w *workspaceFake) ListFrames(id string) ([]string, error) {
	frames := w.frames[id]
	if len(frames) == 0 {
		return nil, domain.WrapError(domain.ErrVideoNotFound, "list frames", fmt.Errorf("no frames for %s", id))
	}
	return append([]string(nil), frames...), nil
}

func (w *workspaceFake) HasTranscript(id string) bool {
	_, ok := w.transcripts[id]
	return ok
}

func (w *workspaceFake) WriteTranscript(id string, t *domain.Transcript) error {
	w.transcripts[id] = t
	return nil
}

func (w *workspaceFake) ReadTranscript(id string) (string, error) {
	t, ok := w.transcripts[id]
	if !ok {
		return "", domain.WrapError(domain.ErrVideoNotFound, "read transcript", fmt.Errorf("missing"))
	}
	return t.Format(), nil
}

func (w *workspaceFake) ReadTranscriptJSON(id string) (*domain.Transcript, error) {
	t, ok := w.transcripts[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrVideoNotFound, "read transcript", fmt.Errorf("missing"))
	}
	return t, nil
}

func (w *workspaceFake) WriteMetadata(meta domain.VideoMetadata) error {
	w.metadata[meta.VideoID] = meta
	return nil
}

func (w *workspaceFake) ReadMetadata(id string) (*domain.VideoMetadata, error) {
	meta, ok := w.metadata[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrVideoNotFound, "read metadata", fmt.Errorf("missing"))
	}
	return &meta, nil
}

func (w *workspaceFake) WriteYouTubeMetadata(id string, meta domain.YouTubeMetadata) error {
	w.youtube[id] = meta
	return nil
}

func (w *workspaceFake) ReadYouTubeMetadata(id string) (*domain.YouTubeMetadata, error) {
	meta, ok := w.youtube[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrVideoNotFound, "read youtube metadata", fmt.Errorf("missing"))
	}
	return &meta, nil
}

// seedVideo makes an ingested video with n frames and a short transcript.
func (w *workspaceFake) seedVideo(id string, n int) {
	w.dirs[id] = true
	w.sources[id] = "video"
	frames := make([]string, n)
	for i := range frames {
		frames[i] = filepath.Join(w.FramesDir(id), fmt.Sprintf("frame_%04d_t%.1fs.jpg", i+1, float64(i)*2))
	}
	w.frames[id] = frames
	w.transcripts[id] = &domain.Transcript{Text: "hello there", Segments: []domain.TranscriptSegment{}}
	w.metadata[id] = domain.VideoMetadata{
		VideoID:              id,
		SourceType:           domain.SourceLocal,
		SourcePath:           w.SourcePath(id),
		Title:                id,
		DurationSeconds:      float64(n) * 2,
		FrameIntervalSeconds: 2,
		FrameCount:           n,
		TranscriptWordCount:  2,
		IngestionTimestamp:   domain.NewTimestamp(fixedNow),
		IngestionComplete:    true,
	}
}

type mediaFake struct {
	workspace    *workspaceFake
	info         domain.MediaInfo
	probeErr     error
	frameCount   int
	extractCalls int
}

func (m *mediaFake) Probe(context.Context, string) (domain.MediaInfo, error) {
	if m.probeErr != nil {
		return domain.MediaInfo{}, m.probeErr
	}
	return m.info, nil
}

// ExtractFrames writes frames into the fake workspace and reports one extra path,
// so callers that trust the return value instead of the disk get caught.
func (m *mediaFake) ExtractFrames(_ context.Context, _, outDir string, interval float64) ([]string, error) {
	m.extractCalls++
	id := filepath.Base(filepath.Dir(outDir))
	frames := make([]string, m.frameCount)
	for i := range frames {
		frames[i] = filepath.Join(outDir, fmt.Sprintf("frame_%04d_t%.1fs.jpg", i+1, float64(i)*interval))
	}
	m.workspace.frames[id] = frames
	return append(frames, filepath.Join(outDir, "phantom.jpg")), nil
}

type transcriberFake struct {
	transcript *domain.Transcript
	err        error
	calls      int
}

func (t *transcriberFake) Transcribe(context.Context, string) (*domain.Transcript, error) {
	t.calls++
	if t.err != nil {
		return nil, t.err
	}
	return t.transcript, nil
}

func (t *transcriberFake) Model() string { return "whisper-1" }

type downloaderFake struct {
	meta      *domain.YouTubeMetadata
	metaErr   error
	downloads []string
	workspace *workspaceFake
}

func (d *downloaderFake) Download(_ context.Context, url, dest string) error {
	d.downloads = append(d.downloads, url)
	id := filepath.Base(filepath.Dir(dest))
	d.workspace.sources[id] = url
	return nil
}

func (d *downloaderFake) FetchMetadata(context.Context, string) (*domain.YouTubeMetadata, error) {
	if d.metaErr != nil {
		return nil, d.metaErr
	}
	return d.meta, nil
}

type videoRepoFake struct {
	videos    map[string]domain.Video
	upsertErr error
	deleted   []string
}

func newVideoRepoFake() *videoRepoFake {
	return &videoRepoFake{videos: map[string]domain.Video{}}
}

func (r *videoRepoFake) Upsert(_ context.Context, v *domain.Video) (bool, error) {
	if r.upsertErr != nil {
		return false, r.upsertErr
	}
	_, exists := r.videos[v.ID]
	r.videos[v.ID] = *v
	return !exists, nil
}

func (r *videoRepoFake) GetByID(_ context.Context, id string) (*domain.Video, error) {
	v, ok := r.videos[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrVideoNotFound, "get video", fmt.Errorf("id %s", id))
	}
	return &v, nil
}

func (r *videoRepoFake) List(context.Context) ([]domain.Video, error) {
	out := make([]domain.Video, 0, len(r.videos))
	for _, v := range r.videos {
		out = append(out, v)
	}
	return out, nil
}

func (r *videoRepoFake) Delete(_ context.Context, id string) error {
	if _, ok := r.videos[id]; !ok {
		return domain.WrapError(domain.ErrVideoNotFound, "delete video", fmt.Errorf("id %s", id))
	}
	delete(r.videos, id)
	r.deleted = append(r.deleted, id)
	return nil
}

// evalRepoFake keeps rows in memory and enforces the status lifecycle.
type evalRepoFake struct {
	mu          sync.Mutex
	rows        map[int64]*domain.Evaluation
	nextID      int64
	createErr   error
	completeErr error
	failErr     error
	transitions []domain.EvaluationStatus
}

func newEvalRepoFake() *evalRepoFake {
	return &evalRepoFake{rows: map[int64]*domain.Evaluation{}}
}

func (r *evalRepoFake) CreatePending(_ context.Context, e *domain.Evaluation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	version := 0
	for _, row := range r.rows {
		if row.VideoID == e.VideoID && row.RubricName == e.RubricName && row.Version > version {
			version = row.Version
		}
	}
	r.nextID++
	e.ID = r.nextID
	e.Version = version + 1
	e.Status = domain.EvaluationPending
	e.CreatedAt = fixedNow
	e.UpdatedAt = fixedNow
	row := *e
	r.rows[e.ID] = &row
	r.transitions = append(r.transitions, domain.EvaluationPending)
	return nil
}

func (r *evalRepoFake) GetByID(_ context.Context, id int64) (*domain.Evaluation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrEvaluationNotFound, "get evaluation", fmt.Errorf("id %d", id))
	}
	out := *row
	return &out, nil
}

func (r *evalRepoFake) Latest(_ context.Context, videoID, rubric string) (*domain.Evaluation, error) {
	versions, _ := r.ListVersions(context.Background(), videoID, rubric)
	if len(versions) == 0 {
		return nil, domain.WrapError(domain.ErrEvaluationNotFound, "latest evaluation", fmt.Errorf("%s/%s", videoID, rubric))
	}
	return &versions[0], nil
}

func (r *evalRepoFake) ListVersions(_ context.Context, videoID, rubric string) ([]domain.Evaluation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Evaluation
	for _, row := range r.rows {
		if row.VideoID == videoID && row.RubricName == rubric {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out, nil
}

func (r *evalRepoFake) ListByVideo(_ context.Context, videoID string) ([]domain.Evaluation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Evaluation
	for _, row := range r.rows {
		if row.VideoID == videoID {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *evalRepoFake) ListByStatus(_ context.Context, status domain.EvaluationStatus) ([]domain.Evaluation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Evaluation
	for _, row := range r.rows {
		if row.Status == status {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (r *evalRepoFake) transition(id int64, next domain.EvaluationStatus, apply func(*domain.Evaluation)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return domain.WrapError(domain.ErrEvaluationNotFound, "transition", fmt.Errorf("id %d", id))
	}
	if !row.Status.CanTransitionTo(next) {
		return domain.WrapError(domain.ErrInvalidStatusTransition, "transition", fmt.Errorf("%s -> %s", row.Status, next))
	}
	row.Status = next
	apply(row)
	r.transitions = append(r.transitions, next)
	return nil
}

func (r *evalRepoFake) Start(_ context.Context, id int64, at time.Time) error {
	return r.transition(id, domain.EvaluationInProgress, func(e *domain.Evaluation) { e.StartedAt = &at })
}

func (r *evalRepoFake) Complete(_ context.Context, id int64, c domain.EvaluationCompletion) error {
	if r.completeErr != nil {
		return r.completeErr
	}
	return r.transition(id, domain.EvaluationCompleted, func(e *domain.Evaluation) {
		e.Evaluator = c.Evaluator
		e.ModelName = c.ModelName
		e.Cost = c.Cost
		e.CompletedAt = &c.CompletedAt
		e.DurationSeconds = c.DurationSeconds
		e.Result = c.Result
		e.Summary = c.Summary
		e.ResultPath = c.ResultPath
	})
}

func (r *evalRepoFake) Fail(_ context.Context, id int64, message string, at time.Time, duration float64) error {
	if r.failErr != nil {
		return r.failErr
	}
	return r.transition(id, domain.EvaluationFailed, func(e *domain.Evaluation) {
		e.ErrorMessage = message
		e.CompletedAt = &at
		e.DurationSeconds = duration
	})
}

func (r *evalRepoFake) ExistsByResultPath(_ context.Context, path string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.ResultPath == path {
			return true, nil
		}
	}
	return false, nil
}

func (r *evalRepoFake) TotalCost(_ context.Context, videoID string) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0.0
	for _, row := range r.rows {
		if videoID == "" || row.VideoID == videoID {
			total += row.Cost
		}
	}
	return domain.RoundCost(total), nil
}

type reportStoreFake struct {
	saved   []domain.EvaluationReport
	files   map[string][]string
	docs    map[string]domain.EvaluationReport
	saveErr error
}

func newReportStoreFake() *reportStoreFake {
	return &reportStoreFake{files: map[string][]string{}, docs: map[string]domain.EvaluationReport{}}
}

func (s *reportStoreFake) Save(report domain.EvaluationReport) (string, error) {
	if s.saveErr != nil {
		return "", s.saveErr
	}
	s.saved = append(s.saved, report)
	path := filepath.Join("/data", report.VideoID, "evaluations", domain.ReportFileName(report.Evaluator, report.Rubric, report.Timestamp.Time))
	s.add(path, report)
	return path, nil
}

func (s *reportStoreFake) add(path string, report domain.EvaluationReport) {
	id := filepath.Base(filepath.Dir(filepath.Dir(path)))
	s.files[id] = append(s.files[id], path)
	s.docs[path] = report
}

func (s *reportStoreFake) Load(path string) (*domain.EvaluationReport, []byte, error) {
	report, ok := s.docs[path]
	if !ok {
		return nil, nil, domain.WrapError(domain.ErrEvaluationNotFound, "load report", fmt.Errorf("%s", path))
	}
	return &report, []byte(`{"video_id":"` + report.VideoID + `"}`), nil
}

func (s *reportStoreFake) List(videoID string) ([]string, error) {
	return append([]string(nil), s.files[videoID]...), nil
}

type catalogFake struct {
	rubrics []domain.Rubric
}

func defaultCatalog() *catalogFake {
	return &catalogFake{rubrics: []domain.Rubric{
		{Name: "hook", DisplayName: "Hook", IsActive: true, SortOrder: 1, Prompt: "Rate the hook."},
		{Name: "pacing_flow", DisplayName: "Pacing", IsActive: true, SortOrder: 2, Prompt: "Rate pacing."},
	}}
}

func (c *catalogFake) Get(name string) (domain.Rubric, error) {
	for _, r := range c.rubrics {
		if r.Name == name {
			return r, nil
		}
	}
	return domain.Rubric{}, domain.WrapError(domain.ErrRubricNotFound, "get rubric", fmt.Errorf("%q", name))
}

func (c *catalogFake) List(activeOnly bool) []domain.Rubric {
	var out []domain.Rubric
	for _, r := range c.rubrics {
		if !activeOnly || r.IsActive {
			out = append(out, r)
		}
	}
	return out
}

type evaluatorFake struct {
	name    string
	model   string
	out     *domain.EvaluationOutput
	err     error
	block   bool
	inputs  []domain.EvaluationInput
	maxFrms int
}

func (e *evaluatorFake) Name() string         { return e.name }
func (e *evaluatorFake) DefaultModel() string { return e.model }

func (e *evaluatorFake) Evaluate(ctx context.Context, in domain.EvaluationInput) (*domain.EvaluationOutput, error) {
	e.inputs = append(e.inputs, in)
	if e.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if e.err != nil {
		return nil, e.err
	}
	out := *e.out
	return &out, nil
}

type limitedEvaluatorFake struct {
	*evaluatorFake
}

func (e limitedEvaluatorFake) MaxFrames() int { return e.maxFrms }

type ledgerFake struct {
	entries   []domain.CostEntry
	recordErr error
	summary   domain.CostSummary
}

func (l *ledgerFake) Record(_ context.Context, entry domain.CostEntry) error {
	if l.recordErr != nil {
		return l.recordErr
	}
	l.entries = append(l.entries, entry)
	return nil
}

func (l *ledgerFake) Summary(context.Context) (domain.CostSummary, error) { return l.summary, nil }

type queueFake struct {
	ingest     []domain.IngestJob
	evaluate   []domain.EvaluationJob
	publishErr error
}

func (q *queueFake) PublishIngest(_ context.Context, job domain.IngestJob) error {
	if q.publishErr != nil {
		return q.publishErr
	}
	q.ingest = append(q.ingest, job)
	return nil
}

func (q *queueFake) SubscribeIngest(context.Context, func(context.Context, domain.IngestJob) error) error {
	return nil
}

func (q *queueFake) PublishEvaluation(_ context.Context, job domain.EvaluationJob) error {
	if q.publishErr != nil {
		return q.publishErr
	}
	q.evaluate = append(q.evaluate, job)
	return nil
}

func (q *queueFake) SubscribeEvaluations(context.Context, func(context.Context, domain.EvaluationJob) error) error {
	return nil
}

type observerFake struct {
	started  []string
	finished []string
}

func (o *observerFake) EvaluationStarted(evaluator string) { o.started = append(o.started, evaluator) }

func (o *observerFake) EvaluationFinished(evaluator, status string, _ time.Duration, _ int, _ domain.TokenUsage, _ float64) {
	o.finished = append(o.finished, evaluator+":"+status)
}

func containsAll(s string, parts ...string) bool {
	for _, p := range parts {
		if !strings.Contains(s, p) {
			return false
		}
	}
	return true
}
