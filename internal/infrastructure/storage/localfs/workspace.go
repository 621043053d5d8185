package localfs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/kirillkom/video-evaluator/internal/core/domain"
)

const (
	sourceFile          = "source.mp4"
	metadataFile        = "metadata.json"
	transcriptTextFile  = "transcript.txt"
	transcriptJSONFile  = "transcript.json"
	youtubeMetadataFile = "youtube_metadata.json"
	framesDir           = "frames"
	evaluationsDir      = "evaluations"
)

var validVideoID = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Workspace lays out data/<video_id>/ artifacts on the local filesystem.
type Workspace struct {
	basePath string
}

func New(basePath string) (*Workspace, error) {
	if basePath == "" {
		basePath = "./data"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Workspace{basePath: basePath}, nil
}

func (w *Workspace) BasePath() string {
	return w.basePath
}

func (w *Workspace) videoDir(videoID string) (string, error) {
	if !validVideoID.MatchString(videoID) {
		return "", domain.WrapError(domain.ErrInvalidInput, "resolve video dir", fmt.Errorf("invalid video id %q", videoID))
	}
	return filepath.Join(w.basePath, videoID), nil
}

func (w *Workspace) mustDir(videoID string) string {
	dir, err := w.videoDir(videoID)
	if err != nil {
		return filepath.Join(w.basePath, "_invalid_")
	}
	return dir
}

func (w *Workspace) Prepare(videoID string) error {
	dir, err := w.videoDir(videoID)
	if err != nil {
		return err
	}
	for _, sub := range []string{dir, filepath.Join(dir, framesDir), filepath.Join(dir, evaluationsDir)} {
		if err := os.MkdirAll(sub, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", sub, err)
		}
	}
	return nil
}

func (w *Workspace) Exists(videoID string) bool {
	dir, err := w.videoDir(videoID)
	if err != nil {
		return false
	}
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}

// NextAvailableID returns base, or the first free base_vN.
func (w *Workspace) NextAvailableID(base string) string {
	for n := 1; ; n++ {
		id := domain.VersionedVideoID(base, n)
		if !w.Exists(id) {
			return id
		}
	}
}

// ListVideoIDs returns ids of directories that contain metadata.json.
func (w *Workspace) ListVideoIDs() ([]string, error) {
	entries, err := os.ReadDir(w.basePath)
	if err != nil {
		return nil, fmt.Errorf("read data dir: %w", err)
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || !validVideoID.MatchString(e.Name()) {
			continue
		}
		if fileExists(filepath.Join(w.basePath, e.Name(), metadataFile)) {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

func (w *Workspace) SaveSource(_ context.Context, videoID string, body io.Reader) (string, error) {
	if err := w.Prepare(videoID); err != nil {
		return "", err
	}
	path := w.SourcePath(videoID)
	tmp := path + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("write file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("move file: %w", err)
	}
	return path, nil
}

func (w *Workspace) SourcePath(videoID string) string {
	return filepath.Join(w.mustDir(videoID), sourceFile)
}

func (w *Workspace) HasSource(videoID string) bool {
	return fileExists(w.SourcePath(videoID))
}

func (w *Workspace) FramesDir(videoID string) string {
	return filepath.Join(w.mustDir(videoID), framesDir)
}

func (w *Workspace) ClearFrames(videoID string) error {
	dir, err := w.videoDir(videoID)
	if err != nil {
		return err
	}
	frames := filepath.Join(dir, framesDir)
	if err := os.RemoveAll(frames); err != nil {
		return fmt.Errorf("clear frames: %w", err)
	}
	return os.MkdirAll(frames, 0o755)
}

// ListFrames returns sorted frame paths and fails with ErrVideoNotFound when none exist.
func (w *Workspace) ListFrames(videoID string) ([]string, error) {
	dir, err := w.videoDir(videoID)
	if err != nil {
		return nil, err
	}
	matches, err := filepath.Glob(filepath.Join(dir, framesDir, "*.jpg"))
	if err != nil {
		return nil, fmt.Errorf("list frames: %w", err)
	}
	if len(matches) == 0 {
		return nil, domain.WrapError(domain.ErrVideoNotFound, "list frames", fmt.Errorf("no frames in %s", filepath.Join(dir, framesDir)))
	}
	sort.Strings(matches)
	return matches, nil
}

func (w *Workspace) HasTranscript(videoID string) bool {
	return fileExists(filepath.Join(w.mustDir(videoID), transcriptTextFile))
}

func (w *Workspace) WriteTranscript(videoID string, transcript *domain.Transcript) error {
	dir, err := w.videoDir(videoID)
	if err != nil {
		return err
	}
	if err := writeJSONFile(filepath.Join(dir, transcriptJSONFile), transcript); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, transcriptTextFile), []byte(transcript.Format()), 0o644); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	return nil
}

func (w *Workspace) ReadTranscript(videoID string) (string, error) {
	dir, err := w.videoDir(videoID)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(filepath.Join(dir, transcriptTextFile))
	if err != nil {
		return "", notFoundOr(err, "read transcript")
	}
	return string(data), nil
}

func (w *Workspace) ReadTranscriptJSON(videoID string) (*domain.Transcript, error) {
	dir, err := w.videoDir(videoID)
	if err != nil {
		return nil, err
	}
	var out domain.Transcript
	if err := readJSONFile(filepath.Join(dir, transcriptJSONFile), &out, "read transcript json"); err != nil {
		return nil, err
	}
	return &out, nil
}

func (w *Workspace) WriteMetadata(meta domain.VideoMetadata) error {
	dir, err := w.videoDir(meta.VideoID)
	if err != nil {
		return err
	}
	return writeJSONFile(filepath.Join(dir, metadataFile), meta)
}

func (w *Workspace) ReadMetadata(videoID string) (*domain.VideoMetadata, error) {
	dir, err := w.videoDir(videoID)
	if err != nil {
		return nil, err
	}
	var out domain.VideoMetadata
	if err := readJSONFile(filepath.Join(dir, metadataFile), &out, "read metadata"); err != nil {
		return nil, err
	}
	return &out, nil
}

func (w *Workspace) WriteYouTubeMetadata(videoID string, meta domain.YouTubeMetadata) error {
	dir, err := w.videoDir(videoID)
	if err != nil {
		return err
	}
	return writeJSONFile(filepath.Join(dir, youtubeMetadataFile), meta)
}

func (w *Workspace) ReadYouTubeMetadata(videoID string) (*domain.YouTubeMetadata, error) {
	dir, err := w.videoDir(videoID)
	if err != nil {
		return nil, err
	}
	var out domain.YouTubeMetadata
	if err := readJSONFile(filepath.Join(dir, youtubeMetadataFile), &out, "read youtube metadata"); err != nil {
		return nil, err
	}
	return &out, nil
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("move %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readJSONFile(path string, out any, operation string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return notFoundOr(err, operation)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: decode %s: %w", operation, filepath.Base(path), err)
	}
	return nil
}

func notFoundOr(err error, operation string) error {
	if errors.Is(err, os.ErrNotExist) {
		return domain.WrapError(domain.ErrVideoNotFound, operation, err)
	}
	return fmt.Errorf("%s: %w", operation, err)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func withinBase(base, path string) bool {
	absBase, err := filepath.Abs(base)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absBase, absPath)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
