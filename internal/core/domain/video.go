package domain

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

type SourceType string

const (
	SourceLocal   SourceType = "local"
	SourceYouTube SourceType = "youtube"
)

// Video is the persisted row for an ingested video.
type Video struct {
	ID              string         `json:"id"`
	Title           string         `json:"title"`
	Filename        string         `json:"filename"`
	Filepath        string         `json:"filepath"`
	DurationSeconds float64        `json:"duration_seconds"`
	FrameCount      int            `json:"frame_count"`
	HasTranscript   bool           `json:"has_transcript"`
	YouTubeID       string         `json:"youtube_id,omitempty"`
	YouTubeURL      string         `json:"youtube_url,omitempty"`
	IngestionDate   time.Time      `json:"ingestion_date"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// VideoMetadata is the metadata.json document written next to the artifacts.
type VideoMetadata struct {
	VideoID              string     `json:"video_id"`
	SourceType           SourceType `json:"source_type"`
	SourcePath           string     `json:"source_path"`
	YouTubeURL           string     `json:"youtube_url,omitempty"`
	Title                string     `json:"title,omitempty"`
	DurationSeconds      float64    `json:"duration_seconds"`
	FPS                  float64    `json:"fps"`
	FrameIntervalSeconds float64    `json:"frame_interval_seconds"`
	FrameCount           int        `json:"frame_count"`
	FrameList            []string   `json:"frame_list"`
	WhisperModel         string     `json:"whisper_model"`
	WhisperLanguage      string     `json:"whisper_language,omitempty"`
	TranscriptWordCount  int        `json:"transcript_word_count"`
	IngestionTimestamp   Timestamp  `json:"ingestion_timestamp"`
	IngestionComplete    bool       `json:"ingestion_complete"`
}

// YouTubeMetadata holds the subset of downloader metadata that the dashboard uses.
type YouTubeMetadata struct {
	VideoID         string    `json:"video_id"`
	Title           string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	Channel         string    `json:"channel,omitempty"`
	ChannelID       string    `json:"channel_id,omitempty"`
	ChannelURL      string    `json:"channel_url,omitempty"`
	UploadDate      string    `json:"upload_date,omitempty"`
	DurationSeconds float64   `json:"duration_seconds"`
	ViewCount       int64     `json:"view_count"`
	LikeCount       int64     `json:"like_count"`
	CommentCount    int64     `json:"comment_count"`
	Tags            []string  `json:"tags,omitempty"`
	Hashtags        []string  `json:"hashtags,omitempty"`
	Categories      []string  `json:"categories,omitempty"`
	ThumbnailURL    string    `json:"thumbnail_url,omitempty"`
	WebpageURL      string    `json:"webpage_url"`
	Width           int       `json:"width,omitempty"`
	Height          int       `json:"height,omitempty"`
	FPS             float64   `json:"fps,omitempty"`
	Language        string    `json:"language,omitempty"`
	Subscribers     int64     `json:"channel_subscriber_count,omitempty"`
	HasCaptions     bool      `json:"has_captions"`
	AgeRestricted   bool      `json:"age_restricted"`
	Availability    string    `json:"availability,omitempty"`
	FetchedAt       Timestamp `json:"fetched_at"`
}

// MediaInfo is what a prober learns about a source file.
type MediaInfo struct {
	DurationSeconds float64
	FPS             float64
	Width           int
	Height          int
	HasAudio        bool
}

type IngestMode string

const (
	IngestOverwrite  IngestMode = "overwrite"
	IngestAddMissing IngestMode = "add_missing"
	IngestNewVersion IngestMode = "new_version"
)

func ParseIngestMode(raw string) (IngestMode, error) {
	switch IngestMode(strings.TrimSpace(raw)) {
	case "", IngestOverwrite:
		return IngestOverwrite, nil
	case IngestAddMissing:
		return IngestAddMissing, nil
	case IngestNewVersion:
		return IngestNewVersion, nil
	default:
		return "", WrapError(ErrInvalidInput, "parse ingest mode", fmt.Errorf("unknown mode %q", raw))
	}
}

// IngestRequest describes one ingestion run.
type IngestRequest struct {
	Source               string     `json:"source"`
	VideoID              string     `json:"video_id,omitempty"`
	Title                string     `json:"title,omitempty"`
	FrameIntervalSeconds float64    `json:"frame_interval_seconds,omitempty"`
	Mode                 IngestMode `json:"mode,omitempty"`
	SkipTranscript       bool       `json:"skip_transcript,omitempty"`
}

type IngestResult struct {
	VideoID           string        `json:"video_id"`
	Created           bool          `json:"created"`
	FrameCount        int           `json:"frame_count"`
	TranscriptWords   int           `json:"transcript_words"`
	FramesSkipped     bool          `json:"frames_skipped"`
	TranscriptSkipped bool          `json:"transcript_skipped"`
	Duration          time.Duration `json:"duration"`
}

var (
	invalidIDChars   = regexp.MustCompile(`[^a-zA-Z0-9_-]`)
	repeatUnderscore = regexp.MustCompile(`_+`)
	youtubeIDPattern = regexp.MustCompile(`(?:v=|/)([0-9A-Za-z_-]{11})`)
	bareYouTubeID    = regexp.MustCompile(`^[0-9A-Za-z_-]{11}$`)
)

// SanitizeVideoID turns a filename into a directory-safe video id.
func SanitizeVideoID(name string) string {
	base := filepath.Base(strings.TrimSpace(name))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	id := invalidIDChars.ReplaceAllString(base, "_")
	id = repeatUnderscore.ReplaceAllString(id, "_")
	id = strings.Trim(id, "_")
	if id == "" {
		return "video"
	}
	return id
}

func IsYouTubeURL(raw string) bool {
	s := strings.ToLower(strings.TrimSpace(raw))
	return strings.Contains(s, "youtube.com/") || strings.Contains(s, "youtu.be/")
}

// ExtractYouTubeID returns the 11 character id from a watch, short, embed or youtu.be URL,
// or from a bare id.
func ExtractYouTubeID(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if bareYouTubeID.MatchString(s) {
		return s, true
	}
	m := youtubeIDPattern.FindStringSubmatch(s)
	if len(m) < 2 {
		return "", false
	}
	return m[1], true
}

// VersionedVideoID returns the n-th iteration id of base, e.g. clip_v2.
func VersionedVideoID(base string, n int) string {
	if n <= 1 {
		return base
	}
	return fmt.Sprintf("%s_v%d", base, n)
}
