// Package probe wraps an external stream-metadata tool (ffprobe) behind
// a narrow interface, grounded on the teacher pack's only external-process
// adapter (YannKr's watermark.Probe/ExtractVideoThumbnail): build an
// explicit argv, never a shell string, and validate every filename before
// it reaches exec.Command.
package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"time"
)

const defaultTimeout = 5 * time.Second

// Stream is the subset of ffprobe's stream object the core consumes
// (spec §6.5).
type Stream struct {
	Index     int    `json:"index"`
	CodecType string `json:"codec_type"`
	CodecName string `json:"codec_name"`
	Tags      struct {
		Language string `json:"language"`
		Title    string `json:"title"`
	} `json:"tags"`
	Disposition struct {
		Default int `json:"default"`
	} `json:"disposition"`
}

// Tracks is the core-facing result shape: audio and subtitle streams,
// already filtered from the raw ffprobe stream list.
type Tracks struct {
	Audio     []Stream
	Subtitles []Stream
	UsesHEVC  bool
}

// Prober probes a media file's streams and extracts a thumbnail. Errors
// are always recoverable at the caller: per spec §4.6, a probe failure
// degrades to empty tracks, never fails the playlist update.
type Prober interface {
	Probe(ctx context.Context, dir, filename string) (Tracks, error)
	Thumbnail(ctx context.Context, dir, filename, outputPath string, seekSeconds float64) error
}

// FFProbe invokes the real ffprobe/ffmpeg binaries found on PATH.
type FFProbe struct {
	// Timeout bounds every invocation; zero means defaultTimeout.
	Timeout time.Duration
}

type ffprobeOutput struct {
	Streams []Stream `json:"streams"`
}

// Probe returns the audio and subtitle streams for dir/filename.
func (f FFProbe) Probe(ctx context.Context, dir, filename string) (Tracks, error) {
	if !ValidFilename(filename) {
		return Tracks{}, fmt.Errorf("probe: unsafe filename %q", filename)
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeout())
	defer cancel()

	path := filepath.Join(dir, filename)
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return Tracks{}, fmt.Errorf("probe: ffprobe: %w", err)
	}

	var parsed ffprobeOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return Tracks{}, fmt.Errorf("probe: parse ffprobe output: %w", err)
	}

	var tracks Tracks
	for _, s := range parsed.Streams {
		switch s.CodecType {
		case "audio":
			tracks.Audio = append(tracks.Audio, s)
		case "subtitle":
			tracks.Subtitles = append(tracks.Subtitles, s)
		case "video":
			if s.CodecName == "hevc" || s.CodecName == "h265" {
				tracks.UsesHEVC = true
			}
		}
	}
	return tracks, nil
}

// Thumbnail extracts a single frame from dir/filename into outputPath.
func (f FFProbe) Thumbnail(ctx context.Context, dir, filename, outputPath string, seekSeconds float64) error {
	if !ValidFilename(filename) {
		return fmt.Errorf("thumbnail: unsafe filename %q", filename)
	}
	if seekSeconds < 0.1 {
		seekSeconds = 1
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeout())
	defer cancel()

	path := filepath.Join(dir, filename)
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-ss", fmt.Sprintf("%.2f", seekSeconds),
		"-i", path,
		"-vframes", "1",
		"-vf", "scale=320:-1",
		"-q:v", "4",
		"-y",
		outputPath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("thumbnail: ffmpeg: %w: %s", err, out)
	}
	return nil
}

func (f FFProbe) timeout() time.Duration {
	if f.Timeout <= 0 {
		return defaultTimeout
	}
	return f.Timeout
}
