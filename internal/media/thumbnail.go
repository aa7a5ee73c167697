package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"mixdown/internal/jobs"
	"mixdown/internal/procrun"
)

const DefaultThumbnailWidth = 320

// ThumbnailParams selects the frame to extract and where to put it.
// An empty OutputPath lands in the configured output directory (or
// the OS temp dir) under the job id.
type ThumbnailParams struct {
	MediaPath  string  `json:"mediaPath"`
	TimeSec    float64 `json:"timeSec,omitempty"`
	Width      int     `json:"width,omitempty"`
	OutputPath string  `json:"outputPath,omitempty"`
}

type ThumbnailResult struct {
	ThumbnailPath string  `json:"thumbnailPath"`
	TimeSec       float64 `json:"timeSec"`
	Width         int     `json:"width"`
}

type thumbnailTask struct {
	params    ThumbnailParams
	sup       *procrun.Supervisor
	ffmpeg    string
	outputDir string
}

func (t *thumbnailTask) Execute(ctx context.Context, rc *jobs.RunContext) (json.RawMessage, error) {
	width := t.params.Width
	if width <= 0 {
		width = DefaultThumbnailWidth
	}

	out := t.params.OutputPath
	if out == "" {
		dir := t.outputDir
		if dir == "" {
			dir = os.TempDir()
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create thumbnail dir: %w", err)
		}
		out = filepath.Join(dir, rc.JobID+".jpg")
	}

	args := []string{
		"-hide_banner",
		"-ss", strconv.FormatFloat(t.params.TimeSec, 'f', 3, 64),
		"-i", t.params.MediaPath,
		"-frames:v", "1",
		"-vf", fmt.Sprintf("scale=%d:-1", width),
		"-y",
		out,
	}
	if _, err := t.sup.Run(ctx, rc.JobID, t.ffmpeg, args, nil); err != nil {
		return nil, err
	}
	if _, err := os.Stat(out); err != nil {
		return nil, fmt.Errorf("thumbnail not produced: %w", err)
	}

	return json.Marshal(ThumbnailResult{
		ThumbnailPath: out,
		TimeSec:       t.params.TimeSec,
		Width:         width,
	})
}

func (t *thumbnailTask) CancelExec(jobID string) bool { return t.sup.Cancel(jobID) }
