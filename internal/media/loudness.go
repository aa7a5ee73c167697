package media

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"

	"mixdown/internal/jobs"
	"mixdown/internal/procrun"
)

// LoudnessParams names the media to measure.
type LoudnessParams struct {
	MediaPath string `json:"mediaPath"`
}

// LoudnessResult carries the EBU R128 measurement summary.
// Measurement only; normalization is a separate, excluded feature.
type LoudnessResult struct {
	IntegratedLUFS  float64 `json:"integratedLufs"`
	LoudnessRange   float64 `json:"loudnessRange"`
	PeakDBFS        float64 `json:"peakDbfs"`
	WithinEBUTarget bool    `json:"withinEbuTarget"`
}

// ebur128 writes its running values per frame and a summary block at
// the end of stderr; the last match of each pattern is the summary.
var (
	integratedRe = regexp.MustCompile(`I:\s+(-?\d+(?:\.\d+)?)\s+LUFS`)
	lraRe        = regexp.MustCompile(`LRA:\s+(-?\d+(?:\.\d+)?)\s+LU\b`)
	peakRe       = regexp.MustCompile(`Peak:\s+(-?\d+(?:\.\d+)?)\s+dBFS`)
)

// ParseLoudnessSummary extracts the final EBU R128 values from
// cumulative ffmpeg stderr text.
func ParseLoudnessSummary(stderr string) (LoudnessResult, error) {
	var res LoudnessResult

	m := integratedRe.FindAllStringSubmatch(stderr, -1)
	if len(m) == 0 {
		return res, fmt.Errorf("no integrated loudness found in ebur128 output")
	}
	res.IntegratedLUFS, _ = strconv.ParseFloat(m[len(m)-1][1], 64)

	if m := lraRe.FindAllStringSubmatch(stderr, -1); len(m) > 0 {
		res.LoudnessRange, _ = strconv.ParseFloat(m[len(m)-1][1], 64)
	}
	if m := peakRe.FindAllStringSubmatch(stderr, -1); len(m) > 0 {
		res.PeakDBFS, _ = strconv.ParseFloat(m[len(m)-1][1], 64)
	}
	return res, nil
}

type loudnessTask struct {
	params LoudnessParams
	sup    *procrun.Supervisor
	ffmpeg string
}

func (t *loudnessTask) Execute(ctx context.Context, rc *jobs.RunContext) (json.RawMessage, error) {
	args := []string{
		"-hide_banner",
		"-i", t.params.MediaPath,
		"-af", "ebur128",
		"-f", "null",
		"-",
	}
	res, err := t.sup.Run(ctx, rc.JobID, t.ffmpeg, args, func(u procrun.ProgressUpdate) {
		rc.Progress(u.Percent, fmt.Sprintf("%.1fs / %.1fs", u.CurrentSeconds, u.TotalSeconds))
	})
	if err != nil {
		return nil, err
	}

	parsed, err := ParseLoudnessSummary(res.Stderr)
	if err != nil {
		return nil, err
	}
	return json.Marshal(parsed)
}

func (t *loudnessTask) CancelExec(jobID string) bool { return t.sup.Cancel(jobID) }
func (t *loudnessTask) PauseExec(jobID string) bool  { return t.sup.Pause(jobID) }
func (t *loudnessTask) ResumeExec(jobID string) bool { return t.sup.Resume(jobID) }

// classifyLoudness is the loudness kind's result post-processor: it
// annotates whether the measurement sits within 1 LU of the EBU R128
// broadcast target (-23 LUFS).
func classifyLoudness(raw json.RawMessage) (json.RawMessage, error) {
	var res LoudnessResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return raw, nil
	}
	delta := res.IntegratedLUFS - (-23.0)
	if delta < 0 {
		delta = -delta
	}
	res.WithinEBUTarget = delta <= 1.0
	return json.Marshal(res)
}
