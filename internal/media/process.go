package media

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"mixdown/internal/jobs"
	"mixdown/internal/procrun"
)

// ProcessParams is a generic ffmpeg invocation with caller-supplied
// arguments. MediaPath is informational: it lets the job be found via
// the by-media query without inspecting the argument list.
type ProcessParams struct {
	Args      []string `json:"args"`
	MediaPath string   `json:"mediaPath,omitempty"`
}

type ProcessResult struct {
	ExitCode int      `json:"exitCode"`
	Output   []string `json:"output,omitempty"`
}

type processTask struct {
	params ProcessParams
	sup    *procrun.Supervisor
	ffmpeg string
}

func (t *processTask) Execute(ctx context.Context, rc *jobs.RunContext) (json.RawMessage, error) {
	res, err := t.sup.Run(ctx, rc.JobID, t.ffmpeg, t.params.Args, func(u procrun.ProgressUpdate) {
		rc.Progress(u.Percent, fmt.Sprintf("%.1fs / %.1fs", u.CurrentSeconds, u.TotalSeconds))
	})
	if err != nil {
		return nil, err
	}

	var output []string
	if res.Stderr != "" {
		lines := strings.Split(res.Stderr, "\n")
		if len(lines) > 5 {
			lines = lines[len(lines)-5:]
		}
		output = lines
	}
	return json.Marshal(ProcessResult{ExitCode: res.ExitCode, Output: output})
}

func (t *processTask) CancelExec(jobID string) bool { return t.sup.Cancel(jobID) }
func (t *processTask) PauseExec(jobID string) bool  { return t.sup.Pause(jobID) }
func (t *processTask) ResumeExec(jobID string) bool { return t.sup.Resume(jobID) }
