package media

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"mixdown/internal/jobs"
	"mixdown/internal/procrun"
)

// ProbeParams names the media to inspect.
type ProbeParams struct {
	MediaPath string `json:"mediaPath"`
}

type StreamInfo struct {
	Type       string `json:"type"`
	Codec      string `json:"codec"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
	SampleRate string `json:"sampleRate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
}

type ProbeResult struct {
	DurationSeconds float64      `json:"durationSeconds"`
	FormatName      string       `json:"formatName"`
	HasAudio        bool         `json:"hasAudio"`
	HasVideo        bool         `json:"hasVideo"`
	Streams         []StreamInfo `json:"streams"`
}

// ffprobeOutput mirrors the JSON shape of
// `ffprobe -show_format -show_streams -of json`.
type ffprobeOutput struct {
	Format struct {
		Duration   string `json:"duration"`
		FormatName string `json:"format_name"`
	} `json:"format"`
	Streams []struct {
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		SampleRate string `json:"sample_rate"`
		Channels   int    `json:"channels"`
	} `json:"streams"`
}

type probeTask struct {
	params  ProbeParams
	sup     *procrun.Supervisor
	ffprobe string
}

func (t *probeTask) Execute(ctx context.Context, rc *jobs.RunContext) (json.RawMessage, error) {
	args := []string{
		"-v", "error",
		"-show_format",
		"-show_streams",
		"-of", "json",
		t.params.MediaPath,
	}
	res, err := t.sup.Run(ctx, rc.JobID, t.ffprobe, args, nil)
	if err != nil {
		return nil, err
	}

	var out ffprobeOutput
	if err := json.Unmarshal(res.Stdout, &out); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	result := ProbeResult{FormatName: out.Format.FormatName}
	if out.Format.Duration != "" {
		result.DurationSeconds, _ = strconv.ParseFloat(out.Format.Duration, 64)
	}
	for _, s := range out.Streams {
		result.Streams = append(result.Streams, StreamInfo{
			Type:       s.CodecType,
			Codec:      s.CodecName,
			Width:      s.Width,
			Height:     s.Height,
			SampleRate: s.SampleRate,
			Channels:   s.Channels,
		})
		switch s.CodecType {
		case "audio":
			result.HasAudio = true
		case "video":
			result.HasVideo = true
		}
	}
	return json.Marshal(result)
}

func (t *probeTask) CancelExec(jobID string) bool { return t.sup.Cancel(jobID) }
