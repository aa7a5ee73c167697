package media

import (
	"encoding/json"
	"io"
	"log/slog"

	"mixdown/internal/config"
	"mixdown/internal/jobs"
	"mixdown/internal/procrun"
)

// RegisterAll wires every media job kind into the registry. All kinds
// are process-backed and cancellable after start.
func RegisterAll(reg *jobs.Registry, sup *procrun.Supervisor, cfg *config.Config, logger *slog.Logger) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	ffmpeg := cfg.Tools.FFmpegPath
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	ffprobe := cfg.Tools.FFprobePath
	if ffprobe == "" {
		ffprobe = "ffprobe"
	}

	reg.Register(jobs.Definition{
		Kind:   jobs.KindWaveform,
		Config: jobs.KindConfig{Cancellable: true},
		New: func(params json.RawMessage) (jobs.Task, jobs.TaskInfo, error) {
			var p WaveformParams
			if err := unmarshalParams(params, &p); err != nil {
				return nil, jobs.TaskInfo{}, err
			}
			if p.MediaPath == "" {
				return nil, jobs.TaskInfo{}, jobs.Validationf("waveform: mediaPath is required")
			}
			if p.Buckets == 0 {
				p.Buckets = cfg.Waveform.Buckets
			}
			if p.SampleRate == 0 {
				p.SampleRate = cfg.Waveform.SampleRate
			}
			task := &waveformTask{params: p, sup: sup, ffmpeg: ffmpeg, log: logger}
			return task, jobs.TaskInfo{MediaPath: p.MediaPath}, nil
		},
	})

	reg.Register(jobs.Definition{
		Kind:   jobs.KindThumbnail,
		Config: jobs.KindConfig{Cancellable: true},
		New: func(params json.RawMessage) (jobs.Task, jobs.TaskInfo, error) {
			var p ThumbnailParams
			if err := unmarshalParams(params, &p); err != nil {
				return nil, jobs.TaskInfo{}, err
			}
			if p.MediaPath == "" {
				return nil, jobs.TaskInfo{}, jobs.Validationf("thumbnail: mediaPath is required")
			}
			if p.TimeSec < 0 {
				return nil, jobs.TaskInfo{}, jobs.Validationf("thumbnail: timeSec must be >= 0")
			}
			if p.Width == 0 {
				p.Width = cfg.Thumbnail.Width
			}
			task := &thumbnailTask{params: p, sup: sup, ffmpeg: ffmpeg, outputDir: cfg.Thumbnail.OutputDir}
			return task, jobs.TaskInfo{MediaPath: p.MediaPath}, nil
		},
	})

	reg.Register(jobs.Definition{
		Kind:         jobs.KindLoudness,
		Config:       jobs.KindConfig{Cancellable: true},
		HandleResult: classifyLoudness,
		New: func(params json.RawMessage) (jobs.Task, jobs.TaskInfo, error) {
			var p LoudnessParams
			if err := unmarshalParams(params, &p); err != nil {
				return nil, jobs.TaskInfo{}, err
			}
			if p.MediaPath == "" {
				return nil, jobs.TaskInfo{}, jobs.Validationf("loudness: mediaPath is required")
			}
			task := &loudnessTask{params: p, sup: sup, ffmpeg: ffmpeg}
			return task, jobs.TaskInfo{MediaPath: p.MediaPath}, nil
		},
	})

	reg.Register(jobs.Definition{
		Kind:   jobs.KindProbe,
		Config: jobs.KindConfig{Cancellable: true, MaxRetries: 2},
		New: func(params json.RawMessage) (jobs.Task, jobs.TaskInfo, error) {
			var p ProbeParams
			if err := unmarshalParams(params, &p); err != nil {
				return nil, jobs.TaskInfo{}, err
			}
			if p.MediaPath == "" {
				return nil, jobs.TaskInfo{}, jobs.Validationf("probe: mediaPath is required")
			}
			task := &probeTask{params: p, sup: sup, ffprobe: ffprobe}
			return task, jobs.TaskInfo{MediaPath: p.MediaPath}, nil
		},
	})

	reg.Register(jobs.Definition{
		Kind:   jobs.KindProcess,
		Config: jobs.KindConfig{Cancellable: true},
		New: func(params json.RawMessage) (jobs.Task, jobs.TaskInfo, error) {
			var p ProcessParams
			if err := unmarshalParams(params, &p); err != nil {
				return nil, jobs.TaskInfo{}, err
			}
			if len(p.Args) == 0 {
				return nil, jobs.TaskInfo{}, jobs.Validationf("process: args are required")
			}
			task := &processTask{params: p, sup: sup, ffmpeg: ffmpeg}
			return task, jobs.TaskInfo{MediaPath: p.MediaPath}, nil
		},
	})
}

func unmarshalParams(params json.RawMessage, v any) error {
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}
	if err := json.Unmarshal(params, v); err != nil {
		return jobs.Validationf("invalid parameters: %v", err)
	}
	return nil
}
