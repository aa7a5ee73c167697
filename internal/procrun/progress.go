package procrun

import (
	"math"
	"regexp"
	"strconv"
)

// ffmpeg reports the media duration once near startup and the current
// position on its carriage-return status line. Neither is a structured
// protocol, so both patterns are pinned by tests against real output
// samples; the rest of the system only sees ProgressUpdate values.
var (
	durationRe = regexp.MustCompile(`Duration:\s*(\d+):(\d{2}):(\d{2})(?:\.(\d+))?`)
	timeRe     = regexp.MustCompile(`time=(\d+):(\d{2}):(\d{2})(?:\.(\d+))?`)
)

// ProgressUpdate is the clean {current, total} event extracted from
// unstructured tool output.
type ProgressUpdate struct {
	CurrentSeconds float64
	TotalSeconds   float64
	Percent        int
}

// ProgressParser scans cumulative stderr text, line by line, for the
// total-duration and current-time patterns. Percent is capped at 99
// while the process is alive; 100 is asserted only by a successful
// exit. If no duration is ever seen, no update is produced — progress
// is never guessed.
type ProgressParser struct {
	total   float64
	current float64
}

// TotalSeconds returns the detected media duration, 0 when none was
// seen yet.
func (p *ProgressParser) TotalSeconds() float64 { return p.total }

// Feed consumes one stderr line and reports whether it produced a new
// progress update.
func (p *ProgressParser) Feed(line string) (ProgressUpdate, bool) {
	if p.total == 0 {
		if m := durationRe.FindStringSubmatch(line); m != nil {
			p.total = clockToSeconds(m)
		}
	}

	m := timeRe.FindStringSubmatch(line)
	if m == nil {
		return ProgressUpdate{}, false
	}
	cur := clockToSeconds(m)
	if cur < p.current {
		return ProgressUpdate{}, false
	}
	p.current = cur

	if p.total <= 0 {
		return ProgressUpdate{}, false
	}
	pct := int(math.Round(cur / p.total * 100))
	if pct > 99 {
		pct = 99
	}
	return ProgressUpdate{CurrentSeconds: cur, TotalSeconds: p.total, Percent: pct}, true
}

// clockToSeconds converts a matched hh:mm:ss(.frac) clock to seconds.
func clockToSeconds(m []string) float64 {
	h, _ := strconv.Atoi(m[1])
	mi, _ := strconv.Atoi(m[2])
	sec, _ := strconv.Atoi(m[3])
	total := float64(h*3600 + mi*60 + sec)
	if m[4] != "" {
		if frac, err := strconv.ParseFloat("0."+m[4], 64); err == nil {
			total += frac
		}
	}
	return total
}
