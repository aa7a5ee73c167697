package procrun

import (
	"math"
	"testing"
)

// Samples taken from real ffmpeg 6.x stderr output.
const (
	sampleDurationLine = "  Duration: 00:03:20.50, start: 0.000000, bitrate: 1411 kb/s"
	sampleStatusLine   = "size=    1024kB time=00:01:40.25 bitrate= 128.0kbits/s speed=25.4x"
)

func TestProgressParserDurationThenTime(t *testing.T) {
	p := &ProgressParser{}

	if _, ok := p.Feed(sampleDurationLine); ok {
		t.Fatal("duration line alone must not produce an update")
	}
	if got := p.TotalSeconds(); math.Abs(got-200.5) > 0.001 {
		t.Fatalf("total = %v, want 200.5", got)
	}

	u, ok := p.Feed(sampleStatusLine)
	if !ok {
		t.Fatal("status line with known duration must produce an update")
	}
	if math.Abs(u.CurrentSeconds-100.25) > 0.001 {
		t.Fatalf("current = %v, want 100.25", u.CurrentSeconds)
	}
	if u.Percent != 50 {
		t.Fatalf("percent = %d, want 50", u.Percent)
	}
}

func TestProgressParserNeverGuessesWithoutDuration(t *testing.T) {
	p := &ProgressParser{}
	if _, ok := p.Feed(sampleStatusLine); ok {
		t.Fatal("progress must not be produced before the duration is known")
	}
}

func TestProgressParserMonotone(t *testing.T) {
	p := &ProgressParser{}
	p.Feed("  Duration: 00:00:10.00, start: 0.000000")

	if u, ok := p.Feed("frame=1 time=00:00:08.00 speed=1x"); !ok || u.Percent != 80 {
		t.Fatalf("first update = %+v ok=%v, want 80%%", u, ok)
	}
	// A rewound position (stream reset) must be dropped.
	if _, ok := p.Feed("frame=2 time=00:00:03.00 speed=1x"); ok {
		t.Fatal("regressed time must not produce an update")
	}
	if u, ok := p.Feed("frame=3 time=00:00:09.00 speed=1x"); !ok || u.Percent != 90 {
		t.Fatalf("later update = %+v ok=%v, want 90%%", u, ok)
	}
}

func TestProgressParserCapsAt99(t *testing.T) {
	p := &ProgressParser{}
	p.Feed("  Duration: 00:00:10.00, start: 0.000000")

	u, ok := p.Feed("frame=9 time=00:00:10.00 speed=1x")
	if !ok {
		t.Fatal("expected an update")
	}
	if u.Percent != 99 {
		t.Fatalf("percent = %d, want 99 (100 is asserted only by exit)", u.Percent)
	}
}

func TestProgressParserFractionalClock(t *testing.T) {
	p := &ProgressParser{}
	p.Feed("  Duration: 01:02:03.75, start: 0.000000")
	want := 1*3600 + 2*60 + 3 + 0.75
	if got := p.TotalSeconds(); math.Abs(got-want) > 0.001 {
		t.Fatalf("total = %v, want %v", got, want)
	}
}

func TestProgressParserIgnoresNoise(t *testing.T) {
	p := &ProgressParser{}
	noise := []string{
		"ffmpeg version 6.1.1 Copyright (c) 2000-2023 the FFmpeg developers",
		"  built with gcc 13.2.0",
		"Input #0, wav, from '/media/a.wav':",
		"  Stream #0:0: Audio: pcm_s16le ([1][0][0][0] / 0x0001), 44100 Hz, stereo, s16, 1411 kb/s",
	}
	for _, line := range noise {
		if _, ok := p.Feed(line); ok {
			t.Fatalf("noise line produced an update: %q", line)
		}
	}
}
