package media

import (
	"encoding/binary"
	"math"
	"testing"
)

func pcm16(samples ...int16) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}

func TestDecodePCM16(t *testing.T) {
	samples := decodePCM16(pcm16(0, 100, -100, 32767, -32768))
	want := []int16{0, 100, -100, 32767, -32768}
	if len(samples) != len(want) {
		t.Fatalf("decoded %d samples, want %d", len(samples), len(want))
	}
	for i := range want {
		if samples[i] != want[i] {
			t.Fatalf("sample %d = %d, want %d", i, samples[i], want[i])
		}
	}
}

func TestDecodePCM16DropsTrailingByte(t *testing.T) {
	raw := append(pcm16(42), 0xFF)
	samples := decodePCM16(raw)
	if len(samples) != 1 || samples[0] != 42 {
		t.Fatalf("samples = %v, want [42]", samples)
	}
}

func TestBucketPeaksNormalization(t *testing.T) {
	// Two buckets: loud half then quiet half.
	samples := []int16{1000, -2000, 500, -500}
	peaks := bucketPeaks(samples, 2)
	if len(peaks) != 2 {
		t.Fatalf("got %d buckets, want 2", len(peaks))
	}
	if peaks[0] != 1.0 {
		t.Fatalf("loud bucket = %v, want 1.0", peaks[0])
	}
	if math.Abs(peaks[1]-0.25) > 1e-9 {
		t.Fatalf("quiet bucket = %v, want 0.25", peaks[1])
	}
}

func TestBucketPeaksBounds(t *testing.T) {
	samples := make([]int16, 4444)
	for i := range samples {
		samples[i] = int16(i % 1000)
	}
	peaks := bucketPeaks(samples, 1000)
	if len(peaks) != 1000 {
		t.Fatalf("got %d buckets, want 1000", len(peaks))
	}
	for i, p := range peaks {
		if p < 0 || p > 1 {
			t.Fatalf("bucket %d = %v, outside [0,1]", i, p)
		}
	}
}

func TestBucketPeaksSilence(t *testing.T) {
	peaks := bucketPeaks(make([]int16, 100), 10)
	for i, p := range peaks {
		if p != 0 {
			t.Fatalf("silent bucket %d = %v, want 0", i, p)
		}
	}
}

func TestSyntheticWaveformDeterministic(t *testing.T) {
	a := syntheticWaveform("/media/song.wav", 1000)
	b := syntheticWaveform("/media/song.wav", 1000)
	if len(a) != 1000 {
		t.Fatalf("got %d buckets, want 1000", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("bucket %d differs between identical inputs", i)
		}
		if a[i] < 0 || a[i] > 1 {
			t.Fatalf("bucket %d = %v, outside [0,1]", i, a[i])
		}
	}

	c := syntheticWaveform("/media/other.wav", 1000)
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("different media paths must yield different synthetic waveforms")
	}
}
