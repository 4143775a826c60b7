package audio

import (
	"math"
	"testing"
)

func pcmFromSamples(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

func samplesFromPCM(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
	}
	return out
}

func TestResampleMono16LengthScaling(t *testing.T) {
	cases := []struct {
		name     string
		srcRate  int
		dstRate  int
		srcBytes int
	}{
		{"upsample 8k to 16k", 8000, 16000, 320},
		{"downsample 24k to 16k", 24000, 16000, 480},
		{"downsample 48k to 16k", 48000, 16000, 960},
		{"upsample 16k to 24k", 16000, 24000, 640},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := make([]byte, tc.srcBytes)
			out := ResampleMono16(in, tc.srcRate, tc.dstRate)
			want := tc.srcBytes / 2 * tc.dstRate / tc.srcRate * 2
			if got := len(out); got < want-2 || got > want+2 {
				t.Fatalf("len(out) = %d, want %d (±1 sample)", got, want)
			}
			if len(out)%2 != 0 {
				t.Fatalf("output length %d is not sample aligned", len(out))
			}
		})
	}
}

func TestResampleMono16EqualRatesReturnsInput(t *testing.T) {
	in := pcmFromSamples([]int16{1, 2, 3, 4})
	out := ResampleMono16(in, 16000, 16000)
	if &out[0] != &in[0] {
		t.Fatalf("equal rates should return the input slice")
	}
}

func TestResampleMono16PreservesConstantSignal(t *testing.T) {
	samples := make([]int16, 160)
	for i := range samples {
		samples[i] = 1000
	}
	out := samplesFromPCM(ResampleMono16(pcmFromSamples(samples), 8000, 16000))
	if len(out) == 0 {
		t.Fatalf("empty output")
	}
	for i, s := range out {
		if s != 1000 {
			t.Fatalf("sample %d = %d, want 1000", i, s)
		}
	}
}

func TestResampleMono16InterpolatesBetweenSamples(t *testing.T) {
	// Doubling the rate of [0, 100] must place the interpolated midpoint
	// between the two source samples.
	out := samplesFromPCM(ResampleMono16(pcmFromSamples([]int16{0, 100}), 8000, 16000))
	if len(out) != 4 {
		t.Fatalf("len(out) = %d, want 4", len(out))
	}
	if out[0] != 0 {
		t.Fatalf("out[0] = %d, want 0", out[0])
	}
	if out[1] != 50 {
		t.Fatalf("out[1] = %d, want 50", out[1])
	}
}

func TestResampleMono16ToleratesDegenerateInput(t *testing.T) {
	if out := ResampleMono16(nil, 8000, 16000); out != nil {
		t.Fatalf("nil input: got %d bytes, want nil", len(out))
	}
	if out := ResampleMono16([]byte{0x01}, 8000, 16000); out != nil {
		t.Fatalf("single byte input: got %d bytes, want nil", len(out))
	}
	in := []byte{0x01, 0x02}
	if out := ResampleMono16(in, 0, 16000); &out[0] != &in[0] {
		t.Fatalf("zero source rate should return the input unchanged")
	}
}

func TestResampleMono16RoundTripEnergy(t *testing.T) {
	// A sine resampled up and back down should stay close to the original.
	const n = 320
	src := make([]int16, n)
	for i := range src {
		src[i] = int16(8000 * math.Sin(2*math.Pi*float64(i)/32))
	}
	up := ResampleMono16(pcmFromSamples(src), 16000, 48000)
	down := samplesFromPCM(ResampleMono16(up, 48000, 16000))
	if len(down) < n-2 {
		t.Fatalf("round trip lost samples: %d -> %d", n, len(down))
	}
	for i := 8; i < len(down)-8 && i < n; i++ {
		diff := int(down[i]) - int(src[i])
		if diff < -1600 || diff > 1600 {
			t.Fatalf("sample %d drifted by %d", i, diff)
		}
	}
}
