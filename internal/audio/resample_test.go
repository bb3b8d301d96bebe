package audio

import (
	"math"
	"testing"
)

func TestResampleSameRate(t *testing.T) {
	input := []float32{0.1, -0.2, 0.3, -0.4}

	output := Resample(input, 48000, 48000, 1)

	// Equal rates bypass conversion entirely: the very same slice comes back.
	if len(output) != len(input) {
		t.Fatalf("Expected %d samples, got %d", len(input), len(output))
	}

	if &output[0] != &input[0] {
		t.Error("Expected same-rate conversion to return the input slice unchanged")
	}
}

func TestResampleOutputLength(t *testing.T) {
	tests := []struct {
		name       string
		inputLen   int
		inputRate  int
		outputRate int
		channels   int
		expected   int
	}{
		{"48k to 16k window", 4096, 48000, 16000, 1, 1366},
		{"16k to 48k", 1000, 16000, 48000, 1, 3000},
		{"44.1k to 16k", 4096, 44100, 16000, 1, 1487},
		{"8k to 16k", 512, 8000, 16000, 1, 1024},
		{"stereo 48k to 16k", 8192, 48000, 16000, 2, 2732},
		{"single frame", 1, 48000, 16000, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output := Resample(make([]float32, tt.inputLen), tt.inputRate, tt.outputRate, tt.channels)
			if len(output) != tt.expected {
				t.Errorf("Expected %d output samples, got %d", tt.expected, len(output))
			}

			if got := OutputLength(tt.inputLen, tt.inputRate, tt.outputRate, tt.channels); got != len(output) {
				t.Errorf("OutputLength predicted %d, conversion produced %d", got, len(output))
			}
		})
	}
}

func TestResampleUpsampleValues(t *testing.T) {
	// A linear ramp doubled in rate interpolates exactly halfway between
	// neighbours, holding the final frame at the end.
	input := []float32{0, 1, 2, 3}

	output := Resample(input, 16000, 32000, 1)

	expected := []float32{0, 0.5, 1, 1.5, 2, 2.5, 3, 3}
	if len(output) != len(expected) {
		t.Fatalf("Expected %d samples, got %d", len(expected), len(output))
	}

	for i, want := range expected {
		if output[i] != want {
			t.Errorf("Sample %d: expected %v, got %v", i, want, output[i])
		}
	}
}

func TestResampleDownsampleValues(t *testing.T) {
	// 3:1 decimation of a ramp lands exactly on every third source frame.
	input := []float32{0, 1, 2, 3, 4, 5, 6, 7, 8}

	output := Resample(input, 48000, 16000, 1)

	expected := []float32{0, 3, 6}
	if len(output) != len(expected) {
		t.Fatalf("Expected %d samples, got %d", len(expected), len(output))
	}

	for i, want := range expected {
		if output[i] != want {
			t.Errorf("Sample %d: expected %v, got %v", i, want, output[i])
		}
	}
}

func TestResampleStereo(t *testing.T) {
	// Interleaved stereo frames: left channel ramps 0,2,4,6 and right
	// 1,3,5,7. Channels must interpolate independently.
	input := []float32{0, 1, 2, 3, 4, 5, 6, 7}

	output := Resample(input, 16000, 32000, 2)

	expected := []float32{0, 1, 1, 2, 2, 3, 3, 4, 4, 5, 5, 6, 6, 7, 6, 7}
	if len(output) != len(expected) {
		t.Fatalf("Expected %d samples, got %d", len(expected), len(output))
	}

	for i, want := range expected {
		if output[i] != want {
			t.Errorf("Sample %d: expected %v, got %v", i, want, output[i])
		}
	}
}

func TestResampleBoundaryHold(t *testing.T) {
	input := []float32{0.25, 0.5, 0.75}

	// Upsampling pushes the last output positions past the final source
	// frame, which must be held rather than extrapolated.
	output := Resample(input, 16000, 48000, 1)

	if len(output) != 9 {
		t.Fatalf("Expected 9 samples, got %d", len(output))
	}

	for i := 6; i < 9; i++ {
		if output[i] != 0.75 {
			t.Errorf("Sample %d: expected held value 0.75, got %v", i, output[i])
		}
	}
}

func TestResampleEmptyInput(t *testing.T) {
	output := Resample([]float32{}, 48000, 16000, 1)
	if len(output) != 0 {
		t.Errorf("Expected empty output for empty input, got %d samples", len(output))
	}
}

func TestResamplePreservesInput(t *testing.T) {
	input := make([]float32, 1024)
	for i := range input {
		input[i] = float32(math.Sin(2 * math.Pi * 440 * float64(i) / 48000))
	}

	original := make([]float32, len(input))
	copy(original, input)

	Resample(input, 48000, 16000, 1)

	for i := range input {
		if input[i] != original[i] {
			t.Fatalf("Input sample %d modified: expected %v, got %v", i, original[i], input[i])
		}
	}
}
