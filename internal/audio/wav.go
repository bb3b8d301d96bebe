package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// MIMETypeWAV is the media type of encoded recording artifacts.
const MIMETypeWAV = "audio/wav"

// WAVHeader represents the header structure of a WAV file
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16  // Number of channels
	SampleRate    uint32  // Sample rate
	ByteRate      uint32  // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16  // NumChannels * BitsPerSample / 8
	BitsPerSample uint16  // Bits per sample
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Number of bytes in the data
}

// EncodeWAV encodes float PCM samples into a 16-bit WAV container. Samples
// are interleaved for multi-channel audio and clamped to [-1, 1] before
// conversion. An empty sample slice is valid and yields a 44-byte
// header-only container.
func EncodeWAV(samples []float32, sampleRate, channels int) ([]byte, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	if channels <= 0 {
		return nil, fmt.Errorf("channel count must be positive, got %d", channels)
	}

	// Calculate sizes
	numChannels := uint16(channels)
	bitsPerSample := uint16(16) // 16-bit PCM
	dataSize := uint32(len(samples) * 2)
	fileSize := 36 + dataSize // WAV header is 44 bytes, data starts at offset 44

	// Create WAV header
	header := WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     fileSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1, // PCM
		NumChannels:   numChannels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * uint32(numChannels) * uint32(bitsPerSample) / 8,
		BlockAlign:    numChannels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	// Create buffer for the entire WAV file
	buf := bytes.NewBuffer(make([]byte, 0, 44+len(samples)*2))

	// Write WAV header
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}

	// Convert and write audio data
	if len(samples) > 0 {
		pcm := make([]int16, len(samples))
		for i, s := range samples {
			pcm[i] = floatToPCM16(s)
		}

		if err := binary.Write(buf, binary.LittleEndian, pcm); err != nil {
			return nil, fmt.Errorf("failed to write audio data: %w", err)
		}
	}

	return buf.Bytes(), nil
}

// floatToPCM16 clamps a sample to [-1, 1] and scales it to 16-bit PCM.
// Negative and positive halves scale independently so both endpoints map
// onto the full int16 range.
func floatToPCM16(s float32) int16 {
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}

	if s < 0 {
		return int16(s * 0x8000)
	}
	return int16(s * 0x7FFF)
}

// DecodeWAV decodes 16-bit PCM WAV data back to float samples. A
// header-only container decodes to an empty sample slice.
func DecodeWAV(data []byte) ([]float32, int, int, error) {
	if len(data) < 44 {
		return nil, 0, 0, fmt.Errorf("WAV data too short: need at least 44 bytes, got %d", len(data))
	}

	// Read and validate WAV header
	buf := bytes.NewReader(data)
	var header WAVHeader

	if err := binary.Read(buf, binary.LittleEndian, &header); err != nil {
		return nil, 0, 0, fmt.Errorf("failed to read WAV header: %w", err)
	}

	// Validate WAV format
	if string(header.ChunkID[:]) != "RIFF" {
		return nil, 0, 0, fmt.Errorf("invalid WAV file: missing RIFF header")
	}

	if string(header.Format[:]) != "WAVE" {
		return nil, 0, 0, fmt.Errorf("invalid WAV file: missing WAVE format")
	}

	if string(header.Subchunk1ID[:]) != "fmt " {
		return nil, 0, 0, fmt.Errorf("invalid WAV file: missing fmt chunk")
	}

	if string(header.Subchunk2ID[:]) != "data" {
		return nil, 0, 0, fmt.Errorf("invalid WAV file: missing data chunk")
	}

	if header.AudioFormat != 1 {
		return nil, 0, 0, fmt.Errorf("unsupported audio format: %d (only PCM is supported)", header.AudioFormat)
	}

	if header.BitsPerSample != 16 {
		return nil, 0, 0, fmt.Errorf("unsupported bit depth: %d (only 16-bit is supported)", header.BitsPerSample)
	}

	if header.NumChannels == 0 {
		return nil, 0, 0, fmt.Errorf("invalid channel count: 0")
	}

	// Read audio samples
	numSamples := int(header.Subchunk2Size) / 2 // 2 bytes per sample
	samples := make([]float32, numSamples)

	if numSamples > 0 {
		pcm := make([]int16, numSamples)
		if err := binary.Read(buf, binary.LittleEndian, pcm); err != nil {
			return nil, 0, 0, fmt.Errorf("failed to read audio samples: %w", err)
		}

		for i, v := range pcm {
			samples[i] = float32(v) / 32768
		}
	}

	return samples, int(header.SampleRate), int(header.NumChannels), nil
}

// ValidateWAV validates a WAV file format without decoding the entire audio data
func ValidateWAV(data []byte) error {
	if len(data) < 44 {
		return fmt.Errorf("WAV data too short: need at least 44 bytes, got %d", len(data))
	}

	// Check RIFF header
	if string(data[0:4]) != "RIFF" {
		return fmt.Errorf("invalid WAV file: missing RIFF header")
	}

	// Check WAVE format
	if string(data[8:12]) != "WAVE" {
		return fmt.Errorf("invalid WAV file: missing WAVE format")
	}

	// Check fmt chunk
	if string(data[12:16]) != "fmt " {
		return fmt.Errorf("invalid WAV file: missing fmt chunk")
	}

	// Check data chunk
	if string(data[36:40]) != "data" {
		return fmt.Errorf("invalid WAV file: missing data chunk")
	}

	return nil
}

// GetWAVDuration calculates the duration of a WAV file in seconds
func GetWAVDuration(data []byte) (float64, error) {
	if err := ValidateWAV(data); err != nil {
		return 0, err
	}

	// Read sample rate and frame size from header
	sampleRate := binary.LittleEndian.Uint32(data[24:28])
	if sampleRate == 0 {
		return 0, fmt.Errorf("invalid sample rate: 0")
	}

	blockAlign := binary.LittleEndian.Uint16(data[32:34])
	if blockAlign == 0 {
		return 0, fmt.Errorf("invalid block align: 0")
	}

	// Read data chunk size
	dataSize := binary.LittleEndian.Uint32(data[40:44])

	// Calculate duration from the frame count
	numFrames := dataSize / uint32(blockAlign)
	duration := float64(numFrames) / float64(sampleRate)

	return duration, nil
}

// WAVInfo holds basic information about a WAV file
type WAVInfo struct {
	SampleRate    uint32  `json:"sample_rate"`
	Channels      uint16  `json:"channels"`
	BitsPerSample uint16  `json:"bits_per_sample"`
	Duration      float64 `json:"duration_seconds"`
	DataSize      uint32  `json:"data_size_bytes"`
	NumSamples    uint32  `json:"num_samples"`
}

// GetWAVInfo extracts metadata from a WAV file
func GetWAVInfo(data []byte) (*WAVInfo, error) {
	if len(data) < 44 {
		return nil, fmt.Errorf("WAV data too short: need at least 44 bytes, got %d", len(data))
	}

	// Read header fields
	buf := bytes.NewReader(data)
	var header WAVHeader

	if err := binary.Read(buf, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read WAV header: %w", err)
	}

	// Validate basic format
	if err := ValidateWAV(data); err != nil {
		return nil, err
	}

	if header.NumChannels == 0 || header.BitsPerSample == 0 {
		return nil, fmt.Errorf("invalid WAV header: channels=%d, bits=%d", header.NumChannels, header.BitsPerSample)
	}

	// Calculate derived values
	numSamples := header.Subchunk2Size / (uint32(header.BitsPerSample) / 8)
	numFrames := numSamples / uint32(header.NumChannels)
	duration := float64(numFrames) / float64(header.SampleRate)

	return &WAVInfo{
		SampleRate:    header.SampleRate,
		Channels:      header.NumChannels,
		BitsPerSample: header.BitsPerSample,
		Duration:      duration,
		DataSize:      header.Subchunk2Size,
		NumSamples:    numSamples,
	}, nil
}
