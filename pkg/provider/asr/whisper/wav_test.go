package whisper

import (
	"encoding/binary"
	"math"
	"testing"
)

// buildWAV assembles a minimal RIFF/WAV buffer around the given 16-bit PCM
// payload.
func buildWAV(t *testing.T, pcm []byte, sampleRate, channels, bits int) []byte {
	t.Helper()
	byteRate := sampleRate * channels * bits / 8
	buf := make([]byte, 44+len(pcm))
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+len(pcm)))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1)
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(channels*bits/8))
	binary.LittleEndian.PutUint16(buf[34:36], uint16(bits))
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(len(pcm)))
	copy(buf[44:], pcm)
	return buf
}

func pcmFromInt16(values []int16) []byte {
	pcm := make([]byte, len(values)*2)
	for i, v := range values {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}
	return pcm
}

func TestDecodeWAV_Mono(t *testing.T) {
	pcm := pcmFromInt16([]int16{1000, -1000, 32767, -32768})
	wav := buildWAV(t, pcm, 16000, 1, 16)

	samples, rate, err := decodeWAV(wav)
	if err != nil {
		t.Fatalf("decodeWAV: %v", err)
	}
	if rate != 16000 {
		t.Errorf("sample rate = %d; want 16000", rate)
	}
	if len(samples) != 4 {
		t.Fatalf("got %d samples; want 4", len(samples))
	}
	want0 := float32(1000) / 32768.0
	if math.Abs(float64(samples[0]-want0)) > 1e-6 {
		t.Errorf("samples[0] = %f; want %f", samples[0], want0)
	}
}

func TestDecodeWAV_StereoDownmix(t *testing.T) {
	// Two stereo frames: (1000, 3000) and (-2000, -4000).
	pcm := pcmFromInt16([]int16{1000, 3000, -2000, -4000})
	wav := buildWAV(t, pcm, 16000, 2, 16)

	samples, _, err := decodeWAV(wav)
	if err != nil {
		t.Fatalf("decodeWAV: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("got %d mono samples from 4-sample stereo; want 2", len(samples))
	}
	want0 := (float32(1000)/32768.0 + float32(3000)/32768.0) / 2.0
	if math.Abs(float64(samples[0]-want0)) > 1e-6 {
		t.Errorf("samples[0] = %f; want %f", samples[0], want0)
	}
}

func TestDecodeWAV_Rejects(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{"too short", []byte("RIFF")},
		{"not riff", make([]byte, 64)},
		{"wrong bit depth", buildWAV(t, make([]byte, 8), 16000, 1, 8)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := decodeWAV(tt.raw); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestRoundHelpers(t *testing.T) {
	if got := round2(1.23456); got != 1.23 {
		t.Errorf("round2 = %v; want 1.23", got)
	}
	if got := round4(0.123456); got != 0.1235 {
		t.Errorf("round4 = %v; want 0.1235", got)
	}
}
