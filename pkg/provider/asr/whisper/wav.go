package whisper

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
)

// readWAVFile loads a RIFF/WAV file containing 16-bit signed little-endian
// PCM and returns the samples as float32 mono in [-1, 1] plus the sample
// rate. Stereo data is downmixed by averaging channels. Only uncompressed
// PCM (format tag 1) is accepted — that is what the media downloader's
// ffmpeg invocation produces.
func readWAVFile(path string) ([]float32, int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}
	return decodeWAV(raw)
}

// decodeWAV parses a RIFF/WAV byte buffer. Split from readWAVFile for tests.
func decodeWAV(raw []byte) ([]float32, int, error) {
	if len(raw) < 44 || string(raw[0:4]) != "RIFF" || string(raw[8:12]) != "WAVE" {
		return nil, 0, errors.New("not a RIFF/WAVE file")
	}

	var (
		sampleRate int
		channels   int
		bits       int
		data       []byte
	)

	// Walk the chunk list; fmt and data can appear in any order and other
	// chunks (LIST, fact) may be interleaved.
	off := 12
	for off+8 <= len(raw) {
		id := string(raw[off : off+4])
		size := int(binary.LittleEndian.Uint32(raw[off+4 : off+8]))
		body := off + 8
		if body+size > len(raw) {
			size = len(raw) - body
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, 0, errors.New("fmt chunk too short")
			}
			format := int(binary.LittleEndian.Uint16(raw[body : body+2]))
			if format != 1 {
				return nil, 0, fmt.Errorf("unsupported WAV format tag %d (want PCM)", format)
			}
			channels = int(binary.LittleEndian.Uint16(raw[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(raw[body+4 : body+8]))
			bits = int(binary.LittleEndian.Uint16(raw[body+14 : body+16]))
		case "data":
			data = raw[body : body+size]
		}

		// Chunks are word-aligned.
		off = body + size
		if size%2 == 1 {
			off++
		}
	}

	if sampleRate == 0 || channels == 0 {
		return nil, 0, errors.New("missing fmt chunk")
	}
	if bits != 16 {
		return nil, 0, fmt.Errorf("unsupported bit depth %d (want 16)", bits)
	}
	if len(data) == 0 {
		return nil, 0, errors.New("missing data chunk")
	}

	return pcmToFloat32Mono(data, channels), sampleRate, nil
}

// pcmToFloat32Mono converts 16-bit signed little-endian PCM to float32 mono
// samples in [-1, 1], averaging across channels.
func pcmToFloat32Mono(pcm []byte, channels int) []float32 {
	if channels <= 1 {
		channels = 1
	}
	frames := len(pcm) / 2 / channels
	out := make([]float32, 0, frames)
	for f := 0; f < frames; f++ {
		var sum float32
		for c := 0; c < channels; c++ {
			i := (f*channels + c) * 2
			sample := int16(binary.LittleEndian.Uint16(pcm[i : i+2]))
			sum += float32(sample) / 32768.0
		}
		out = append(out, sum/float32(channels))
	}
	return out
}

// round2 rounds to 2 decimal places, matching the stored segment precision.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// round4 rounds to 4 decimal places, used for probabilities.
func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
