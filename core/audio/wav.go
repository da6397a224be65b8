package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

var ErrUnsupportedWAV = errors.New("unsupported wav data")

const (
	wavFormatPCM   = 1
	wavFormatALaw  = 6
	wavFormatMulaw = 7
)

type wavHeader struct {
	ChunkID       [4]byte
	ChunkSize     uint32
	Format        [4]byte
	Subchunk1ID   [4]byte
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte
	Subchunk2Size uint32
}

// EncodeWAV writes mono samples as a canonical 44 byte header WAV file.
func EncodeWAV(w io.Writer, info EncodingInfo, samples []byte) error {
	var audioFormat uint16
	switch info.Format {
	case EncodingLinear16:
		audioFormat = wavFormatPCM
	case EncodingALaw:
		audioFormat = wavFormatALaw
	case EncodingMulaw:
		audioFormat = wavFormatMulaw
	default:
		return fmt.Errorf("%w: format %q", ErrUnsupportedWAV, info.Format)
	}

	sampleSize := info.Format.ByteSize()
	header := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     uint32(36 + len(samples)),
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   audioFormat,
		NumChannels:   1,
		SampleRate:    uint32(info.SampleRate),
		ByteRate:      uint32(info.SampleRate * sampleSize),
		BlockAlign:    uint16(sampleSize),
		BitsPerSample: uint16(sampleSize * 8),
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: uint32(len(samples)),
	}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return fmt.Errorf("failed to write wav header: %w", err)
	}
	if _, err := w.Write(samples); err != nil {
		return fmt.Errorf("failed to write wav samples: %w", err)
	}
	return nil
}

func WriteWAV(path string, info EncodingInfo, samples []byte) error {
	var buf bytes.Buffer
	if err := EncodeWAV(&buf, info, samples); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// DecodeWAV reads a mono WAV stream. Chunks other than fmt and data are
// skipped.
func DecodeWAV(r io.Reader) (EncodingInfo, []byte, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return EncodingInfo{}, nil, fmt.Errorf("failed to read riff header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return EncodingInfo{}, nil, fmt.Errorf("%w: missing RIFF/WAVE header", ErrUnsupportedWAV)
	}

	var info EncodingInfo
	for {
		var chunk struct {
			ID   [4]byte
			Size uint32
		}
		if err := binary.Read(r, binary.LittleEndian, &chunk); err != nil {
			return EncodingInfo{}, nil, fmt.Errorf("%w: no data chunk", ErrUnsupportedWAV)
		}

		switch string(chunk.ID[:]) {
		case "fmt ":
			body := make([]byte, chunk.Size)
			if _, err := io.ReadFull(r, body); err != nil {
				return EncodingInfo{}, nil, fmt.Errorf("failed to read fmt chunk: %w", err)
			}
			if len(body) < 16 {
				return EncodingInfo{}, nil, fmt.Errorf("%w: short fmt chunk", ErrUnsupportedWAV)
			}
			channels := binary.LittleEndian.Uint16(body[2:4])
			if channels != 1 {
				return EncodingInfo{}, nil, fmt.Errorf("%w: %d channels", ErrUnsupportedWAV, channels)
			}
			info.SampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			bits := binary.LittleEndian.Uint16(body[14:16])
			switch format := binary.LittleEndian.Uint16(body[0:2]); {
			case format == wavFormatPCM && bits == 16:
				info.Format = EncodingLinear16
			case format == wavFormatALaw:
				info.Format = EncodingALaw
			case format == wavFormatMulaw:
				info.Format = EncodingMulaw
			default:
				return EncodingInfo{}, nil, fmt.Errorf("%w: format %d with %d bits", ErrUnsupportedWAV, format, bits)
			}
		case "data":
			if info.IsZero() {
				return EncodingInfo{}, nil, fmt.Errorf("%w: data before fmt chunk", ErrUnsupportedWAV)
			}
			samples, err := io.ReadAll(io.LimitReader(r, int64(chunk.Size)))
			if err != nil {
				return EncodingInfo{}, nil, fmt.Errorf("failed to read samples: %w", err)
			}
			return info, samples, nil
		default:
			if _, err := io.CopyN(io.Discard, r, int64(chunk.Size+chunk.Size%2)); err != nil {
				return EncodingInfo{}, nil, fmt.Errorf("failed to skip %q chunk: %w", chunk.ID[:], err)
			}
		}
	}
}

func ReadWAV(path string) (EncodingInfo, []byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return EncodingInfo{}, nil, err
	}
	defer f.Close()
	return DecodeWAV(f)
}

// Resample converts linear16 samples between sample rates by picking the
// nearest source sample.
func Resample(samples []byte, from, to int) []byte {
	if from == to || from <= 0 || to <= 0 || len(samples) < 2 {
		return samples
	}
	in := len(samples) / 2
	out := int(int64(in) * int64(to) / int64(from))
	resampled := make([]byte, out*2)
	for i := range out {
		src := int(int64(i) * int64(from) / int64(to))
		if src >= in {
			src = in - 1
		}
		copy(resampled[i*2:i*2+2], samples[src*2:src*2+2])
	}
	return resampled
}
