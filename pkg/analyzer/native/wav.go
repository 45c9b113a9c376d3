package native

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/MrWong99/transvox/pkg/analyzer"
)

const (
	wavFormatPCM        = 1
	wavFormatFloat      = 3
	wavFormatExtensible = 0xFFFE
)

// decodeWAV parses a RIFF/WAVE buffer. Data chunks whose declared size runs
// past the end of the buffer (streamed recorders write 0 or 0xFFFFFFFF) are
// clamped to what is available.
func decodeWAV(b []byte) (*pcm, error) {
	var (
		format, channels, bits uint16
		rate                   uint32
		haveFmt                bool
		data                   []byte
	)

	off := 12
	for off+8 <= len(b) {
		id := string(b[off : off+4])
		size := int(binary.LittleEndian.Uint32(b[off+4 : off+8]))
		body := off + 8
		end := body + size
		if size < 0 || end > len(b) || end < body {
			end = len(b)
		}

		switch id {
		case "fmt ":
			if end-body < 16 {
				return nil, errors.New("wav: short fmt chunk")
			}
			format = binary.LittleEndian.Uint16(b[body:])
			channels = binary.LittleEndian.Uint16(b[body+2:])
			rate = binary.LittleEndian.Uint32(b[body+4:])
			bits = binary.LittleEndian.Uint16(b[body+14:])
			if format == wavFormatExtensible && end-body >= 26 {
				format = binary.LittleEndian.Uint16(b[body+24:])
			}
			haveFmt = true
		case "data":
			data = b[body:end]
		}

		off = end
		if size%2 == 1 {
			off++
		}
		if data != nil && haveFmt {
			break
		}
	}

	if !haveFmt {
		return nil, errors.New("wav: missing fmt chunk")
	}
	if data == nil {
		return nil, errors.New("wav: missing data chunk")
	}
	if channels == 0 || rate == 0 {
		return nil, fmt.Errorf("wav: invalid format (%d channels, %d Hz)", channels, rate)
	}

	samples, err := wavSamples(format, bits, data)
	if err != nil {
		return nil, err
	}
	// Drop a trailing partial frame.
	samples = samples[:len(samples)-len(samples)%int(channels)]
	return &pcm{sampleRate: int(rate), channels: int(channels), samples: samples}, nil
}

func wavSamples(format, bits uint16, data []byte) ([]float32, error) {
	switch {
	case format == wavFormatPCM && bits == 8:
		out := make([]float32, len(data))
		for i, v := range data {
			out[i] = (float32(v) - 128) / 128
		}
		return out, nil
	case format == wavFormatPCM && bits == 16:
		n := len(data) / 2
		out := make([]float32, n)
		for i := range n {
			out[i] = float32(int16(binary.LittleEndian.Uint16(data[i*2:]))) / 32768
		}
		return out, nil
	case format == wavFormatPCM && bits == 24:
		n := len(data) / 3
		out := make([]float32, n)
		for i := range n {
			v := int32(data[i*3]) | int32(data[i*3+1])<<8 | int32(int8(data[i*3+2]))<<16
			out[i] = float32(v) / (1 << 23)
		}
		return out, nil
	case format == wavFormatPCM && bits == 32:
		n := len(data) / 4
		out := make([]float32, n)
		for i := range n {
			out[i] = float32(int32(binary.LittleEndian.Uint32(data[i*4:]))) / (1 << 31)
		}
		return out, nil
	case format == wavFormatFloat && bits == 32:
		n := len(data) / 4
		out := make([]float32, n)
		for i := range n {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
		}
		return out, nil
	}
	return nil, fmt.Errorf("wav: format %d with %d bits: %w", format, bits, analyzer.ErrUnsupportedFormat)
}
