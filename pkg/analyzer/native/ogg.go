package native

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"layeh.com/gopus"

	"github.com/MrWong99/transvox/pkg/analyzer"
)

const (
	// Opus always decodes at 48 kHz regardless of the input sample rate
	// recorded in the header.
	opusSampleRate = 48000

	// opusMaxFrameSize is the largest Opus frame (120 ms) in samples per
	// channel at 48 kHz.
	opusMaxFrameSize = 5760

	oggHeaderLen = 27
)

// oggPage is the subset of an Ogg page header the demuxer needs.
type oggPage struct {
	granule  int64
	segments []byte
	payload  []byte
}

// readOggPages splits b into pages. It stops at the first malformed page.
func readOggPages(b []byte) ([]oggPage, error) {
	var pages []oggPage
	off := 0
	for off+oggHeaderLen <= len(b) {
		if !bytes.Equal(b[off:off+4], []byte("OggS")) {
			return pages, fmt.Errorf("ogg: bad capture pattern at offset %d", off)
		}
		granule := int64(binary.LittleEndian.Uint64(b[off+6:]))
		nseg := int(b[off+26])
		segStart := off + oggHeaderLen
		if segStart+nseg > len(b) {
			return pages, errors.New("ogg: truncated segment table")
		}
		segs := b[segStart : segStart+nseg]
		size := 0
		for _, s := range segs {
			size += int(s)
		}
		dataStart := segStart + nseg
		if dataStart+size > len(b) {
			return pages, errors.New("ogg: truncated page payload")
		}
		pages = append(pages, oggPage{granule: granule, segments: segs, payload: b[dataStart : dataStart+size]})
		off = dataStart + size
	}
	return pages, nil
}

// oggPackets reassembles packets from the lacing values of each page. A
// packet ends at the first segment shorter than 255 bytes.
func oggPackets(pages []oggPage) [][]byte {
	var (
		packets [][]byte
		cur     []byte
	)
	for _, pg := range pages {
		pos := 0
		for _, l := range pg.segments {
			cur = append(cur, pg.payload[pos:pos+int(l)]...)
			pos += int(l)
			if l < 255 {
				packets = append(packets, cur)
				cur = nil
			}
		}
	}
	return packets
}

// decodeOggOpus demuxes an Ogg Opus stream and decodes it with gopus.
func decodeOggOpus(ctx context.Context, b []byte) (*pcm, error) {
	pages, err := readOggPages(b)
	if len(pages) == 0 {
		if err == nil {
			err = errors.New("ogg: no pages")
		}
		return nil, err
	}
	packets := oggPackets(pages)
	if len(packets) < 2 || !bytes.HasPrefix(packets[0], []byte("OpusHead")) {
		return nil, fmt.Errorf("ogg: not an opus stream: %w", analyzer.ErrUnsupportedFormat)
	}
	head := packets[0]
	if len(head) < 19 {
		return nil, errors.New("ogg: short OpusHead")
	}
	channels := int(head[9])
	preSkip := int(binary.LittleEndian.Uint16(head[10:12]))
	if channels < 1 || channels > 2 {
		return nil, fmt.Errorf("ogg: %d channel opus: %w", channels, analyzer.ErrUnsupportedFormat)
	}

	dec, err := gopus.NewDecoder(opusSampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("ogg: create opus decoder: %w", err)
	}

	out := &pcm{sampleRate: opusSampleRate, channels: channels}
	// packets[1] is OpusTags.
	for i, pkt := range packets[2:] {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if len(pkt) == 0 {
			continue
		}
		frame, err := dec.Decode(pkt, opusMaxFrameSize, false)
		if err != nil {
			return nil, fmt.Errorf("ogg: opus decode packet %d: %w", i, err)
		}
		for _, s := range frame {
			out.samples = append(out.samples, float32(s)/32768)
		}
	}

	skip := min(preSkip*channels, len(out.samples))
	out.samples = out.samples[skip:]

	if last := pages[len(pages)-1].granule; last > int64(preSkip) {
		out.duration = time.Duration((last - int64(preSkip)) * int64(time.Second) / opusSampleRate)
	}
	return out, nil
}
