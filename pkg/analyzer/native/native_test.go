package native

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/MrWong99/transvox/pkg/analyzer"
)

// buildWAV encodes mono 16-bit PCM samples as a RIFF/WAVE buffer.
func buildWAV(rate int, samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}
	b := make([]byte, 44+len(data))
	copy(b[0:], "RIFF")
	binary.LittleEndian.PutUint32(b[4:], uint32(36+len(data)))
	copy(b[8:], "WAVE")
	copy(b[12:], "fmt ")
	binary.LittleEndian.PutUint32(b[16:], 16)
	binary.LittleEndian.PutUint16(b[20:], 1)
	binary.LittleEndian.PutUint16(b[22:], 1)
	binary.LittleEndian.PutUint32(b[24:], uint32(rate))
	binary.LittleEndian.PutUint32(b[28:], uint32(rate*2))
	binary.LittleEndian.PutUint16(b[32:], 2)
	binary.LittleEndian.PutUint16(b[34:], 16)
	copy(b[36:], "data")
	binary.LittleEndian.PutUint32(b[40:], uint32(len(data)))
	copy(b[44:], data)
	return b
}

func tone(rate int, d time.Duration, amp float64) []int16 {
	n := int(d.Seconds() * float64(rate))
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(amp * 32767 * math.Sin(2*math.Pi*440*float64(i)/float64(rate)))
	}
	return out
}

func silence(rate int, d time.Duration) []int16 {
	return make([]int16, int(d.Seconds()*float64(rate)))
}

var defaultParams = analyzer.Params{NoiseFloorDB: -30, MinSilence: 500 * time.Millisecond}

func TestDetect_PureToneIsAllSpeech(t *testing.T) {
	t.Parallel()
	const rate = 16000
	wav := buildWAV(rate, tone(rate, 3*time.Second, 0.5))

	det, err := New().Detect(context.Background(), wav, defaultParams)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if !det.DurationKnown || det.Duration != 3*time.Second {
		t.Errorf("Duration = %v, want 3s", det.Duration)
	}
	if len(det.Silences) != 0 {
		t.Errorf("Silences = %+v, want none", det.Silences)
	}
	res := analyzer.Decide(det, 15)
	if !res.HasSpeech || res.SpeechPercentage != 100 {
		t.Errorf("Decide = %+v, want 100%% speech", res)
	}
}

func TestDetect_SilenceRuns(t *testing.T) {
	t.Parallel()
	const rate = 8000
	var s []int16
	s = append(s, silence(rate, time.Second)...)
	s = append(s, tone(rate, time.Second, 0.5)...)
	s = append(s, silence(rate, 300*time.Millisecond)...) // too short to count
	s = append(s, tone(rate, time.Second, 0.5)...)
	s = append(s, silence(rate, 2*time.Second)...)

	det, err := New().Detect(context.Background(), buildWAV(rate, s), defaultParams)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(det.Silences) != 2 {
		t.Fatalf("len(Silences) = %d, want 2: %+v", len(det.Silences), det.Silences)
	}
	// Zero crossings of the sine are below the floor for a sample or two;
	// allow a few milliseconds of slack on run boundaries.
	total := det.SilenceTotal()
	if total < 2990*time.Millisecond || total > 3010*time.Millisecond {
		t.Errorf("SilenceTotal = %v, want ~3s", total)
	}
	if det.Silences[1].Open {
		t.Error("trailing silence should be closed at the known duration")
	}
}

func TestDetect_QuietNoiseCountsAsSilence(t *testing.T) {
	t.Parallel()
	const rate = 8000
	// -40 dBFS is below the -30 dB floor.
	wav := buildWAV(rate, tone(rate, 2*time.Second, 0.01))
	det, err := New().Detect(context.Background(), wav, defaultParams)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	res := analyzer.Decide(det, 15)
	if res.HasSpeech {
		t.Errorf("Decide = %+v, want no speech", res)
	}
}

func TestDetect_Unsupported(t *testing.T) {
	t.Parallel()
	_, err := New().Detect(context.Background(), []byte("\x1aE\xdf\xa3webm-ish"), defaultParams)
	if !errors.Is(err, analyzer.ErrUnsupportedFormat) {
		t.Errorf("err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestDecodeWAV_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   []byte
	}{
		{name: "no chunks", in: []byte("RIFF\x04\x00\x00\x00WAVE")},
		{name: "fmt only", in: buildWAV(8000, nil)[:36]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := decodeWAV(tt.in); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestDecodeWAV_StreamedDataSize(t *testing.T) {
	t.Parallel()
	wav := buildWAV(8000, tone(8000, time.Second, 0.5))
	binary.LittleEndian.PutUint32(wav[40:], 0xFFFFFFFF)
	p, err := decodeWAV(wav)
	if err != nil {
		t.Fatalf("decodeWAV: %v", err)
	}
	if p.length() != time.Second {
		t.Errorf("length = %v, want 1s", p.length())
	}
}

// oggPageBytes builds a single Ogg page holding one packet.
func oggPageBytes(granule int64, packet []byte) []byte {
	var lacing []byte
	n := len(packet)
	for n >= 255 {
		lacing = append(lacing, 255)
		n -= 255
	}
	lacing = append(lacing, byte(n))
	b := make([]byte, oggHeaderLen, oggHeaderLen+len(lacing)+len(packet))
	copy(b, "OggS")
	binary.LittleEndian.PutUint64(b[6:], uint64(granule))
	b[26] = byte(len(lacing))
	b = append(b, lacing...)
	return append(b, packet...)
}

func TestOggPackets_Lacing(t *testing.T) {
	t.Parallel()
	big := make([]byte, 300)
	for i := range big {
		big[i] = byte(i)
	}
	buf := append(oggPageBytes(0, []byte("first")), oggPageBytes(10, big)...)
	pages, err := readOggPages(buf)
	if err != nil {
		t.Fatalf("readOggPages: %v", err)
	}
	if len(pages) != 2 || pages[1].granule != 10 {
		t.Fatalf("pages = %d (granule %d), want 2 (10)", len(pages), pages[1].granule)
	}
	pkts := oggPackets(pages)
	if len(pkts) != 2 {
		t.Fatalf("packets = %d, want 2", len(pkts))
	}
	if string(pkts[0]) != "first" || len(pkts[1]) != 300 {
		t.Errorf("packets = %q / %d bytes, want first / 300", pkts[0], len(pkts[1]))
	}
}

func TestDecodeOggOpus_NotOpus(t *testing.T) {
	t.Parallel()
	buf := append(oggPageBytes(0, []byte("\x01vorbis....")), oggPageBytes(0, []byte("\x03vorbis"))...)
	_, err := decodeOggOpus(context.Background(), buf)
	if !errors.Is(err, analyzer.ErrUnsupportedFormat) {
		t.Errorf("err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestDetectSilence_EmptyPCM(t *testing.T) {
	t.Parallel()
	events := detectSilence(&pcm{}, defaultParams)
	if len(events) != 1 || events[0].Kind != analyzer.EventDuration {
		t.Errorf("events = %+v, want only a duration event", events)
	}
}
