package playback

import (
	"errors"
	"io"
	"math"
	"sync"

	"github.com/MimeLyc/caption-sync/internal/audio"
)

// BytesPerFrame is the size of one interleaved signed 16-bit stereo frame.
const BytesPerFrame = 4

// PCMSource streams a decoded buffer as interleaved signed 16-bit little
// endian stereo at a fixed output sample rate. Rate and sample rate
// conversion use nearest-neighbour resampling. Offsets used by Seek are
// measured in output bytes at rate 1.
type PCMSource struct {
	left, right []float32
	srcRate     int
	outRate     int

	mu   sync.Mutex
	pos  float64
	rate float64
}

// NewPCMSource wraps buf for playback at outRate frames per second. Mono
// buffers are duplicated onto both channels.
func NewPCMSource(buf *audio.Buffer, outRate int) *PCMSource {
	left := buf.Channel(0)
	right := buf.Channel(1)
	if right == nil {
		right = left
	}
	if outRate <= 0 {
		outRate = buf.SampleRate
	}
	return &PCMSource{
		left:    left,
		right:   right,
		srcRate: buf.SampleRate,
		outRate: outRate,
		rate:    1,
	}
}

func (s *PCMSource) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	frames := len(s.left)
	step := s.stepLocked()
	n := 0
	for n+BytesPerFrame <= len(p) {
		idx := int(s.pos)
		if idx >= frames {
			break
		}
		putSample(p[n:], s.left[idx])
		putSample(p[n+2:], s.right[idx])
		n += BytesPerFrame
		s.pos += step
	}
	if n == 0 && len(p) >= BytesPerFrame {
		return 0, io.EOF
	}
	return n, nil
}

func (s *PCMSource) Seek(offset int64, whence int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ratio := float64(s.srcRate) / float64(s.outRate)
	current := int64(s.pos/ratio) * BytesPerFrame
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = current + offset
	case io.SeekEnd:
		abs = int64(float64(len(s.left))/ratio)*BytesPerFrame + offset
	default:
		return 0, errors.New("pcm source: invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("pcm source: negative position")
	}
	abs -= abs % BytesPerFrame
	s.pos = float64(abs/BytesPerFrame) * ratio
	return abs, nil
}

// OffsetFor converts a time in seconds to a Seek offset.
func (s *PCMSource) OffsetFor(seconds float64) int64 {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	return int64(seconds*float64(s.outRate)) * BytesPerFrame
}

// SetRate changes how many source frames are consumed per output frame.
func (s *PCMSource) SetRate(r float64) {
	s.mu.Lock()
	s.rate = r
	s.mu.Unlock()
}

// Position reports the read position in seconds, minus bufferedBytes that
// were read but not played yet.
func (s *PCMSource) Position(bufferedBytes int) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srcRate <= 0 {
		return 0
	}
	buffered := float64(bufferedBytes/BytesPerFrame) * s.stepLocked()
	pos := math.Max(0, s.pos-buffered)
	pos = math.Min(pos, float64(len(s.left)))
	return pos / float64(s.srcRate)
}

// Duration returns the resource length in seconds.
func (s *PCMSource) Duration() float64 {
	if s.srcRate <= 0 {
		return 0
	}
	return float64(len(s.left)) / float64(s.srcRate)
}

func (s *PCMSource) stepLocked() float64 {
	return s.rate * float64(s.srcRate) / float64(s.outRate)
}

func putSample(b []byte, v float32) {
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	x := int16(v * math.MaxInt16)
	b[0] = byte(x)
	b[1] = byte(uint16(x) >> 8)
}
