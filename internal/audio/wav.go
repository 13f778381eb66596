package audio

import (
	"bytes"
	"context"
	"fmt"
	"math"

	"github.com/gopxl/beep/wav"
)

// WAVDecoder decodes RIFF/WAVE PCM files through beep.
type WAVDecoder struct{}

func (WAVDecoder) Decode(ctx context.Context, data []byte) (*Buffer, error) {
	streamer, format, err := wav.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: wav: %v", ErrDecode, err)
	}
	defer streamer.Close()

	channels := format.NumChannels
	if channels < 1 {
		channels = 1
	}
	if channels > 2 {
		// beep folds everything into a stereo frame
		channels = 2
	}

	total := streamer.Len()
	out := make([][]float32, channels)
	for c := range out {
		out[c] = make([]float32, 0, total)
	}

	gain := pcmGain(format.Precision)
	samples := make([][2]float64, checkEvery)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, ok := streamer.Stream(samples)
		for _, s := range samples[:n] {
			for c := range out {
				out[c] = append(out[c], float32(clamp(s[c]*gain)))
			}
		}
		if !ok {
			break
		}
	}
	if err := streamer.Err(); err != nil {
		return nil, fmt.Errorf("%w: wav: %v", ErrDecode, err)
	}

	return &Buffer{
		SampleRate: int(format.SampleRate),
		Channels:   out,
	}, nil
}

// pcmGain undoes beep's scaling of signed PCM, which divides by the full
// unsigned range and so yields [-0.5, 0.5]. 8-bit WAV is unsigned and
// already spans [-1, 1].
func pcmGain(precision int) float64 {
	switch precision {
	case 2:
		return float64(1<<16-1) / float64(1<<15-1)
	case 3:
		return float64(1<<24-1) / float64(1<<23-1)
	default:
		return 1
	}
}

func clamp(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}
