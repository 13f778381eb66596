package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

// MP3Decoder decodes MPEG-1/2 Layer III audio. go-mp3 always yields
// interleaved 16-bit stereo.
type MP3Decoder struct{}

const mp3BytesPerFrame = 4

func (MP3Decoder) Decode(ctx context.Context, data []byte) (*Buffer, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: mp3: %v", ErrDecode, err)
	}

	capHint := 0
	if n := decoder.Length(); n > 0 {
		capHint = int(n / mp3BytesPerFrame)
	}
	left := make([]float32, 0, capHint)
	right := make([]float32, 0, capHint)

	chunk := make([]byte, checkEvery*mp3BytesPerFrame)
	pending := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, readErr := decoder.Read(chunk[pending:])
		n += pending
		whole := n - n%mp3BytesPerFrame
		for i := 0; i < whole; i += mp3BytesPerFrame {
			l := int16(binary.LittleEndian.Uint16(chunk[i:]))
			r := int16(binary.LittleEndian.Uint16(chunk[i+2:]))
			left = append(left, float32(l)/32768)
			right = append(right, float32(r)/32768)
		}
		pending = copy(chunk, chunk[whole:n])

		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return nil, fmt.Errorf("%w: mp3: %v", ErrDecode, readErr)
		}
	}

	if len(left) == 0 {
		return nil, fmt.Errorf("%w: mp3: no audio frames", ErrDecode)
	}

	return &Buffer{
		SampleRate: decoder.SampleRate(),
		Channels:   [][]float32{left, right},
	}, nil
}
