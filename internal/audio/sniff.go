package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
)

// Format identifies a container recognised by its leading bytes.
type Format string

const (
	FormatUnknown Format = ""
	FormatWAV     Format = "wav"
	FormatMP3     Format = "mp3"
)

// Sniff inspects the leading bytes of data.
func Sniff(data []byte) Format {
	switch {
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return FormatWAV
	case len(data) >= 3 && bytes.Equal(data[0:3], []byte("ID3")):
		return FormatMP3
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0 && data[1]&0x06 != 0:
		// layer bits 00 mark AAC ADTS, not MPEG audio
		return FormatMP3
	default:
		return FormatUnknown
	}
}

// AutoDecoder picks a decoder by sniffing the resource. Unknown formats go
// to Fallback when set, as do resources the sniffed decoder rejects.
type AutoDecoder struct {
	WAV      Decoder
	MP3      Decoder
	Fallback Decoder
}

// NewAutoDecoder wires the pure-Go decoders and, when ffmpeg is installed,
// an ffmpeg fallback.
func NewAutoDecoder(sampleRate int) *AutoDecoder {
	d := &AutoDecoder{
		WAV: WAVDecoder{},
		MP3: MP3Decoder{},
	}
	if ff := NewFFmpegDecoder(sampleRate); ff.Available() {
		d.Fallback = ff
	}
	return d
}

func (d *AutoDecoder) Decode(ctx context.Context, data []byte) (*Buffer, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty resource", ErrDecode)
	}

	var dec Decoder
	switch Sniff(data) {
	case FormatWAV:
		dec = d.WAV
	case FormatMP3:
		dec = d.MP3
	}
	sniffed := dec != nil
	if !sniffed {
		dec = d.Fallback
	}
	if dec == nil {
		return nil, fmt.Errorf("%w: unsupported format", ErrDecode)
	}
	buf, err := dec.Decode(ctx, data)
	if sniffed && d.Fallback != nil && errors.Is(err, ErrDecode) {
		return d.Fallback.Decode(ctx, data)
	}
	return buf, err
}
