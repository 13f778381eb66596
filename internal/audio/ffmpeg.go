package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// FFmpegDecoder shells out to ffmpeg for containers the pure-Go decoders do
// not handle (AAC, OGG, FLAC, video files). Only the first channel is kept.
type FFmpegDecoder struct {
	Cmd        string
	SampleRate int
}

// NewFFmpegDecoder returns a decoder using the ffmpeg binary on PATH.
func NewFFmpegDecoder(sampleRate int) FFmpegDecoder {
	if sampleRate <= 0 {
		sampleRate = 44100
	}
	return FFmpegDecoder{Cmd: "ffmpeg", SampleRate: sampleRate}
}

// Available reports whether the ffmpeg binary can be found.
func (f FFmpegDecoder) Available() bool {
	_, err := exec.LookPath(f.Cmd)
	return err == nil
}

func (f FFmpegDecoder) Decode(ctx context.Context, data []byte) (*Buffer, error) {
	cmdPath, err := exec.LookPath(f.Cmd)
	if err != nil {
		return nil, fmt.Errorf("%w: ffmpeg not available: %v", ErrDecode, err)
	}

	cmd := exec.CommandContext(ctx, cmdPath, f.args()...)
	cmd.Stdin = bytes.NewReader(data)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: ffmpeg: %v: %s", ErrDecode, err, strings.TrimSpace(stderr.String()))
	}

	samples := decodeF32LE(stdout.Bytes())
	return &Buffer{
		SampleRate: f.SampleRate,
		Channels:   [][]float32{samples},
	}, nil
}

func (f FFmpegDecoder) args() []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", "pipe:0",
		"-vn",
		// keep the first channel only
		"-af", "pan=mono|c0=c0",
		"-ar", strconv.Itoa(f.SampleRate),
		"-f", "f32le",
		"pipe:1",
	}
}

func decodeF32LE(raw []byte) []float32 {
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out
}
