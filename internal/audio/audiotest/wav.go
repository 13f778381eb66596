// Package audiotest builds small in-memory audio fixtures for tests.
package audiotest

import (
	"bytes"
	"encoding/binary"
	"math"
)

// WAV encodes 16-bit PCM RIFF/WAVE bytes. Each channel slice holds samples
// in [-1, 1]; all channels must have the same length.
func WAV(sampleRate int, channels ...[]float64) []byte {
	numChannels := len(channels)
	frames := 0
	if numChannels > 0 {
		frames = len(channels[0])
	}
	const bitsPerSample = 16
	blockAlign := numChannels * bitsPerSample / 8
	dataSize := frames * blockAlign

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(&buf, binary.LittleEndian, uint16(numChannels))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*blockAlign))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(dataSize))
	for i := range frames {
		for _, ch := range channels {
			_ = binary.Write(&buf, binary.LittleEndian, toInt16(ch[i]))
		}
	}
	return buf.Bytes()
}

// Sine returns n samples of a sine wave at freq Hz scaled by amplitude.
func Sine(n, sampleRate int, freq, amplitude float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return out
}

func toInt16(v float64) int16 {
	v = math.Max(-1, math.Min(1, v))
	return int16(math.Round(v * 32767))
}
