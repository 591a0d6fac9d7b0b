// Package audiocodec implements the pure audio transforms the bridge
// needs to move audio between a telephony peer's wire format and the
// realtime AI peer's preferred format: mu-law (G.711) encode/decode and
// linear-interpolation sample-rate conversion.
package audiocodec

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrOddLength is returned when a linear PCM16 buffer has an odd number
// of bytes, which cannot be a whole number of 16-bit samples.
var ErrOddLength = errors.New("audiocodec: linear PCM16 buffer has odd length")

// ErrEmptyBuffer is returned when a resample is requested on a
// zero-length input.
var ErrEmptyBuffer = errors.New("audiocodec: empty input buffer")

const (
	mulawBias = 0x84
	mulawClip = 32635
)

// MulawToLinear decodes a mu-law (G.711) byte stream into little-endian
// linear PCM16 samples, one output sample per input byte.
func MulawToLinear(mulaw []byte) []byte {
	out := make([]byte, len(mulaw)*2)
	for i, b := range mulaw {
		sample := decodeMulawByte(b)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(sample))
	}
	return out
}

func decodeMulawByte(b byte) int16 {
	b = ^b
	sign := b & 0x80
	exponent := (b >> 4) & 0x07
	mantissa := b & 0x0F

	sample := int32(mantissa)<<3 + mulawBias
	sample <<= exponent
	sample -= mulawBias

	if sign != 0 {
		sample = -sample
	}
	return int16(sample)
}

// LinearToMulaw encodes little-endian linear PCM16 samples into mu-law
// bytes, one output byte per input sample. Returns ErrOddLength if the
// input is not a whole number of 16-bit samples.
func LinearToMulaw(pcm []byte) ([]byte, error) {
	if len(pcm)%2 != 0 {
		return nil, ErrOddLength
	}
	out := make([]byte, len(pcm)/2)
	for i := 0; i < len(out); i++ {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		out[i] = encodeMulawSample(sample)
	}
	return out, nil
}

func encodeMulawSample(sample int16) byte {
	var sign byte
	s := int32(sample)
	if s < 0 {
		sign = 0x80
		s = -s
	}
	if s > mulawClip {
		s = mulawClip
	}
	s += mulawBias

	var exponent int16
	for exponent = 7; exponent > 0; exponent-- {
		if s&(int32(1)<<(uint(exponent)+7)) != 0 {
			break
		}
	}
	mantissa := byte((s >> (uint(exponent) + 3)) & 0x0F)
	encoded := sign | byte(exponent<<4) | mantissa
	return ^encoded
}

// ResampleLinear resamples little-endian linear PCM16 audio from fromHz
// to toHz using linear interpolation between adjacent samples. Mono
// audio only; callers de-interleave multi-channel audio before calling.
// Preserves duration to within one output sample period, as required by
// the no-silent-drift invariant: it never truncates or pads beyond what
// the sample-rate ratio dictates.
func ResampleLinear(pcm []byte, fromHz, toHz int) ([]byte, error) {
	if len(pcm) == 0 {
		return nil, ErrEmptyBuffer
	}
	if len(pcm)%2 != 0 {
		return nil, ErrOddLength
	}
	if fromHz <= 0 || toHz <= 0 {
		return nil, fmt.Errorf("audiocodec: invalid sample rate fromHz=%d toHz=%d", fromHz, toHz)
	}
	if fromHz == toHz {
		out := make([]byte, len(pcm))
		copy(out, pcm)
		return out, nil
	}

	numInput := len(pcm) / 2
	in := make([]int16, numInput)
	for i := range in {
		in[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}

	numOutput := (numInput * toHz) / fromHz
	if numOutput == 0 {
		numOutput = 1
	}
	out := make([]byte, numOutput*2)
	ratio := float64(fromHz) / float64(toHz)

	for i := 0; i < numOutput; i++ {
		srcPos := float64(i) * ratio
		srcIndex := int(srcPos)
		frac := srcPos - float64(srcIndex)

		a := in[srcIndex]
		var b int16
		if srcIndex+1 < numInput {
			b = in[srcIndex+1]
		} else {
			b = a
		}

		interpolated := float64(a) + (float64(b)-float64(a))*frac
		sample := clampInt16(interpolated)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(sample))
	}
	return out, nil
}

func clampInt16(v float64) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

// SilenceLinear16 returns n bytes (n/2 samples) of zero-valued linear
// PCM16 silence, used to pad an input buffer up to a minimum commit
// duration without shifting existing sample timing.
func SilenceLinear16(numBytes int) []byte {
	if numBytes < 0 {
		numBytes = 0
	}
	if numBytes%2 != 0 {
		numBytes++
	}
	return make([]byte, numBytes)
}
