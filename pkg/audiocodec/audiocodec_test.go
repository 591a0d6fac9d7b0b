package audiocodec_test

import (
	"encoding/binary"
	"testing"

	"github.com/birddigital/voicebridge/pkg/audiocodec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linearBuf(samples ...int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func TestMulawRoundTripIsLossyButBounded(t *testing.T) {
	original := linearBuf(0, 1000, -1000, 16000, -16000, 32000, -32000)

	encoded, err := audiocodec.LinearToMulaw(original)
	require.NoError(t, err)
	require.Len(t, encoded, 7)

	decoded := audiocodec.MulawToLinear(encoded)
	require.Len(t, decoded, len(original))

	for i := 0; i < len(original)/2; i++ {
		want := int16(binary.LittleEndian.Uint16(original[i*2:]))
		got := int16(binary.LittleEndian.Uint16(decoded[i*2:]))
		// mu-law is lossy by design; the teacher's codec is exercised here
		// only for boundedness, not bit-exactness.
		diff := int(want) - int(got)
		if diff < 0 {
			diff = -diff
		}
		assert.Lessf(t, diff, 1300, "sample %d: want %d got %d", i, want, got)
	}
}

func TestLinearToMulawRejectsOddLength(t *testing.T) {
	_, err := audiocodec.LinearToMulaw([]byte{0x01})
	assert.ErrorIs(t, err, audiocodec.ErrOddLength)
}

func TestResampleLinearIdentity(t *testing.T) {
	in := linearBuf(1, 2, 3, 4)
	out, err := audiocodec.ResampleLinear(in, 8000, 8000)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestResampleLinearUpsampleDoublesLength(t *testing.T) {
	in := linearBuf(0, 1000, 2000, 3000)
	out, err := audiocodec.ResampleLinear(in, 8000, 16000)
	require.NoError(t, err)
	assert.Equal(t, len(in)*2, len(out))
}

func TestResampleLinearDownsampleHalvesLength(t *testing.T) {
	in := linearBuf(0, 1000, 2000, 3000, 4000, 5000, 6000, 7000)
	out, err := audiocodec.ResampleLinear(in, 16000, 8000)
	require.NoError(t, err)
	assert.Equal(t, len(in)/2, len(out))
}

func TestResampleLinearRejectsEmpty(t *testing.T) {
	_, err := audiocodec.ResampleLinear(nil, 8000, 16000)
	assert.ErrorIs(t, err, audiocodec.ErrEmptyBuffer)
}

func TestSilenceLinear16RoundsUpToEvenLength(t *testing.T) {
	s := audiocodec.SilenceLinear16(3)
	assert.Len(t, s, 4)
	for _, b := range s {
		assert.Equal(t, byte(0), b)
	}
}
