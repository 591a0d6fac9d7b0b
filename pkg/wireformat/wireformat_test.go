package wireformat_test

import (
	"testing"

	"github.com/birddigital/voicebridge/pkg/wireformat"
	"github.com/birddigital/voicebridge/pkg/wireformat/audiocodes"
	"github.com/birddigital/voicebridge/pkg/wireformat/genesys"
	"github.com/birddigital/voicebridge/pkg/wireformat/testdialect"
	"github.com/birddigital/voicebridge/pkg/wireformat/twilio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allCodecs() map[string]wireformat.Codec {
	return map[string]wireformat.Codec{
		"audiocodes": audiocodes.New(),
		"twilio":     twilio.New(),
		"genesys":    genesys.New(),
		"test":       testdialect.New(),
	}
}

func TestEachCodecEncodesAnAudioChunkItCanDecodeBack(t *testing.T) {
	samplePCM := []byte{0x01, 0x02, 0x03, 0x04}

	for name, codec := range allCodecs() {
		t.Run(name, func(t *testing.T) {
			encoded, err := codec.Encode(wireformat.Action{
				Kind:     wireformat.ActionAudioChunk,
				StreamID: "stream-1",
				Audio:    samplePCM,
			})
			require.NoError(t, err)
			require.NotEmpty(t, encoded)

			// Only twilio/test frame audio chunks the same way in both
			// directions (genesys's "playback" type is an outbound-only
			// shape distinct from its inbound "audio" type, and
			// audiocodes's outbound "playStream.chunk" is distinct from
			// its inbound "userStream.chunk"), so decode only where the
			// dialect is symmetric.
			if name == "genesys" || name == "audiocodes" {
				return
			}
			ev, err := codec.Decode(encoded)
			require.NoError(t, err)
			assert.Equal(t, wireformat.EventAudioChunk, ev.Kind)
			assert.Equal(t, samplePCM, ev.Audio)
		})
	}
}

func TestEachCodecReportsPositiveMaxChunkBytes(t *testing.T) {
	for name, codec := range allCodecs() {
		t.Run(name, func(t *testing.T) {
			assert.Greater(t, codec.MaxChunkBytes(), 0)
		})
	}
}

func TestEachCodecDecodesUnknownFrameWithoutError(t *testing.T) {
	garbage := map[string][]byte{
		"audiocodes": []byte(`{"type":"something.else"}`),
		"twilio":     []byte(`{"event":"mysteryEvent"}`),
		"genesys":    []byte(`{"type":"keepalive"}`),
		"test":       []byte(`{"kind":"noop"}`),
	}
	for name, codec := range allCodecs() {
		t.Run(name, func(t *testing.T) {
			ev, err := codec.Decode(garbage[name])
			require.NoError(t, err)
			assert.Equal(t, wireformat.EventUnknown, ev.Kind)
		})
	}
}

func TestTwilioDecodesStartEvent(t *testing.T) {
	c := twilio.New()
	ev, err := c.Decode([]byte(`{"event":"start","streamSid":"MZabc","start":{"customParameters":{"caller_id":"+15551234567"}}}`))
	require.NoError(t, err)
	assert.Equal(t, wireformat.EventSessionStart, ev.Kind)
	assert.Equal(t, "MZabc", ev.StreamID)
	assert.Equal(t, "+15551234567", ev.CallerID)
}

func TestAudioCodesDecodesSessionInitiate(t *testing.T) {
	c := audiocodes.New()
	ev, err := c.Decode([]byte(`{"type":"session.initiate","conversationId":"conv-1","caller":"+15550000000"}`))
	require.NoError(t, err)
	assert.Equal(t, wireformat.EventSessionStart, ev.Kind)
	assert.Equal(t, "conv-1", ev.StreamID)
}

func TestGenesysDecodesOpen(t *testing.T) {
	c := genesys.New()
	ev, err := c.Decode([]byte(`{"type":"open","id":"g-1","parameters":{"conversationId":"g-1","ani":"+15551112222"}}`))
	require.NoError(t, err)
	assert.Equal(t, wireformat.EventSessionStart, ev.Kind)
	assert.Equal(t, "+15551112222", ev.CallerID)
}

func TestAudioCodesDecodesUserStreamStartAndStop(t *testing.T) {
	c := audiocodes.New()

	ev, err := c.Decode([]byte(`{"type":"userStream.start","conversationId":"conv-1"}`))
	require.NoError(t, err)
	assert.Equal(t, wireformat.EventUserStreamStart, ev.Kind)
	assert.Equal(t, "conv-1", ev.StreamID)

	ev, err = c.Decode([]byte(`{"type":"userStream.stop","conversationId":"conv-1"}`))
	require.NoError(t, err)
	assert.Equal(t, wireformat.EventUserStreamStop, ev.Kind)
	assert.Equal(t, "conv-1", ev.StreamID)
}

func TestAudioCodesParsesGreetingFlagAndSupportedFormats(t *testing.T) {
	c := audiocodes.New()
	ev, err := c.Decode([]byte(`{"type":"session.initiate","conversationId":"C1","supportedMediaFormats":["raw/lpcm16"],"expectAudioMessages":true}`))
	require.NoError(t, err)
	assert.True(t, ev.ExpectsGreeting)
	require.Len(t, ev.SupportedFormats, 1)
	assert.Equal(t, "linear16", ev.SupportedFormats[0].Encoding)
}

func TestAudioCodesRejectsEmptyFormatIntersection(t *testing.T) {
	c := audiocodes.New()
	ev, err := c.Decode([]byte(`{"type":"session.initiate","conversationId":"C1","supportedMediaFormats":["opus"]}`))
	require.NoError(t, err)
	require.NotNil(t, ev.SupportedFormats)
	assert.Empty(t, ev.SupportedFormats)
}

func TestAudioCodesEncodesPlayStreamStartWithMediaFormat(t *testing.T) {
	c := audiocodes.New()
	data, err := c.Encode(wireformat.Action{
		Kind:     wireformat.ActionAudioStart,
		StreamID: "C1",
		OutputID: "S1",
		Format:   c.RequiredInboundFormat(),
	})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"playStream.start"`)
	assert.Contains(t, string(data), `"streamId":"S1"`)
	assert.Contains(t, string(data), `"mediaFormat":"raw/lpcm16"`)
}

func TestEachCodecReportsAtLeastOneSupportedFormat(t *testing.T) {
	for name, codec := range allCodecs() {
		t.Run(name, func(t *testing.T) {
			assert.NotEmpty(t, codec.SupportedFormats())
		})
	}
}
