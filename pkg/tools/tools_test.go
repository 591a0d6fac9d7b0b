package tools_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/birddigital/voicebridge/pkg/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoTool struct{}

func (echoTool) Name() string { return "echo" }
func (echoTool) Schema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"text": map[string]any{"type": "string"}},
	}
}
func (echoTool) Invoke(_ context.Context, args json.RawMessage) (any, error) {
	var in struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, err
	}
	return in.Text, nil
}

func TestDispatcherAccumulatesArgumentDeltasAndInvokes(t *testing.T) {
	reg := tools.NewRegistry()
	reg.Register(echoTool{})
	d := tools.NewDispatcher(reg)

	d.BeginCall("call-1", "item-1", "echo")
	d.AppendArgs("call-1", `{"te`)
	d.AppendArgs("call-1", `xt":"hi"}`)
	p := d.Complete("call-1", "echo", `{"text":"hi"}`)

	require.True(t, p.Done)
	result, err := d.Invoke(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "hi", result)
}

func TestDispatcherTracksMultipleConcurrentCalls(t *testing.T) {
	reg := tools.NewRegistry()
	reg.Register(echoTool{})
	d := tools.NewDispatcher(reg)

	d.BeginCall("call-a", "item-a", "echo")
	d.BeginCall("call-b", "item-b", "echo")
	d.AppendArgs("call-a", `{"text":"a"}`)
	d.AppendArgs("call-b", `{"text":"b"}`)

	pa := d.Complete("call-a", "echo", `{"text":"a"}`)
	pb := d.Complete("call-b", "echo", `{"text":"b"}`)

	ra, err := d.Invoke(context.Background(), pa)
	require.NoError(t, err)
	rb, err := d.Invoke(context.Background(), pb)
	require.NoError(t, err)

	assert.Equal(t, "a", ra)
	assert.Equal(t, "b", rb)
}

func TestInvokeUnknownToolReturnsError(t *testing.T) {
	reg := tools.NewRegistry()
	d := tools.NewDispatcher(reg)
	p := d.Complete("call-1", "does-not-exist", `{}`)

	_, err := d.Invoke(context.Background(), p)
	assert.ErrorIs(t, err, tools.ErrUnknownTool)
}

func TestForgetRemovesPendingCall(t *testing.T) {
	reg := tools.NewRegistry()
	reg.Register(echoTool{})
	d := tools.NewDispatcher(reg)

	d.BeginCall("call-1", "item-1", "echo")
	d.Forget("call-1")

	_, ok := d.Pending("call-1")
	assert.False(t, ok)
}
