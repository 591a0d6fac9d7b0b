// Package exampletools provides a small set of locally implemented
// tools.Tool implementations, grounded on the teacher's call-handlers.go
// pattern of registering callback functions for inbound DTMF/IVR
// actions, generalized here to the AI peer's function-call protocol.
// These exist to give pkg/tools and pkg/bridge's dispatch path a
// concrete tool to exercise; production deployments register their own.
package exampletools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// schemaFor generates the JSON Schema for a parameter struct T using
// jsonschema-go's reflection-based generator, and flattens it into the
// map[string]any shape pkg/tools.Tool.Schema expects to hand the AI
// peer, rather than hand-writing parallel schema literals per tool.
func schemaFor[T any]() map[string]any {
	s, err := jsonschema.For[T](nil)
	if err != nil {
		panic(fmt.Sprintf("exampletools: generate schema: %v", err))
	}
	raw, err := json.Marshal(s)
	if err != nil {
		panic(fmt.Sprintf("exampletools: marshal schema: %v", err))
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		panic(fmt.Sprintf("exampletools: unmarshal schema: %v", err))
	}
	return m
}

// WeatherParams is the argument shape the AI peer must supply to
// invoke WeatherLookup.
type WeatherParams struct {
	Location string `json:"location" jsonschema:"the city or region to look up, e.g. 'Austin, TX'"`
}

// WeatherResult is returned to the AI peer as the function_call_output
// payload.
type WeatherResult struct {
	Location    string `json:"location"`
	Conditions  string `json:"conditions"`
	TempCelsius int    `json:"temp_celsius"`
}

// WeatherLookup is a stand-in for a real weather API call: it returns a
// deterministic canned forecast so the function-call round trip can be
// exercised without an outbound network dependency. Real deployments
// register a Tool backed by an actual provider instead.
type WeatherLookup struct {
	schema map[string]any
}

// NewWeatherLookup constructs a WeatherLookup tool with its schema
// pre-generated.
func NewWeatherLookup() *WeatherLookup {
	return &WeatherLookup{schema: schemaFor[WeatherParams]()}
}

func (w *WeatherLookup) Name() string { return "get_weather" }

func (w *WeatherLookup) Schema() map[string]any { return w.schema }

func (w *WeatherLookup) Invoke(ctx context.Context, args json.RawMessage) (any, error) {
	var p WeatherParams
	if err := json.Unmarshal(args, &p); err != nil {
		return nil, fmt.Errorf("exampletools: decode get_weather args: %w", err)
	}
	if p.Location == "" {
		return nil, fmt.Errorf("exampletools: get_weather requires a location")
	}
	return WeatherResult{
		Location:    p.Location,
		Conditions:  "partly cloudy",
		TempCelsius: 21,
	}, nil
}
