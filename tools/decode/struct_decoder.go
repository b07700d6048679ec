package decode

import (
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"
)

// Options controls decode behavior.
type Options struct {
	// WeaklyTypedInput enables loose conversions ("123" -> int, 1.0 -> int64).
	// Client frames come from JSON, so numbers arrive as float64 either way.
	WeaklyTypedInput bool
}

func DefaultOptions() Options {
	return Options{WeaklyTypedInput: true}
}

// DecodeMap decodes a JSON-shaped map (the "data" of an event frame) into a
// payload struct T. Struct fields are read through their `json` tags.
func DecodeMap[T any](m map[string]any, opts ...Options) (*T, error) {
	if m == nil {
		m = map[string]any{}
	}

	cfg := DefaultOptions()
	if len(opts) > 0 {
		cfg = opts[0]
	}

	var out T
	decCfg := &mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           &out,
		WeaklyTypedInput: cfg.WeaklyTypedInput,
		DecodeHook:       floatToIntHook(),
	}

	dec, err := mapstructure.NewDecoder(decCfg)
	if err != nil {
		return nil, fmt.Errorf("new decoder: %w", err)
	}
	if err := dec.Decode(m); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return &out, nil
}

// floatToIntHook converts JSON float64 numbers into integer fields.
func floatToIntHook() mapstructure.DecodeHookFunc {
	return func(from, to reflect.Kind, data any) (any, error) {
		if from != reflect.Float64 {
			return data, nil
		}
		switch to {
		case reflect.Int:
			return int(data.(float64)), nil
		case reflect.Int32:
			return int32(data.(float64)), nil
		case reflect.Int64:
			return int64(data.(float64)), nil
		}
		return data, nil
	}
}
