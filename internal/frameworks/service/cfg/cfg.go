// Package cfg decodes raw config sections (map[string]any from TOML) into typed
// driver and middleware configuration structs.
package cfg

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Setter is implemented by configuration structs that fill in defaults
// after decoding.
type Setter interface {
	ApplyDefaults()
}

// Decode decodes the raw input map into the struct pointed to by c.
// Durations may be given as strings ("30s"); unknown keys are rejected so
// typos in [store.drivers.<name>] surface at startup.
// If c implements Setter, ApplyDefaults is called after decoding, including
// when input is nil.
func Decode(input map[string]any, c any) error {
	config := &mapstructure.DecoderConfig{
		Result:           c,
		TagName:          "mapstructure",
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	}

	decoder, err := mapstructure.NewDecoder(config)
	if err != nil {
		return err
	}
	if input != nil {
		if err := decoder.Decode(input); err != nil {
			return fmt.Errorf("decode config: %w", err)
		}
	}

	if s, ok := c.(Setter); ok {
		s.ApplyDefaults()
	}

	return nil
}
