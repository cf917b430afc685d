package calendar

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

// EventWindow is the typed view of a draft's event timing metadata.
type EventWindow struct {
	Start time.Time `mapstructure:"event_start"`
	End   time.Time `mapstructure:"event_end"`
}

// Window decodes event_start and event_end from the draft metadata.
func (d DraftSession) Window() (EventWindow, error) {
	var window EventWindow
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:     &window,
		DecodeHook: mapstructure.StringToTimeHookFunc(time.RFC3339),
	})
	if err != nil {
		return EventWindow{}, fmt.Errorf("create metadata decoder: %w", err)
	}
	if err := decoder.Decode(d.Metadata); err != nil {
		return EventWindow{}, fmt.Errorf("decode event window for %s: %w", d.SessionID, err)
	}
	return window, nil
}
