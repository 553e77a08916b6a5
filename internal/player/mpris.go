package player

import (
	"context"
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	DefaultMprisService = "org.mpris.MediaPlayer2.spotify"
	mprisPath           = "/org/mpris/MediaPlayer2"
	mprisPlayerIface    = "org.mpris.MediaPlayer2.Player"
)

// MPRIS reads a single player over the session bus.
type MPRIS struct {
	bus     *dbus.Conn
	service string
}

func NewMPRIS(service string) (*MPRIS, error) {
	if service == "" {
		service = DefaultMprisService
	}
	bus, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	return &MPRIS{bus: bus, service: service}, nil
}

func (m *MPRIS) State(ctx context.Context) (State, error) {
	obj := m.bus.Object(m.service, mprisPath)

	var metaVariant dbus.Variant
	err := obj.CallWithContext(ctx, "org.freedesktop.DBus.Properties.Get", 0, mprisPlayerIface, "Metadata").Store(&metaVariant)
	if err != nil {
		return State{}, fmt.Errorf("%w: metadata: %v", ErrNotReady, err)
	}
	metadata, ok := metaVariant.Value().(map[string]dbus.Variant)
	if !ok {
		return State{}, fmt.Errorf("unexpected metadata type %T", metaVariant.Value())
	}

	st := stateFromMetadata(metadata)
	if !st.Ready() {
		return State{}, ErrNotReady
	}

	var posVariant dbus.Variant
	err = obj.CallWithContext(ctx, "org.freedesktop.DBus.Properties.Get", 0, mprisPlayerIface, "Position").Store(&posVariant)
	if err != nil {
		return State{}, fmt.Errorf("%w: position: %v", ErrNotReady, err)
	}
	pos, ok := posVariant.Value().(int64)
	if !ok {
		return State{}, errors.New("unexpected position type")
	}
	if pos > 0 {
		st.Position = float64(pos) / 1e6
	}
	return st, nil
}

func (m *MPRIS) Close() error {
	return m.bus.Close()
}

func stateFromMetadata(metadata map[string]dbus.Variant) State {
	return State{
		Title:    extractString(metadata, "xesam:title"),
		Artist:   extractArtist(metadata, "xesam:artist"),
		Duration: extractSeconds(metadata, "mpris:length"),
	}
}

func extractString(metadata map[string]dbus.Variant, key string) string {
	variant, exists := metadata[key]
	if !exists {
		return ""
	}
	text, _ := variant.Value().(string)
	return text
}

func extractArtist(metadata map[string]dbus.Variant, key string) string {
	variant, exists := metadata[key]
	if !exists {
		return ""
	}
	switch typed := variant.Value().(type) {
	case []string:
		if len(typed) > 0 {
			return typed[0]
		}
	case string:
		return typed
	}
	return ""
}

// mpris:length is in microseconds; players disagree on signedness.
func extractSeconds(metadata map[string]dbus.Variant, key string) float64 {
	variant, exists := metadata[key]
	if !exists {
		return 0
	}
	switch typed := variant.Value().(type) {
	case int64:
		if typed > 0 {
			return float64(typed) / 1e6
		}
	case uint64:
		return float64(typed) / 1e6
	}
	return 0
}
