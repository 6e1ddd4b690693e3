package model

import (
	"encoding/json"
	"fmt"
)

const (
	EventKindLockGranted  = "lock_granted"
	EventKindLockReleased = "lock_released"
	EventKindLockExpired  = "lock_expired"
	EventKindFlagChanged  = "flag_changed"
)

// Event is the tagged union pushed on a page topic. Consumers dispatch on
// the concrete type, not on the kind string.
type Event interface {
	Kind() string
	EventRowID() string
}

type LockGranted struct {
	RowID     string `json:"row_id"`
	Holder    string `json:"holder"`
	ExpiresAt int64  `json:"expires_at"`
}

func (LockGranted) Kind() string         { return EventKindLockGranted }
func (e LockGranted) EventRowID() string { return e.RowID }

type LockReleased struct {
	RowID  string `json:"row_id"`
	Holder string `json:"holder"`
}

func (LockReleased) Kind() string         { return EventKindLockReleased }
func (e LockReleased) EventRowID() string { return e.RowID }

type LockExpired struct {
	RowID  string `json:"row_id"`
	Holder string `json:"holder"`
}

func (LockExpired) Kind() string         { return EventKindLockExpired }
func (e LockExpired) EventRowID() string { return e.RowID }

type FlagChanged struct {
	RowID   string `json:"row_id"`
	Flag    string `json:"flag"`
	Value   bool   `json:"value"`
	Version int64  `json:"version"`
}

func (FlagChanged) Kind() string         { return EventKindFlagChanged }
func (e FlagChanged) EventRowID() string { return e.RowID }

type eventEnvelope struct {
	Kind      string `json:"kind"`
	RowID     string `json:"row_id"`
	Holder    string `json:"holder,omitempty"`
	ExpiresAt int64  `json:"expires_at,omitempty"`
	Flag      string `json:"flag,omitempty"`
	Value     bool   `json:"value,omitempty"`
	Version   int64  `json:"version,omitempty"`
}

func EncodeEvent(ev Event) ([]byte, error) {
	env := eventEnvelope{Kind: ev.Kind(), RowID: ev.EventRowID()}
	switch e := ev.(type) {
	case LockGranted:
		env.Holder = e.Holder
		env.ExpiresAt = e.ExpiresAt
	case LockReleased:
		env.Holder = e.Holder
	case LockExpired:
		env.Holder = e.Holder
	case FlagChanged:
		env.Flag = e.Flag
		env.Value = e.Value
		env.Version = e.Version
	default:
		return nil, fmt.Errorf("unknown event type %T", ev)
	}
	return json.Marshal(env)
}

func DecodeEvent(data []byte) (Event, error) {
	var env eventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	switch env.Kind {
	case EventKindLockGranted:
		return LockGranted{RowID: env.RowID, Holder: env.Holder, ExpiresAt: env.ExpiresAt}, nil
	case EventKindLockReleased:
		return LockReleased{RowID: env.RowID, Holder: env.Holder}, nil
	case EventKindLockExpired:
		return LockExpired{RowID: env.RowID, Holder: env.Holder}, nil
	case EventKindFlagChanged:
		return FlagChanged{RowID: env.RowID, Flag: env.Flag, Value: env.Value, Version: env.Version}, nil
	default:
		return nil, fmt.Errorf("unknown event kind %q", env.Kind)
	}
}
