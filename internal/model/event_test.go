package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeEvent(t *testing.T) {
	events := []Event{
		LockGranted{RowID: "r1", Holder: "alice", ExpiresAt: 1700000100},
		LockReleased{RowID: "r1", Holder: "alice"},
		LockExpired{RowID: "r2", Holder: "bob"},
		FlagChanged{RowID: "r3", Flag: FlagApproved, Value: true, Version: 7},
	}
	for _, ev := range events {
		payload, err := EncodeEvent(ev)
		require.NoError(t, err)
		decoded, err := DecodeEvent(payload)
		require.NoError(t, err)
		require.Equal(t, ev, decoded)
	}
}

func TestDecodeEventRejectsUnknownKind(t *testing.T) {
	_, err := DecodeEvent([]byte(`{"kind":"row_moved","row_id":"r1"}`))
	require.Error(t, err)
}
