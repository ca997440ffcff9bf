package channel

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJSONEncoder(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		want  string
	}{
		{"started", Started(), `{"status":"STARTED"}`},
		{"adding", Adding("a.mp3"), `{"status":"ADDING","filename":"a.mp3"}`},
		{"added", Added("a.mp3", "Qa"), `{"status":"ADDED","filename":"a.mp3","ipfsHash":"ipfs://Qa"}`},
		{"complete", Complete(), `{"status":"COMPLETE"}`},
		{"error", Error("failed to fetch \"a.mp3\""), `{"status":"ERROR","message":"failed to fetch \"a.mp3\""}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := JSONEncoder{}.Encode(tt.event)
			require.NoError(t, err)
			require.JSONEq(t, tt.want, string(got))
			require.Equal(t, tt.want, string(got), "field order is part of the wire format")
		})
	}
}

func TestTokenEncoder(t *testing.T) {
	tests := []struct {
		event Event
		want  string
	}{
		{Started(), "STARTED"},
		{Adding("a.mp3"), "ADDING a.mp3"},
		{Added("a.mp3", "Qa"), "ADDED a.mp3 ipfs://Qa"},
		{Complete(), "DONE"},
		{Error("boom"), "ERROR boom"},
	}

	for _, tt := range tests {
		got, err := TokenEncoder{}.Encode(tt.event)
		require.NoError(t, err)
		require.Equal(t, tt.want, string(got))
	}

	_, err := TokenEncoder{}.Encode(Event{Status: "BOGUS"})
	require.Error(t, err)
}

func TestNewEncoder(t *testing.T) {
	enc, err := NewEncoder("")
	require.NoError(t, err)
	require.IsType(t, JSONEncoder{}, enc)

	enc, err = NewEncoder(ProtocolToken)
	require.NoError(t, err)
	require.IsType(t, TokenEncoder{}, enc)

	_, err = NewEncoder("xml")
	require.Error(t, err)
}
