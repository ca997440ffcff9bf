package channel

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Encoder turns an event into the single text payload of one push. A process
// uses one encoder for every connection.
type Encoder interface {
	Encode(e Event) ([]byte, error)
}

// JSONEncoder writes one JSON object per event, e.g.
//
//	{"status":"ADDED","filename":"a.mp3","ipfsHash":"ipfs://Qm..."}
type JSONEncoder struct{}

func (JSONEncoder) Encode(e Event) ([]byte, error) {
	return json.Marshal(e)
}

// TokenEncoder writes bare status tokens followed by their arguments, e.g.
// "ADDING a.mp3". Completion is reported as DONE.
type TokenEncoder struct{}

func (TokenEncoder) Encode(e Event) ([]byte, error) {
	var parts []string
	switch e.Status {
	case StatusStarted:
		parts = []string{"STARTED"}
	case StatusAdding:
		parts = []string{"ADDING", e.Filename}
	case StatusAdded:
		parts = []string{"ADDED", e.Filename, e.IPFSHash}
	case StatusComplete:
		parts = []string{"DONE"}
	case StatusError:
		parts = []string{"ERROR", e.Message}
	default:
		return nil, fmt.Errorf("channel: unknown status %q", e.Status)
	}
	return []byte(strings.Join(parts, " ")), nil
}

// Protocol names accepted by NewEncoder.
const (
	ProtocolJSON  = "json"
	ProtocolToken = "token"
)

// NewEncoder returns the encoder for the named protocol.
func NewEncoder(protocol string) (Encoder, error) {
	switch protocol {
	case ProtocolJSON, "":
		return JSONEncoder{}, nil
	case ProtocolToken:
		return TokenEncoder{}, nil
	default:
		return nil, fmt.Errorf("channel: unknown protocol %q", protocol)
	}
}
