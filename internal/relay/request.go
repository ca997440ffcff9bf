package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/tomasbasham/ipfs-relay/internal/errdefs"
)

// UploadRequest names the files a client wants relayed over one connection.
type UploadRequest struct {
	ConnectionID string
	Filenames    []string
}

// message is the inbound body: {"data":{"filenames":"a.mp3,b.mp3"}}.
type message struct {
	Data struct {
		Filenames filenameList `json:"filenames"`

		// Filename is the single-file form used by older clients.
		Filename string `json:"filename"`
	} `json:"data"`
}

// filenameList decodes either a comma-separated string or an array of
// strings.
type filenameList []string

func (l *filenameList) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if s == "" {
			*l = nil
			return nil
		}
		*l = strings.Split(s, ",")
		return nil
	}

	var list []string
	if err := json.Unmarshal(b, &list); err != nil {
		return errors.New("filenames must be a string or a list of strings")
	}
	*l = list
	return nil
}

var (
	errInvalidBody     = fmt.Errorf("%w: invalid message body", errdefs.ErrValidation)
	errMissingFilename = fmt.Errorf("%w: missing filename parameter", errdefs.ErrValidation)
)

// ParseRequest decodes raw into an UploadRequest. Filenames keep their order
// and duplicates; an absent list, or any empty entry, is rejected.
func ParseRequest(connectionID string, raw []byte) (*UploadRequest, error) {
	var m message
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", errInvalidBody, err)
	}

	names := []string(m.Data.Filenames)
	if len(names) == 0 && m.Data.Filename != "" {
		names = []string{m.Data.Filename}
	}
	if len(names) == 0 || lo.Contains(names, "") {
		return nil, errMissingFilename
	}

	return &UploadRequest{
		ConnectionID: connectionID,
		Filenames:    names,
	}, nil
}
