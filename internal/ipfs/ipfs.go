// Package ipfs submits content to an IPFS HTTP API (for example Infura's) and
// returns the resulting content identifier.
package ipfs

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	shell "github.com/ipfs/go-ipfs-api"

	"github.com/tomasbasham/ipfs-relay/internal/errdefs"
)

// Credentials authenticate against the IPFS API using HTTP Basic auth.
type Credentials struct {
	ProjectID string
	Secret    string
}

// header returns the Authorization header value for the credentials.
func (c Credentials) header() string {
	token := base64.StdEncoding.EncodeToString([]byte(c.ProjectID + ":" + c.Secret))
	return "Basic " + token
}

// Addresser adds whole buffers to IPFS.
type Addresser struct {
	sh *shell.Shell
}

// NewAddresser creates an Addresser talking to the API at url. The credentials
// are baked into the HTTP client once and sent with every request. Each API
// call is abandoned after timeout; zero means no limit.
func NewAddresser(url string, creds Credentials, timeout time.Duration) *Addresser {
	transport := &authTransport{
		authorization: creds.header(),
		next:          http.DefaultTransport,
	}
	client := &http.Client{Transport: transport, Timeout: timeout}
	return &Addresser{sh: shell.NewShellWithClient(url, client)}
}

// Add submits data as a single pinned file and returns its CID.
//
// The underlying client does not accept a context for adds, so ctx is only
// consulted before the call is made; the client timeout bounds the call.
func (a *Addresser) Add(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: ipfs: %w", errdefs.ErrAddressing, err)
	}

	cid, err := a.sh.Add(bytes.NewReader(data), shell.Pin(true))
	if err != nil {
		return "", fmt.Errorf("%w: ipfs: add failed: %w", errdefs.ErrAddressing, err)
	}
	if cid == "" {
		return "", fmt.Errorf("%w: ipfs: add returned an empty hash", errdefs.ErrAddressing)
	}
	return cid, nil
}

type authTransport struct {
	authorization string
	next          http.RoundTripper
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrippers must not modify the caller's request.
	r := req.Clone(req.Context())
	r.Header.Set("Authorization", t.authorization)
	return t.next.RoundTrip(r)
}
