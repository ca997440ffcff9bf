package ipfs

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tomasbasham/ipfs-relay/internal/errdefs"
)

func TestAddresser_Add(t *testing.T) {
	req := require.New(t)

	var (
		gotPath string
		gotAuth string
		gotBody []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotBody, _ = io.ReadAll(r.Body)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"Name":"QmHash","Hash":"QmHash","Size":"13"}`)
	}))
	defer srv.Close()

	a := NewAddresser(srv.URL, Credentials{ProjectID: "project", Secret: "secret"}, time.Minute)

	cid, err := a.Add(context.Background(), []byte("hello, world!"))
	req.NoError(err)
	req.Equal("QmHash", cid)
	req.Equal("/api/v0/add", gotPath)
	req.Equal("Basic "+base64.StdEncoding.EncodeToString([]byte("project:secret")), gotAuth)
	req.Contains(string(gotBody), "hello, world!")
}

func TestAddresser_AddBackendFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"Message":"node offline","Code":0,"Type":"error"}`)
	}))
	defer srv.Close()

	a := NewAddresser(srv.URL, Credentials{ProjectID: "project", Secret: "secret"}, time.Minute)

	_, err := a.Add(context.Background(), []byte("data"))
	require.ErrorIs(t, err, errdefs.ErrAddressing)
}

func TestAddresser_AddCancelled(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := NewAddresser(srv.URL, Credentials{}, time.Minute)
	_, err := a.Add(ctx, []byte("data"))
	require.ErrorIs(t, err, errdefs.ErrAddressing)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, calls)
}

func TestCredentials_Header(t *testing.T) {
	h := Credentials{ProjectID: "id", Secret: "s3cret"}.header()
	require.Equal(t, "Basic aWQ6czNjcmV0", h)
}

func TestAddresser_AddTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	a := NewAddresser(srv.URL, Credentials{}, 50*time.Millisecond)

	start := time.Now()
	_, err := a.Add(context.Background(), []byte("data"))
	require.ErrorIs(t, err, errdefs.ErrAddressing)
	require.Less(t, time.Since(start), 5*time.Second)
}
