package cmd

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tomasbasham/cli-runtime/iooption"

	"github.com/tomasbasham/ipfs-relay/internal/errdefs"
	"github.com/tomasbasham/ipfs-relay/internal/relay"
)

// clearEnv unsets the relay's variables for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"STAGE", "BUCKET_NAME", "REGION", "STORAGE_BACKEND", "STORAGE_DIR",
		"IPFS_URL", "INFURA_PROJECT_ID", "INFURA_SECRET", "IPFS_TIMEOUT", "DOMAIN_NAME",
	} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out, errOut bytes.Buffer
	cmd := NewRootCommandWithArgs(NewRelayOptions(iooption.IOStreams{
		In:     &bytes.Buffer{},
		Out:    &out,
		ErrOut: &errOut,
	}))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestUploadCommand(t *testing.T) {
	clearEnv(t)

	ipfsAPI := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"Name":"QmHash","Hash":"QmHash","Size":"4"}`)
	}))
	defer ipfsAPI.Close()

	t.Setenv("IPFS_URL", ipfsAPI.URL)
	t.Setenv("INFURA_PROJECT_ID", "project")
	t.Setenv("INFURA_SECRET", "secret")

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.mp3"), []byte("data"), 0o644))

	t.Run("success", func(t *testing.T) {
		out, err := execute(t, "upload", "--dir", dir, "--protocol", "token", "a.mp3")
		require.NoError(t, err)
		require.Equal(t, "STARTED\nADDING a.mp3\nADDED a.mp3 ipfs://QmHash\nDONE\n", out)
	})

	t.Run("missing file", func(t *testing.T) {
		out, err := execute(t, "upload", "--dir", dir, "a.mp3", "missing.mp3")
		require.Error(t, err)
		require.Contains(t, out, `{"status":"ERROR","message":"failed to fetch \"missing.mp3\""}`)
	})

	t.Run("underscored flags", func(t *testing.T) {
		out, err := execute(t, "upload", "--dir", dir, "--log_level", "error", "--protocol", "token", "a.mp3")
		require.NoError(t, err)
		require.Equal(t, "STARTED\nADDING a.mp3\nADDED a.mp3 ipfs://QmHash\nDONE\n", out)
	})

	t.Run("no filenames", func(t *testing.T) {
		_, err := execute(t, "upload", "--dir", dir)
		require.Error(t, err)
	})
}

func TestServeCommand_MissingConfiguration(t *testing.T) {
	clearEnv(t)
	t.Setenv("IPFS_URL", "https://ipfs.example.com:5001")

	_, err := execute(t, "serve", "--port", "0")
	require.ErrorIs(t, err, errdefs.ErrConfiguration)
}

type staticProcessor struct {
	outcome relay.Outcome
	raw     []byte
}

func (p *staticProcessor) Process(_ context.Context, _ string, raw []byte) relay.Outcome {
	p.raw = raw
	return p.outcome
}

func TestRunBatch(t *testing.T) {
	p := &staticProcessor{outcome: relay.Outcome{StatusCode: http.StatusOK, Body: "Done"}}
	require.NoError(t, runBatch(context.Background(), p, []string{"a,b.mp3", "c.mp3"}))
	require.JSONEq(t, `{"action":"ipfs-upload","data":{"filenames":["a,b.mp3","c.mp3"]}}`, string(p.raw))

	p.outcome = relay.Outcome{StatusCode: http.StatusInternalServerError}
	require.Error(t, runBatch(context.Background(), p, []string{"a"}))
}
