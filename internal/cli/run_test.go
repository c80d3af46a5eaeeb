package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// remote records the paths of non-probe requests.
type remote struct {
	mu     sync.Mutex
	paths  []string
	bodies []string
}

func (r *remote) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	body, _ := io.ReadAll(req.Body)
	r.mu.Lock()
	r.paths = append(r.paths, req.Method+" "+req.URL.Path)
	r.bodies = append(r.bodies, string(body))
	r.mu.Unlock()
	w.WriteHeader(http.StatusCreated)
}

func (r *remote) received() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func TestRun_RequiresBaseURL(t *testing.T) {
	w := newWorkspace(t)

	_, err := w.run(t, "", "run", "--no-diag")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "base_url is required")
}

func TestRun_DrainsQueueAndServesDiagnostics(t *testing.T) {
	rem := &remote{}
	srv := httptest.NewServer(rem)
	defer srv.Close()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "bizsync.yaml")
	cfg := fmt.Sprintf("base_url: %s\nlog_level: error\nlisten: 127.0.0.1:0\nrate_limit: 0\n", srv.URL)
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o600))
	w := workspace{config: cfgPath, db: filepath.Join(dir, "bizsync.db")}

	_, err := w.run(t, "", "enqueue", "--path", "/customers", "--data", `{"name":"Ada"}`)
	require.NoError(t, err)
	_, err = w.run(t, "", "enqueue", "--method", "PUT", "--path", "/customers/10001", "--data", `{"name":"Bob"}`)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	stdout := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(stdout)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", w.config, "--db", w.db, "run", "--interval", "100ms"})
	require.NoError(t, cmd.ExecuteContext(ctx))

	assert.Contains(t, stdout.String(), "Queue service started.")
	assert.Contains(t, stdout.String(), "Diagnostics on http://127.0.0.1:")
	assert.Equal(t, []string{"POST /customers", "PUT /customers/10001"}, rem.received())
	assert.Equal(t, `{"name":"Ada"}`, rem.bodies[0])

	out, err := w.run(t, "", "queue")
	require.NoError(t, err)
	assert.Contains(t, out, "Pending: 0")
}
