package connector

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/agentlink/internal/client"
	"github.com/mattjoyce/agentlink/internal/engine"
	"github.com/mattjoyce/agentlink/internal/log"
	"github.com/mattjoyce/agentlink/internal/supervisor"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR", "json") // Suppress logs in tests
	os.Exit(m.Run())
}

func buildMockEngine(t *testing.T) string {
	t.Helper()
	bin := filepath.Join(t.TempDir(), "mock-engine")
	out, err := exec.Command("go", "build", "-o", bin, "../supervisor/testdata/mock-engine/main.go").CombinedOutput()
	if err != nil {
		t.Fatalf("build mock engine: %v\n%s", err, out)
	}
	return bin
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestStartConnectsClient(t *testing.T) {
	bin := buildMockEngine(t)

	conn, err := Start(context.Background(), Options{
		Engine: engine.Options{
			Kind:          engine.KindNuwaxcode,
			Port:          freePort(t),
			NuwaxcodePath: bin,
		},
		ThrowOnError: true,
	})
	require.NoError(t, err)

	raw, err := conn.Client.Global.Health(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"healthy":true,"version":"mock"}`, string(raw))
	assert.Equal(t, conn.Server.URL, conn.Client.BaseURL())
	assert.True(t, conn.Client.Settings().ThrowOnError)

	require.NoError(t, conn.Close())
	select {
	case <-conn.Server.Exited():
	case <-time.After(2 * time.Second):
		t.Fatal("engine still running after Close")
	}
	assert.Equal(t, supervisor.StateStopped, conn.Supervisor().State())
}

func TestStartRejectsUnknownKind(t *testing.T) {
	_, err := Start(context.Background(), Options{Engine: engine.Options{Kind: "claude"}})
	assert.ErrorIs(t, err, engine.ErrUnknownKind)
}

func TestStartMissingBinary(t *testing.T) {
	_, err := Start(context.Background(), Options{
		Engine: engine.Options{OpencodePath: filepath.Join(t.TempDir(), "nope"), Port: freePort(t)},
	})
	var spawnErr *supervisor.SpawnError
	assert.True(t, errors.As(err, &spawnErr), "expected SpawnError, got %v", err)
}

func TestNewClientDefaults(t *testing.T) {
	c, err := NewClient(ClientOptions{})
	require.NoError(t, err)
	assert.Equal(t, client.DefaultBaseURL, c.BaseURL())
	assert.False(t, c.Settings().ThrowOnError)
}

func TestNewClientAgainstRunningEngine(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/session/list" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`[{"id":"s1"}]`))
	}))
	defer srv.Close()

	c, err := NewClient(ClientOptions{BaseURL: srv.URL, ThrowOnError: true})
	require.NoError(t, err)

	raw, err := c.Session.List(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"s1"}]`, string(raw))

	_, err = c.Session.Get(context.Background(), "s1")
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
}
