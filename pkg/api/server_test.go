package api

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goclaw/recall/config"
	"github.com/goclaw/recall/pkg/api/handlers"
	"github.com/goclaw/recall/pkg/engine"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestNewHTTPServer(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.Host = "localhost"
	cfg.Server.Port = 8080

	eng, err := engine.New(testStore(t), engine.DefaultConfig())
	require.NoError(t, err)

	server := NewHTTPServer(cfg, testLogger(), &Handlers{
		Health: handlers.NewHealthHandler(eng),
	})
	require.NotNil(t, server)
	assert.NotNil(t, server.Handler())
	assert.Equal(t, "localhost:8080", server.Addr())
	assert.Equal(t, cfg.Server.HTTP.ReadTimeout, server.server.ReadTimeout)
	assert.Equal(t, cfg.Server.HTTP.WriteTimeout, server.server.WriteTimeout)
	assert.Equal(t, cfg.Server.HTTP.IdleTimeout, server.server.IdleTimeout)
}

func TestHTTPServer_StartAndShutdown(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = freePort(t)

	eng, err := engine.New(testStore(t), engine.DefaultConfig())
	require.NoError(t, err)

	server := NewHTTPServer(cfg, testLogger(), &Handlers{
		Health: handlers.NewHealthHandler(eng),
	})

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	url := "http://" + net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)) + "/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, server.Shutdown(ctx))

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestHTTPServer_StartFailsOnBusyPort(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	cfg := config.DefaultConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = l.Addr().(*net.TCPAddr).Port

	server := NewHTTPServer(cfg, testLogger(), &Handlers{})
	assert.Error(t, server.Start())
}
