package container

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/garyjia/trip-expense/internal/config"
	"github.com/garyjia/trip-expense/internal/protocol"
)

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 8080, ExecPath: "/api/exec", NodeID: 1},
		Database: config.DatabaseConfig{
			Path:         filepath.Join(dir, "trips.db"),
			MaxOpenConns: 1,
			MaxIdleConns: 1,
		},
		Storage: config.StorageConfig{PhotoDir: filepath.Join(dir, "photos")},
		Auth: config.AuthConfig{
			AdminPassword: "secret-pass",
			JWTSecret:     "0123456789abcdef0123",
			TokenTTL:      time.Hour,
			BcryptCost:    bcrypt.MinCost,
		},
	}
}

func post(t *testing.T, c *Container, req protocol.Request) protocol.Response {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	c.Server().Router().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/exec", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, w.Code)

	var resp protocol.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestNewContainer_ValidatesConfig(t *testing.T) {
	_, err := NewContainer(nil, zap.NewNop())
	assert.Error(t, err)

	cfg := testConfig(t)
	cfg.Auth.JWTSecret = ""
	_, err = NewContainer(cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestContainer_Lifecycle(t *testing.T) {
	c, err := NewContainer(testConfig(t), zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, c.Start(context.Background()))
	assert.True(t, c.Ready())
	assert.Error(t, c.Start(context.Background()))

	health := c.Health()
	assert.True(t, health.Overall, "%+v", health.Components)

	login := post(t, c, protocol.Request{Action: protocol.ActionAdminLogin, Password: "secret-pass"})
	require.True(t, login.Success, login.Error)
	require.NotEmpty(t, login.Token)

	trips := post(t, c, protocol.Request{Action: protocol.ActionAdminGetTrips, Token: login.Token})
	require.True(t, trips.Success, trips.Error)
	assert.Empty(t, trips.Trips)

	wrong := post(t, c, protocol.Request{Action: protocol.ActionAdminLogin, Password: "nope"})
	assert.True(t, wrong.AuthError)

	require.NoError(t, c.Close())
	assert.False(t, c.Ready())
	assert.Error(t, c.Close())
	assert.Error(t, c.Start(context.Background()))
}

func TestConvertToZapFields(t *testing.T) {
	fields := convertToZapFields("trip_code", "TRIP-0001", 42, "skipped", "error", assert.AnError, "dangling")
	require.Len(t, fields, 2)
	assert.Equal(t, "trip_code", fields[0].Key)
	assert.Equal(t, "error", fields[1].Key)
}
