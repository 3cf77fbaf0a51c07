package main

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/advisoros/taskcore/pkg/broker"
	"github.com/advisoros/taskcore/pkg/persistence/file"
	"github.com/advisoros/taskcore/pkg/services"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestApp(t *testing.T) *fiber.App {
	t.Helper()

	eventBroker := broker.New(slog.Default())
	runtime := services.NewRuntime(services.Config{
		Persistence: file.NewPersistence(t.TempDir()),
		Sink:        eventBroker,
		Logger:      slog.Default(),
	})
	registry := services.NewRegistry(runtime)
	eventBroker.SetSnapshots(registry)

	t.Cleanup(func() {
		runtime.Close()
		eventBroker.Close()
	})

	api := NewAPI(slog.Default(), registry, services.NewTaskGraph(runtime), services.NewCollaboration(runtime), eventBroker)

	return api.App()
}

func TestAPI_RootEndpoint(t *testing.T) {
	app := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "Taskcore API", string(body))
}

func TestAPI_HealthEndpoints(t *testing.T) {
	app := setupTestApp(t)

	for _, path := range []string{"/livez", "/readyz", "/health"} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		_ = resp.Body.Close()
	}
}

func TestAPI_RoutesAreMounted(t *testing.T) {
	app := setupTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/workflows",
		bytes.NewBufferString(`{"organization_id":"org-1","name":"2025 Tax Return"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-ID", "alice")

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer resp.Body.Close()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}
