// Package httpapi exposes the bridge over a small REST surface plus a
// websocket event feed, for dashboards and local automation glue.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Expl0dingBanana/aferobridge/internal/afero"
	"github.com/Expl0dingBanana/aferobridge/internal/bridge"
)

type API struct {
	bridge *bridge.Bridge
	logger *slog.Logger
}

func New(b *bridge.Bridge, logger *slog.Logger) *API {
	return &API{bridge: b, logger: logger.With("component", "httpapi")}
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", a.health)
	// The event feed holds its connection open, so it stays outside the
	// request timeout group.
	r.Get("/api/events", a.events)
	r.Group(func(api chi.Router) {
		api.Use(middleware.Timeout(20 * time.Second))
		api.Get("/api/devices", a.listDevices)
		api.Get("/api/devices/{id}", a.getDevice)
		api.Put("/api/devices/{id}/state", a.setState)
		api.Post("/api/refresh", a.refresh)
	})
	return r
}

type deviceView struct {
	ID           string        `json:"id"`
	DeviceID     string        `json:"deviceId,omitempty"`
	Model        string        `json:"model,omitempty"`
	DeviceClass  string        `json:"deviceClass,omitempty"`
	FriendlyName string        `json:"friendlyName,omitempty"`
	Manufacturer string        `json:"manufacturer,omitempty"`
	States       []afero.State `json:"states"`
}

func viewOf(dev *afero.Device) deviceView {
	return deviceView{
		ID:           dev.ID,
		DeviceID:     dev.DeviceID,
		Model:        dev.Model,
		DeviceClass:  dev.DeviceClass,
		FriendlyName: dev.FriendlyName,
		Manufacturer: dev.Manufacturer,
		States:       dev.States,
	}
}

func (a *API) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"tracked": len(a.bridge.TrackedDevices()),
	})
}

func (a *API) listDevices(w http.ResponseWriter, _ *http.Request) {
	devices := a.bridge.Events().CachedDevices()
	items := make([]deviceView, 0, len(devices))
	for _, dev := range devices {
		items = append(items, viewOf(dev))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) getDevice(w http.ResponseWriter, r *http.Request) {
	dev, ok := a.bridge.Events().CachedDevice(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "Device not found")
		return
	}
	writeJSON(w, http.StatusOK, viewOf(dev))
}

func (a *API) setState(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Values []afero.State `json:"values"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "Invalid JSON payload")
		return
	}
	if len(payload.Values) == 0 {
		writeError(w, http.StatusBadRequest, "empty_values", "values must not be empty")
		return
	}
	err := a.bridge.SendServiceRequest(r.Context(), chi.URLParam(r, "id"), payload.Values)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
	case errors.Is(err, afero.ErrDeviceNotFound):
		writeError(w, http.StatusNotFound, "not_found", "Device not found")
	case errors.Is(err, afero.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "Device is not accessible with these credentials")
	default:
		writeError(w, http.StatusBadGateway, "state_failed", err.Error())
	}
}

func (a *API) refresh(w http.ResponseWriter, _ *http.Request) {
	a.bridge.Events().TriggerRefresh()
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}

func RunServer(ctx context.Context, server *http.Server, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil {
			logger.Error("http server failed", "err", err)
			return err
		}
		return nil
	}
}
