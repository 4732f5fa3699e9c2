// Package bridge wires the request layer, the token source, the typed
// controllers and the event stream into one client for an Afero-hosted IoT
// account. Every bridge instance owns its own registries, so independent
// bridges can run side by side.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Expl0dingBanana/aferobridge/internal/afero"
	"github.com/Expl0dingBanana/aferobridge/internal/auth"
	"github.com/Expl0dingBanana/aferobridge/internal/controller"
	"github.com/Expl0dingBanana/aferobridge/internal/events"
	"github.com/Expl0dingBanana/aferobridge/internal/model"
)

const defaultPollingInterval = 30 * time.Second

// Config carries bridge construction settings.
type Config struct {
	// Platform selects the Afero-hosted service ("hubspace", "myko").
	Platform string
	// RefreshToken bootstraps the session. Ignored when TokenSource is set.
	RefreshToken string
	// PollingInterval between inventory polls. Defaults to 30s.
	PollingInterval time.Duration
	// DisplayUnit for temperatures ("C" or "F").
	DisplayUnit model.TemperatureUnit
	// HTTPClient is optional; when nil the bridge owns its transport and
	// releases it on Close.
	HTTPClient *http.Client
	// TokenSource overrides the built-in refresh-grant auth. Used by tests.
	TokenSource afero.TokenSource
	Logger      *slog.Logger
}

// Bridge is the public surface of the client.
type Bridge struct {
	logger *slog.Logger
	info   afero.ClientInfo
	client *afero.Client
	auth   *auth.Auth // nil when a TokenSource was injected
	stream *events.Stream

	devices     *controller.DeviceController
	lights      *controller.LightController
	fans        *controller.FanController
	locks       *controller.LockController
	switches    *controller.SwitchController
	thermostats *controller.ThermostatController
	controllers []controller.Controller

	mu        sync.Mutex
	registry  map[string]controller.Controller
	accountID string

	unsubscribe func()
	closeOnce   sync.Once
}

// New builds a Bridge. It does not touch the network; call Initialize.
func New(cfg Config) (*Bridge, error) {
	info, ok := afero.Clients[cfg.Platform]
	if !ok {
		return nil, fmt.Errorf("unknown afero platform %q", cfg.Platform)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.PollingInterval
	if interval <= 0 {
		interval = defaultPollingInterval
	}

	b := &Bridge{
		logger:   logger.With("component", "bridge"),
		info:     info,
		registry: map[string]controller.Controller{},
	}

	tokens := cfg.TokenSource
	if tokens == nil {
		b.auth = auth.New(info, cfg.RefreshToken, cfg.HTTPClient).
			WithLogger(logger.With("component", "auth"))
		tokens = b.auth
	}
	b.client = afero.NewClient(info, tokens, cfg.HTTPClient).
		WithLogger(logger.With("component", "client"))
	b.client.AddSecret(cfg.RefreshToken)

	b.stream = events.NewStream(b, interval, logger.With("component", "events"))
	b.client.OnInvalidAuth(b.stream.EmitInvalidAuth)

	b.devices = controller.NewDeviceController(logger)
	b.lights = controller.NewLightController(logger)
	b.fans = controller.NewFanController(logger)
	b.locks = controller.NewLockController(logger)
	b.switches = controller.NewSwitchController(logger)
	b.thermostats = controller.NewThermostatController(logger, cfg.DisplayUnit)
	// Claim order: specific kinds first, the generic parent tracker last.
	b.controllers = []controller.Controller{
		b.lights, b.fans, b.locks, b.switches, b.thermostats, b.devices,
	}
	for _, c := range b.controllers {
		if splitter, ok := c.(controller.Splitter); ok {
			b.stream.RegisterSplit(splitter.SplitDevice)
		}
	}
	b.unsubscribe = b.stream.Subscribe(b.routeEvent,
		events.ResourceAdded, events.ResourceUpdated, events.ResourceVersion, events.ResourceDeleted)
	return b, nil
}

// Events exposes the underlying stream.
func (b *Bridge) Events() *events.Stream { return b.stream }

// Devices returns the top-level device controller.
func (b *Bridge) Devices() *controller.DeviceController { return b.devices }

// Lights returns the light controller.
func (b *Bridge) Lights() *controller.LightController { return b.lights }

// Fans returns the fan controller.
func (b *Bridge) Fans() *controller.FanController { return b.fans }

// Locks returns the lock controller.
func (b *Bridge) Locks() *controller.LockController { return b.locks }

// Switches returns the switch controller.
func (b *Bridge) Switches() *controller.SwitchController { return b.switches }

// Thermostats returns the thermostat controller.
func (b *Bridge) Thermostats() *controller.ThermostatController { return b.thermostats }

// Subscribe registers a callback for stream events and returns its
// unsubscribe function.
func (b *Bridge) Subscribe(cb events.Callback, filter ...events.EventType) func() {
	return b.stream.Subscribe(cb, filter...)
}

// RefreshToken returns the session refresh token for persistence, or ""
// when a custom token source is in use.
func (b *Bridge) RefreshToken() string {
	if b.auth == nil {
		return ""
	}
	return b.auth.RefreshToken()
}

// SetTokenData seeds session material restored from storage.
func (b *Bridge) SetTokenData(data auth.TokenData) {
	if b.auth != nil {
		b.auth.SetTokenData(data)
	}
}

// TrackedDevices lists every device id currently claimed by a controller.
func (b *Bridge) TrackedDevices() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]string, 0, len(b.registry))
	for id := range b.registry {
		ids = append(ids, id)
	}
	return ids
}

// AddJob tracks an ad-hoc unit of work against the quiescence barrier.
func (b *Bridge) AddJob(fn func()) {
	b.stream.Tracker().Go(fn)
}

// BlockUntilDone waits until all tracked work, including work spawned by
// tracked work, has finished.
func (b *Bridge) BlockUntilDone(ctx context.Context) error {
	return b.stream.BlockUntilDone(ctx)
}

// Initialize resolves the account id, performs the discovery poll and starts
// the recurring poll.
func (b *Bridge) Initialize(ctx context.Context) error {
	if _, err := b.AccountID(ctx); err != nil {
		return err
	}
	b.stream.Initialize(ctx)
	return nil
}

// Close stops polling, drops all subscriptions and releases the transport
// if the bridge owns it.
func (b *Bridge) Close() {
	b.closeOnce.Do(func() {
		b.unsubscribe()
		b.stream.Stop()
		b.client.Close()
		b.logger.Info("connection to bridge closed")
	})
}

// AccountID resolves and caches the account id bound to the credentials.
func (b *Bridge) AccountID(ctx context.Context) (string, error) {
	b.mu.Lock()
	cached := b.accountID
	b.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	resp, err := b.client.Request(ctx, http.MethodGet, b.info.AccountURL(), afero.RequestOptions{})
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", &afero.StatusError{StatusCode: resp.StatusCode, URL: b.info.AccountURL()}
	}
	var payload struct {
		AccountAccess []struct {
			Account struct {
				AccountID string `json:"accountId"`
			} `json:"account"`
		} `json:"accountAccess"`
	}
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return "", fmt.Errorf("decode account response: %w", err)
	}
	if len(payload.AccountAccess) == 0 || payload.AccountAccess[0].Account.AccountID == "" {
		return "", fmt.Errorf("account response missing account id")
	}
	id := payload.AccountAccess[0].Account.AccountID
	b.client.AddSecret(id)
	b.mu.Lock()
	b.accountID = id
	b.mu.Unlock()
	return id, nil
}

// FetchData retrieves the full raw device inventory for the account. It
// implements events.Fetcher.
func (b *Bridge) FetchData(ctx context.Context) ([]json.RawMessage, error) {
	accountID, err := b.AccountID(ctx)
	if err != nil {
		return nil, err
	}
	dataURL := b.info.DataURL(accountID)
	resp, err := b.client.Request(ctx, http.MethodGet, dataURL, afero.RequestOptions{
		Query: url.Values{"expansions": {"state"}},
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &afero.StatusError{StatusCode: resp.StatusCode, URL: dataURL}
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(resp.Body, &raw); err != nil {
		return nil, fmt.Errorf("inventory response is not a list: %w", err)
	}
	return raw, nil
}

// SendServiceRequest pushes state values to a device and applies the
// acknowledged states to its typed model. Unknown device ids fail with
// afero.ErrDeviceNotFound.
func (b *Bridge) SendServiceRequest(ctx context.Context, deviceID string, states []afero.State) error {
	b.mu.Lock()
	owner := b.registry[deviceID]
	b.mu.Unlock()
	if owner == nil {
		return fmt.Errorf("%w: %s", afero.ErrDeviceNotFound, deviceID)
	}

	accountID, err := b.AccountID(ctx)
	if err != nil {
		return err
	}
	// Synthetic split resources route their updates to the origin device.
	targetID := deviceID
	if dev, ok := b.stream.CachedDevice(deviceID); ok && dev.SplitID != "" {
		targetID = strings.TrimSuffix(deviceID, "-"+dev.SplitID)
	}

	body, err := json.Marshal(map[string]any{
		"metadeviceId": targetID,
		"values":       states,
	})
	if err != nil {
		return err
	}
	stateURL := b.info.StateURL(accountID, targetID)
	resp, err := b.client.Request(ctx, http.MethodPut, stateURL, afero.RequestOptions{
		Headers: map[string]string{"Content-Type": "application/json; charset=utf-8"},
		Body:    body,
	})
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return &afero.StatusError{StatusCode: resp.StatusCode, URL: stateURL}
	}

	var ack struct {
		Values []afero.State `json:"values"`
	}
	if err := json.Unmarshal(resp.Body, &ack); err != nil {
		return fmt.Errorf("decode state response: %w", err)
	}
	if len(ack.Values) == 0 {
		return nil
	}
	update := &afero.Device{ID: deviceID, States: ack.Values}
	changed, err := owner.UpdateElem(update)
	if err != nil {
		return err
	}
	b.stream.Emit(events.Event{
		Type:       events.UpdateResponse,
		DeviceID:   deviceID,
		Changed:    changed,
		ReceivedAt: time.Now().UTC(),
	})
	return nil
}

// routeEvent feeds resource events to the controllers. It runs on the
// bridge's own subscription worker, so registry mutation is serialized.
func (b *Bridge) routeEvent(ev events.Event) {
	switch ev.Type {
	case events.ResourceAdded:
		b.claimDevice(ev.Device)
	case events.ResourceUpdated, events.ResourceVersion:
		b.updateDevice(ev)
	case events.ResourceDeleted:
		b.mu.Lock()
		owner := b.registry[ev.DeviceID]
		delete(b.registry, ev.DeviceID)
		b.mu.Unlock()
		if owner != nil {
			owner.RemoveElem(ev.DeviceID)
		}
	}
}

// claimDevice broadcasts a new device to every controller; the first whose
// acceptance predicate matches becomes its owner.
func (b *Bridge) claimDevice(dev *afero.Device) {
	if dev == nil {
		return
	}
	for _, c := range b.controllers {
		if !c.Matches(dev) {
			continue
		}
		if err := c.InitializeElem(dev); err != nil {
			b.logger.Warn("controller rejected device", "kind", c.Kind(), "device", dev.ID, "err", err)
			return
		}
		b.mu.Lock()
		b.registry[dev.ID] = c
		b.mu.Unlock()
		return
	}
	b.logger.Debug("no controller claimed device", "device", dev.ID, "class", dev.DeviceClass)
}

func (b *Bridge) updateDevice(ev events.Event) {
	b.mu.Lock()
	owner := b.registry[ev.DeviceID]
	b.mu.Unlock()
	if owner == nil {
		// Update for an unclaimed device; treat as late discovery.
		b.claimDevice(ev.Device)
		return
	}
	changed, err := owner.UpdateElem(ev.Device)
	if err != nil {
		b.logger.Warn("update failed", "device", ev.DeviceID, "err", err)
		return
	}
	if len(changed) == 0 {
		return
	}
	b.stream.Emit(events.Event{
		Type:       events.UpdateResponse,
		DeviceID:   ev.DeviceID,
		Changed:    changed,
		ReceivedAt: time.Now().UTC(),
	})
}
