package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Expl0dingBanana/aferobridge/internal/afero"
	"github.com/Expl0dingBanana/aferobridge/internal/auth"
	"github.com/Expl0dingBanana/aferobridge/internal/events"
	"github.com/Expl0dingBanana/aferobridge/internal/model"
)

// rewriteTransport sends every request to the local test server regardless
// of the platform host.
type rewriteTransport struct{ target *url.URL }

func (rt rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = rt.target.Scheme
	req.URL.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(req)
}

// apiServer fakes the account and inventory endpoints.
type apiServer struct {
	mu        sync.Mutex
	inventory []json.RawMessage
	statePuts []string // request paths of state updates
	stateResp string
}

func (a *apiServer) setInventory(raw ...json.RawMessage) {
	a.mu.Lock()
	a.inventory = raw
	a.mu.Unlock()
}

func (a *apiServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/v1/users/me":
			fmt.Fprint(w, `{"accountAccess":[{"account":{"accountId":"acct-1"}}]}`)
		case strings.HasSuffix(r.URL.Path, "/state") && r.Method == http.MethodPut:
			a.mu.Lock()
			a.statePuts = append(a.statePuts, r.URL.Path)
			resp := a.stateResp
			a.mu.Unlock()
			if resp == "" {
				resp = `{"values":[]}`
			}
			fmt.Fprint(w, resp)
		case strings.HasSuffix(r.URL.Path, "/metadevices"):
			a.mu.Lock()
			payload, _ := json.Marshal(a.inventory)
			a.mu.Unlock()
			_, _ = w.Write(payload)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func newTestBridge(t *testing.T, api *apiServer) *Bridge {
	t.Helper()
	server := httptest.NewServer(api.handler())
	t.Cleanup(server.Close)
	target, err := url.Parse(server.URL)
	if err != nil {
		t.Fatalf("parse server url: %v", err)
	}

	b, err := New(Config{
		Platform:        "hubspace",
		PollingInterval: time.Hour,
		DisplayUnit:     model.Celsius,
		HTTPClient:      &http.Client{Transport: rewriteTransport{target: target}, Timeout: time.Second},
		TokenSource:     auth.Static("test-token"),
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	t.Cleanup(b.Close)
	return b
}

func rawLight(id, power string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{
		"id": %q,
		"typeId": "metadevice.device",
		"friendlyName": "light %s",
		"description": {"device": {"deviceClass": "light"}},
		"state": {"values": [
			{"functionClass": "power", "functionInstance": "light-power", "value": %q}
		]}
	}`, id, id, power))
}

func rawFan(id string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{
		"id": %q,
		"typeId": "metadevice.device",
		"description": {"device": {"deviceClass": "ceiling-fan"}},
		"state": {"values": [
			{"functionClass": "power", "functionInstance": "fan-power", "value": "on"},
			{"functionClass": "fan-speed", "functionInstance": "fan-speed", "value": "fan-speed-6-050"}
		]}
	}`, id))
}

func rawLock(id string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{
		"id": %q,
		"typeId": "metadevice.device",
		"description": {"device": {"deviceClass": "door-lock"}},
		"state": {"values": [{"functionClass": "lock-control", "value": "locked"}]}
	}`, id))
}

func flush(t *testing.T, b *Bridge) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := b.BlockUntilDone(ctx); err != nil {
		t.Fatalf("BlockUntilDone returned error: %v", err)
	}
}

func TestNewRejectsUnknownPlatform(t *testing.T) {
	if _, err := New(Config{Platform: "nonesuch"}); err == nil {
		t.Fatalf("expected error for unknown platform")
	}
}

func TestInitializeClaimsDevices(t *testing.T) {
	api := &apiServer{}
	api.setInventory(rawLight("light-1", "on"), rawLock("lock-1"), rawFan("fan-1"))
	b := newTestBridge(t, api)

	if err := b.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize returned error: %v", err)
	}
	flush(t, b)

	if got := b.Lights().IDs(); len(got) != 1 || got[0] != "light-1" {
		t.Fatalf("unexpected lights %v", got)
	}
	if got := b.Locks().IDs(); len(got) != 1 || got[0] != "lock-1" {
		t.Fatalf("unexpected locks %v", got)
	}
	if got := b.Fans().IDs(); len(got) != 1 || got[0] != "fan-1" {
		t.Fatalf("unexpected fans %v", got)
	}
	light, ok := b.Lights().Get("light-1")
	if !ok || !light.On {
		t.Fatalf("unexpected light state %+v", light)
	}
	fan, ok := b.Fans().Get("fan-1")
	if !ok || !fan.On || fan.SpeedPercent != 50 {
		t.Fatalf("unexpected fan state %+v", fan)
	}
	if got := len(b.TrackedDevices()); got != 3 {
		t.Fatalf("expected 3 tracked devices, got %d", got)
	}
}

func TestUpdateFlowsToController(t *testing.T) {
	api := &apiServer{}
	api.setInventory(rawLight("light-1", "on"))
	b := newTestBridge(t, api)
	if err := b.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize returned error: %v", err)
	}
	flush(t, b)

	var (
		mu        sync.Mutex
		responses []events.Event
	)
	defer b.Subscribe(func(ev events.Event) {
		mu.Lock()
		responses = append(responses, ev)
		mu.Unlock()
	}, events.UpdateResponse)()

	api.setInventory(rawLight("light-1", "off"))
	if err := b.Events().PollOnce(context.Background()); err != nil {
		t.Fatalf("PollOnce returned error: %v", err)
	}
	flush(t, b)

	light, _ := b.Lights().Get("light-1")
	if light.On {
		t.Fatalf("expected light to be off after update")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(responses) != 1 || responses[0].DeviceID != "light-1" {
		t.Fatalf("expected one update_response for light-1, got %+v", responses)
	}
	if len(responses[0].Changed) != 1 || responses[0].Changed[0] != "on" {
		t.Fatalf("unexpected changed set %v", responses[0].Changed)
	}
}

func TestDeleteDropsDevice(t *testing.T) {
	api := &apiServer{}
	api.setInventory(rawLight("light-1", "on"))
	b := newTestBridge(t, api)
	if err := b.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize returned error: %v", err)
	}
	flush(t, b)

	api.setInventory()
	if err := b.Events().PollOnce(context.Background()); err != nil {
		t.Fatalf("PollOnce returned error: %v", err)
	}
	flush(t, b)

	if got := b.Lights().IDs(); len(got) != 0 {
		t.Fatalf("expected light to be dropped, got %v", got)
	}
	if got := len(b.TrackedDevices()); got != 0 {
		t.Fatalf("expected empty registry, got %d", got)
	}
}

func TestSendServiceRequestUnknownDevice(t *testing.T) {
	api := &apiServer{}
	b := newTestBridge(t, api)
	err := b.SendServiceRequest(context.Background(), "ghost", []afero.State{
		{FunctionClass: "power", Value: "on"},
	})
	if !errors.Is(err, afero.ErrDeviceNotFound) {
		t.Fatalf("expected ErrDeviceNotFound, got %v", err)
	}
}

func TestSendServiceRequestAppliesAck(t *testing.T) {
	api := &apiServer{
		stateResp: `{"values":[{"functionClass":"power","functionInstance":"light-power","value":"off"}]}`,
	}
	api.setInventory(rawLight("light-1", "on"))
	b := newTestBridge(t, api)
	if err := b.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize returned error: %v", err)
	}
	flush(t, b)

	err := b.SendServiceRequest(context.Background(), "light-1", []afero.State{
		{FunctionClass: "power", FunctionInstance: "light-power", Value: "off"},
	})
	if err != nil {
		t.Fatalf("SendServiceRequest returned error: %v", err)
	}

	light, _ := b.Lights().Get("light-1")
	if light.On {
		t.Fatalf("expected acknowledged state to be applied")
	}
	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.statePuts) != 1 || api.statePuts[0] != "/v1/accounts/acct-1/metadevices/light-1/state" {
		t.Fatalf("unexpected state puts %v", api.statePuts)
	}
}

func TestSendServiceRequestRoutesSplitToOrigin(t *testing.T) {
	hvac := json.RawMessage(`{
		"id": "hvac",
		"typeId": "metadevice.device",
		"description": {"device": {"deviceClass": "thermostat"}},
		"state": {"values": [
			{"functionClass": "available", "value": true},
			{"functionClass": "temperature", "functionInstance": "current-temp", "value": 21.0},
			{"functionClass": "temperature", "functionInstance": "sensor-1", "value": 19.0}
		]}
	}`)
	api := &apiServer{}
	api.setInventory(hvac)
	b := newTestBridge(t, api)
	if err := b.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize returned error: %v", err)
	}
	flush(t, b)

	if got := b.Devices().IDs(); len(got) != 1 || got[0] != "hvac-sensor-1" {
		t.Fatalf("expected synthetic sensor to be tracked, got %v", got)
	}

	err := b.SendServiceRequest(context.Background(), "hvac-sensor-1", []afero.State{
		{FunctionClass: "temperature", FunctionInstance: "sensor-1", Value: 19.5},
	})
	if err != nil {
		t.Fatalf("SendServiceRequest returned error: %v", err)
	}
	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.statePuts) != 1 || api.statePuts[0] != "/v1/accounts/acct-1/metadevices/hvac/state" {
		t.Fatalf("expected update to target the origin device, got %v", api.statePuts)
	}
}
