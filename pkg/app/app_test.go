package app

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tsic/pkg/app/config"
	"tsic/pkg/tsic"
)

// newConfig returns a loaded configuration of an emulated TSic 306 on gpio 17.
func newConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.NewConfig()
	cfg.Flag.Emulate = true
	cfg.Flag.Gpio = 17
	cfg.Emulator.Celsius = 21.5
	cfg.Emulator.IntervalInt = 20
	require.NoError(t, cfg.LoadConfig())
	return cfg
}

func newApp(t *testing.T) *App {
	t.Helper()

	a, err := New(newConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	require.NoError(t, a.init())
	return a
}

func get(t *testing.T, a *App, target string) (int, []byte) {
	t.Helper()

	resp, err := a.web.Test(httptest.NewRequest(http.MethodGet, target, nil), 5000)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

type measurementResponse struct {
	DegreeCelsius *float64   `json:"degreeCelsius"`
	TimeStamp     *time.Time `json:"timestamp"`
}

func TestNewInvalidURL(t *testing.T) {
	cfg := newConfig(t)
	cfg.Webserver.URL = "http://[::1"

	a, err := New(cfg)
	assert.Error(t, err)
	assert.NoError(t, a.Close())
}

func TestVersion(t *testing.T) {
	a := newApp(t)

	status, body := get(t, a, "/version")
	require.Equal(t, http.StatusOK, status)

	var v map[string]string
	require.NoError(t, json.Unmarshal(body, &v))
	assert.Equal(t, MODULE, v["description"])
	assert.Equal(t, VERSION, v["version"])
	assert.Equal(t, "tsic V1.0.10", Version())
}

func TestHealth(t *testing.T) {
	a := newApp(t)

	status, body := get(t, a, "/health")
	require.Equal(t, http.StatusOK, status)

	var h struct {
		Sensor  string
		Gpio    int
		Driver  string
		Started bool
	}
	require.NoError(t, json.Unmarshal(body, &h))
	assert.Equal(t, tsic.TSIC306.Name, h.Sensor)
	assert.Equal(t, 17, h.Gpio)
	assert.Equal(t, "emulator", h.Driver)
	assert.False(t, h.Started)
}

func TestMeasurementUndefined(t *testing.T) {
	a := newApp(t)

	status, body := get(t, a, "/measurement")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"degreeCelsius":null,"timestamp":null}`, string(body))
}

func TestMeasure(t *testing.T) {
	a := newApp(t)

	status, body := get(t, a, "/measure?timeout=2s")
	require.Equal(t, http.StatusOK, status)

	var m measurementResponse
	require.NoError(t, json.Unmarshal(body, &m))
	require.NotNil(t, m.DegreeCelsius)
	require.NotNil(t, m.TimeStamp)
	assert.InDelta(t, 21.5, *m.DegreeCelsius, 0.1)

	// the channel is stopped again, the measurement is kept
	assert.False(t, a.tsic.IsStarted())
	status, body = get(t, a, "/measurement")
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &m))
	require.NotNil(t, m.DegreeCelsius)
	assert.InDelta(t, 21.5, *m.DegreeCelsius, 0.1)
}

func TestMeasureInvalidTimeout(t *testing.T) {
	a := newApp(t)

	for _, q := range []string{"abc", "-1s", "0", "1h"} {
		status, _ := get(t, a, "/measure?timeout="+q)
		assert.Equal(t, http.StatusBadRequest, status, q)
	}
}

func TestMeasureTimeout(t *testing.T) {
	cfg := newConfig(t)
	cfg.Emulator.Interval = time.Hour

	a, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	require.NoError(t, a.init())

	status, body := get(t, a, "/measure?timeout=50ms")
	assert.Equal(t, http.StatusGatewayTimeout, status)
	assert.JSONEq(t, `{"degreeCelsius":null,"timestamp":null}`, string(body))
}

func TestDisabledWebservice(t *testing.T) {
	cfg := newConfig(t)
	cfg.Webserver.Webservices["measure"] = false

	a, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	require.NoError(t, a.init())

	status, _ := get(t, a, "/measure")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestMeasureOnce(t *testing.T) {
	a, err := New(newConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	m, err := a.MeasureOnce(2 * time.Second)
	require.NoError(t, err)
	assert.InDelta(t, 21.5, m.DegreeCelsius, 0.1)
}

func TestMeasureOnceUnknownDriver(t *testing.T) {
	cfg := newConfig(t)
	cfg.Driver = "onewire"

	a, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	m, err := a.MeasureOnce(time.Second)
	assert.Error(t, err)
	assert.True(t, m.IsUndefined())
}

func TestConsumersPublish(t *testing.T) {
	a := newApp(t)
	require.NoError(t, a.tsic.Start(a.consumers()...))

	select {
	case msg := <-a.mqtt.C:
		assert.Equal(t, "/test/tsic", msg.Topic)
		assert.True(t, msg.Retained)

		var p payload
		require.NoError(t, json.Unmarshal(msg.Payload, &p))
		assert.InDelta(t, 21.5, p.DegreeCelsius, 0.1)
		assert.Equal(t, tsic.TSIC306.Name, p.Sensor)
		assert.Equal(t, 17, p.Gpio)
	case <-time.After(2 * time.Second):
		t.Fatal("no mqtt message published")
	}
}

func TestCloseStopsEmulator(t *testing.T) {
	a, err := New(newConfig(t))
	require.NoError(t, err)
	require.NoError(t, a.init())
	require.NoError(t, a.tsic.Start())

	require.NoError(t, a.Close())
	assert.False(t, a.tsic.IsStarted())
	assert.False(t, a.gpio.Connected())
	assert.NoError(t, a.Close())
}
