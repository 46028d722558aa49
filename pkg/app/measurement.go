package app

import (
	"encoding/json"
	"math"
	"sync"
	"time"

	"tsic/pkg/mqtt"
	"tsic/pkg/tsic"

	"github.com/womat/debug"
)

// payload is the mqtt message of a measurement.
type payload struct {
	DegreeCelsius float64   `json:"degreeCelsius"`
	TimeStamp     time.Time `json:"timestamp"`
	Sensor        string    `json:"sensor"`
	Gpio          int       `json:"gpio"`
}

// publisher sends a measurement to the mqtt broker if the interval has elapsed
// or the temperature has changed by deltaKelvin since the last sent measurement.
type publisher struct {
	topic       string
	sensor      string
	gpio        int
	interval    time.Duration
	deltaKelvin float64
	send        func(mqtt.Message)

	mu   sync.Mutex
	last tsic.Measurement
}

// consumers returns the consumers of the temperature channel.
func (app *App) consumers() []tsic.Consumer {
	c := app.config
	return []tsic.Consumer{
		tsic.ConsumerFunc(func(m tsic.Measurement) {
			debug.InfoLog.Printf("gpio %d: %v", c.Gpio, m)
		}),
		&publisher{
			topic:       c.MQTT.Topic,
			sensor:      c.TsicType.Name,
			gpio:        c.Gpio,
			interval:    c.MQTT.Interval,
			deltaKelvin: c.MQTT.DeltaKelvin,
			send:        app.mqtt.Publish,
		},
	}
}

// OnMeasurement checks the measurement by deltaT and deltaK and sends it if a delta value is exceeded.
func (p *publisher) OnMeasurement(m tsic.Measurement) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.due(m) {
		return
	}

	b, err := json.Marshal(payload{
		DegreeCelsius: round(m.DegreeCelsius, 3),
		TimeStamp:     m.Time,
		Sensor:        p.sensor,
		Gpio:          p.gpio,
	})
	if err != nil {
		debug.ErrorLog.Printf("marshal measurement: %v", err)
		return
	}

	debug.TraceLog.Printf("prepare mqtt message %v %s", p.topic, b)
	p.send(mqtt.Message{
		Qos:      0,
		Retained: true,
		Topic:    p.topic,
		Payload:  b,
	})
	p.last = m
}

func (p *publisher) due(m tsic.Measurement) bool {
	if p.last.IsUndefined() {
		return true
	}

	deltaT := m.Time.Sub(p.last.Time)
	deltaK := math.Abs(m.DegreeCelsius - p.last.DegreeCelsius)
	return deltaT >= p.interval || deltaK >= p.deltaKelvin
}

// round rounds v to n decimal places.
func round(v float64, n int) float64 {
	p := math.Pow10(n)
	return math.Round(v*p) / p
}
