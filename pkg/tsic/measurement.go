package tsic

import (
	"encoding/json"
	"fmt"
	"time"
)

// Measurement is a temperature reading.
type Measurement struct {
	DegreeCelsius float64
	Time          time.Time
	// Seq is the number of the reading since the channel was created.
	Seq uint64
}

// Undefined is the measurement if no reading is available.
var Undefined = Measurement{}

// IsUndefined reports whether m holds no reading.
func (m Measurement) IsUndefined() bool {
	return m.Seq == 0
}

func (m Measurement) String() string {
	if m.IsUndefined() {
		return "Undefined"
	}
	return fmt.Sprintf("%.2f°C at %s", m.DegreeCelsius, m.Time.Format("2006-01-02 15:04:05.000"))
}

// MarshalJSON writes null values for an undefined measurement.
func (m Measurement) MarshalJSON() ([]byte, error) {
	v := struct {
		DegreeCelsius *float64   `json:"degreeCelsius"`
		Time          *time.Time `json:"timestamp"`
	}{}

	if !m.IsUndefined() {
		v.DegreeCelsius = &m.DegreeCelsius
		v.Time = &m.Time
	}
	return json.Marshal(v)
}

// Consumer receives new measurements.
type Consumer interface {
	OnMeasurement(Measurement)
}

// ConsumerFunc is an adapter to use ordinary functions as Consumer.
type ConsumerFunc func(Measurement)

// OnMeasurement calls f(m).
func (f ConsumerFunc) OnMeasurement(m Measurement) {
	f(m)
}
