// Package mqtt publishes messages to a mqtt broker.
package mqtt

import (
	"fmt"
	"sync"
	"time"

	mqttlib "github.com/eclipse/paho.mqtt.golang"
	"github.com/womat/debug"
)

const (
	// quiesce is the specified number of milliseconds to wait for existing work to be completed.
	quiesce = 250
	// connectTimeout limits a (re)connect to the broker.
	connectTimeout = 10 * time.Second
	// queueSize is the number of messages waiting for Service.
	queueSize = 16
)

// Handler contains the handler of the mqtt broker.
type Handler struct {
	handler mqttlib.Client
	// C is the channel to service the mqtt message
	// sending a message to channel C will send the message.
	C chan Message

	// quit stops accepting messages by Publish
	quit chan struct{}
	once sync.Once
}

// Message contains the properties of the mqtt message.
type Message struct {
	Topic    string
	Payload  []byte
	Qos      byte
	Retained bool
}

// New generate a new mqtt broker client.
func New() *Handler {
	return &Handler{
		C:    make(chan Message, queueSize),
		quit: make(chan struct{}),
	}
}

// Connect connects to the mqtt broker.
// If no broker is defined, no mqtt message are send.
func (m *Handler) Connect(broker, clientID string) error {
	if broker == "" {
		return nil
	}

	opts := mqttlib.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetConnectTimeout(connectTimeout).
		SetAutoReconnect(true)
	m.handler = mqttlib.NewClient(opts)
	return m.ReConnect()
}

// ReConnect reconnects to the defined mqtt broker.
func (m *Handler) ReConnect() error {
	t := m.handler.Connect()
	if !t.WaitTimeout(connectTimeout) {
		return fmt.Errorf("connect to mqtt broker: timeout after %v", connectTimeout)
	}
	return t.Error()
}

// Publish queues msg for Service. The message is dropped if the queue is full or
// the handler is disconnected, so Publish never blocks the caller.
func (m *Handler) Publish(msg Message) {
	select {
	case <-m.quit:
		return
	default:
	}

	select {
	case m.C <- msg:
	case <-m.quit:
	default:
		debug.ErrorLog.Printf("mqtt queue full, drop message to topic %v", msg.Topic)
	}
}

// Disconnect will end the connection to the broker.
func (m *Handler) Disconnect() error {
	m.once.Do(func() { close(m.quit) })

	if m.handler == nil {
		return nil
	}

	m.handler.Disconnect(quiesce)
	return nil
}

// Service listen to a message on the channel C and send the message to mqtt until Disconnect.
// If no handler or topic is defined, the message will be ignored.
func (m *Handler) Service() {
	for {
		select {
		case <-m.quit:
			return
		case d := <-m.C:
			m.publish(d)
		}
	}
}

func (m *Handler) publish(msg Message) {
	if m.handler == nil || msg.Topic == "" {
		return
	}

	if !m.handler.IsConnected() {
		debug.DebugLog.Printf("mqtt broker isn't connected, reconnect it")

		if err := m.ReConnect(); err != nil {
			debug.ErrorLog.Printf("can't reconnect to mqtt broker %v", err)
			return
		}
	}

	debug.DebugLog.Printf("publishing %v bytes to topic %v", len(msg.Payload), msg.Topic)
	t := m.handler.Publish(msg.Topic, msg.Qos, msg.Retained, msg.Payload)

	// the asynchronous nature of this library makes it easy to forget to check for errors.
	go func() {
		<-t.Done()
		if err := t.Error(); err != nil {
			debug.ErrorLog.Printf("publishing topic %v: %v", msg.Topic, err)
		}
	}()
}
