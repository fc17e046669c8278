package event

import (
	"encoding/json"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// MQTTBridge republishes bus events to an MQTT broker as JSON payloads on
// topic <prefix>/<event>. Publishing is QoS 0 fire-and-forget; broker
// outages drop events rather than back-pressuring the bus.
type MQTTBridge struct {
	client mqtt.Client
	prefix string
}

func NewMQTTBridge(broker, clientID, prefix string) (*MQTTBridge, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.WithError(err).Warn("mqtt connection lost")
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, errors.Wrap(token.Error(), "connect mqtt broker")
	}

	return &MQTTBridge{client: client, prefix: prefix}, nil
}

// Attach subscribes the bridge to every event on the bus.
func (m *MQTTBridge) Attach(bus *Bus) {
	bus.SubscribeAll(m.handle)
}

func (m *MQTTBridge) handle(event string, data Payload) {
	body, err := json.Marshal(data)
	if err != nil {
		log.WithError(err).WithField("event", event).Warn("mqtt payload encode failed")
		return
	}
	m.client.Publish(m.prefix+"/"+event, 0, false, body)
}

func (m *MQTTBridge) Close() {
	m.client.Disconnect(250)
}
