package actuator

import (
	"context"
	"fmt"
	"time"

	"github.com/awaistahir/spotswitch/internal/config"
	"github.com/awaistahir/spotswitch/internal/logger"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const publishTimeout = 10 * time.Second

type pahoClient interface {
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// MQTTOutput publishes ON/OFF to {prefix}/{device}/set for a relay bridge to act on
type MQTTOutput struct {
	cli    pahoClient
	prefix string
	qos    byte
	retain bool
}

// NewMQTTOutput connects to the broker in cfg
func NewMQTTOutput(cfg config.MQTTConfig, log logger.Logger) (*MQTTOutput, error) {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "spotswitch-" + uuid.NewString()
	}

	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(clientID)
	opts.AutoReconnect = true
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.OnConnect = func(paho.Client) {
		log.Infof("MQTT connected to %s", cfg.Broker)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("MQTT connection lost: %v", err)
	}

	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connecting to %s: %w", cfg.Broker, token.Error())
	}
	return &MQTTOutput{cli: c, prefix: cfg.TopicPrefix, qos: cfg.QoS, retain: cfg.Retain}, nil
}

func (o *MQTTOutput) topic(deviceID string) string {
	return fmt.Sprintf("%s/%s/set", o.prefix, deviceID)
}

func (o *MQTTOutput) Set(ctx context.Context, deviceID string, on bool) error {
	token := o.cli.Publish(o.topic(deviceID), o.qos, o.retain, StateLabel(on))
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(publishTimeout):
		return fmt.Errorf("publishing to %s: timed out", o.topic(deviceID))
	}
	return token.Error()
}

func (o *MQTTOutput) Close() error {
	o.cli.Disconnect(250)
	return nil
}
