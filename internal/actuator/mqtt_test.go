package actuator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/awaistahir/spotswitch/internal/config"
	"github.com/awaistahir/spotswitch/internal/logger"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeToken struct {
	err  error
	done chan struct{}
}

func newFakeToken(err error, complete bool) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	if complete {
		close(t.done)
	}
	return t
}

func (t *fakeToken) Wait() bool                     { <-t.done; return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	topic   string
	qos     byte
	retain  bool
	payload interface{}
}

type fakeClient struct {
	opts         *paho.ClientOptions
	connectErr   error
	publishErr   error
	hang         bool
	published    []published
	disconnected bool
}

func (c *fakeClient) Connect() paho.Token { return newFakeToken(c.connectErr, true) }

func (c *fakeClient) Disconnect(uint) { c.disconnected = true }

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.published = append(c.published, published{topic, qos, retained, payload})
	return newFakeToken(c.publishErr, !c.hang)
}

func withFakeClient(t *testing.T, fc *fakeClient) {
	t.Helper()
	orig := newMQTTClient
	newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
		fc.opts = opts
		return fc
	}
	t.Cleanup(func() { newMQTTClient = orig })
}

func TestMQTTOutputPublishes(t *testing.T) {
	fc := &fakeClient{}
	withFakeClient(t, fc)

	out, err := NewMQTTOutput(config.MQTTConfig{
		Broker:      "tcp://localhost:1883",
		TopicPrefix: "home/relays",
		QoS:         1,
		Retain:      true,
	}, logger.Nop{})
	require.NoError(t, err)

	require.NoError(t, out.Set(context.Background(), "17", true))
	require.NoError(t, out.Set(context.Background(), "27", false))
	require.NoError(t, out.Close())

	assert.Equal(t, []published{
		{"home/relays/17/set", 1, true, "ON"},
		{"home/relays/27/set", 1, true, "OFF"},
	}, fc.published)
	assert.True(t, fc.disconnected)
	assert.True(t, strings.HasPrefix(fc.opts.ClientID, "spotswitch-"))
}

func TestMQTTOutputUsesConfiguredClientID(t *testing.T) {
	fc := &fakeClient{}
	withFakeClient(t, fc)

	_, err := NewMQTTOutput(config.MQTTConfig{Broker: "tcp://b:1883", ClientID: "garage", Username: "u", Password: "p"}, logger.Nop{})
	require.NoError(t, err)
	assert.Equal(t, "garage", fc.opts.ClientID)
	assert.Equal(t, "u", fc.opts.Username)
}

func TestMQTTOutputConnectError(t *testing.T) {
	boom := errors.New("refused")
	withFakeClient(t, &fakeClient{connectErr: boom})

	_, err := NewMQTTOutput(config.MQTTConfig{Broker: "tcp://b:1883"}, logger.Nop{})
	require.ErrorIs(t, err, boom)
}

func TestMQTTOutputPublishError(t *testing.T) {
	boom := errors.New("not authorized")
	withFakeClient(t, &fakeClient{publishErr: boom})

	out, err := NewMQTTOutput(config.MQTTConfig{Broker: "tcp://b:1883", TopicPrefix: "p"}, logger.Nop{})
	require.NoError(t, err)
	require.ErrorIs(t, out.Set(context.Background(), "17", true), boom)
}

func TestMQTTOutputHonoursContext(t *testing.T) {
	withFakeClient(t, &fakeClient{hang: true})

	out, err := NewMQTTOutput(config.MQTTConfig{Broker: "tcp://b:1883", TopicPrefix: "p"}, logger.Nop{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, out.Set(ctx, "17", true), context.Canceled)
}
