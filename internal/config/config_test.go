package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/awaistahir/spotswitch/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
timezone: Europe/Helsinki
store:
  path: /tmp/spotswitch-test.db
schedules:
  - name: Boiler
    device_id: "17"
    low_limit: 1.5
    min_on_hours: 4
    max_on_hours: 8
    min_consecutive_on_hours: 2
  - name: Sauna
    device_id: "27"
    high_limit: 20
    min_on_hours: 1
    max_on_hours: 1
email:
  server: smtp.example.com
  from: pi@example.com
  to: [me@example.com]
mqtt:
  broker: tcp://localhost:1883
  qos: 1
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "Europe/Helsinki", cfg.Location().String())
	assert.Equal(t, 16, cfg.TomorrowAfterHour)
	assert.Equal(t, "fi", cfg.Prices.Area)
	assert.Equal(t, 10*time.Second, cfg.Prices.Timeout)
	assert.Equal(t, 23, cfg.Prices.MinEntries)
	assert.Equal(t, 5*time.Minute, cfg.Daemon.Interval)

	require.Len(t, cfg.Schedules, 2)
	boiler := cfg.Schedules[0]
	assert.Equal(t, "17", boiler.DeviceID)
	require.NotNil(t, boiler.LowLimit)
	assert.Equal(t, 1.5, *boiler.LowLimit)
	assert.Nil(t, boiler.HighLimit)
	require.NotNil(t, boiler.MinConsecutiveOnHours)
	assert.Equal(t, 2, *boiler.MinConsecutiveOnHours)
	assert.Nil(t, cfg.Schedules[1].MinConsecutiveOnHours)

	require.NotNil(t, cfg.Email)
	assert.Equal(t, 587, cfg.Email.Port)
	require.NotNil(t, cfg.MQTT)
	assert.Equal(t, "spotswitch", cfg.MQTT.TopicPrefix)
	assert.Equal(t, byte(1), cfg.MQTT.QoS)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SPOTSWITCH_PRICES_AREA", "ee")
	t.Setenv("SPOTSWITCH_TOMORROW_AFTER_HOUR", "14")

	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	assert.Equal(t, "ee", cfg.Prices.Area)
	assert.Equal(t, 14, cfg.TomorrowAfterHour)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "missing device id",
			body: "schedules:\n  - name: Boiler\n    max_on_hours: 2\n",
		},
		{
			name: "duplicate device",
			body: "schedules:\n  - {name: A, device_id: \"1\"}\n  - {name: B, device_id: \"1\"}\n",
		},
		{
			name: "unknown timezone",
			body: "timezone: Mars/Olympus\n",
		},
		{
			name: "incomplete email",
			body: "email:\n  server: smtp.example.com\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}

	_, err := Load(writeConfig(t, "schedules:\n  - name: Boiler\n"))
	assert.ErrorIs(t, err, engine.ErrInvalidConstraints)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
