package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"ShrimpCast/pkg/kafka"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	assert.Equal(t, "development", c.Environment)
	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, 10*time.Second, c.Server.ReadTimeout)
	assert.Equal(t, "memory", c.Store.Backend)
	assert.Equal(t, 90, c.Forecast.LookbackDays)
	assert.InDelta(t, 0.3, c.Forecast.EMAAlpha, 1e-12)
	assert.InDelta(t, 0.65, c.Forecast.HeadlessRatio, 1e-12)
	assert.InDelta(t, 0.15, c.Purchase.RecommendedMargin, 1e-12)
	assert.Equal(t, kafka.DefaultTopics(), c.Kafka.Topics)
	assert.Equal(t, -1, c.Kafka.RequiredAcks)
	assert.NoError(t, c.Validate())
}

func TestParseOverridesDefaults(t *testing.T) {
	c, err := Parse([]byte(`
environment: test
store:
  backend: sqlite
  sqlite_path: /tmp/x.db
purchase:
  minimum_margin: 0.2
  recommended_margin: 0.25
consolidation:
  source_weights:
    exporter: 1.0
`))
	require.NoError(t, err)
	assert.Equal(t, "test", c.Environment)
	assert.Equal(t, "sqlite", c.Store.Backend)
	assert.InDelta(t, 0.2, c.Purchase.MinimumMargin, 1e-12)
	assert.Equal(t, map[string]float64{"exporter": 1.0}, c.Consolidation.SourceWeights)
	assert.Equal(t, 8080, c.Server.Port)
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"backend":  "store:\n  backend: postgres\n",
		"margins":  "purchase:\n  minimum_margin: 0.3\n  recommended_margin: 0.2\n",
		"weight":   "consolidation:\n  source_weights:\n    fao: 1.5\n",
		"kafka":    "kafka:\n  enabled: true\n",
		"loglevel": "log:\n  level: chatty\n",
		"loop":     "kafka:\n  topics:\n    source_quotes: shrimpcast.price.consolidated\n",
	}
	for name, doc := range cases {
		_, err := Parse([]byte(doc))
		assert.Error(t, err, name)
	}
}

func TestLoadWithEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("environment: staging\n"), 0o600))

	t.Setenv("STORE_BACKEND", "sqlite")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")

	c, err := LoadWithEnv(path)
	require.NoError(t, err)
	assert.Equal(t, "staging", c.Environment)
	assert.Equal(t, "sqlite", c.Store.Backend)
	assert.True(t, c.Kafka.Enabled)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, c.Server.CORSOrigins)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.Equal(t, 9090, c.Server.Port)

	t.Setenv("HTTP_PORT", "nope")
	_, err = LoadWithEnv(path)
	assert.Error(t, err)
}

func TestSampleConfigLoads(t *testing.T) {
	c, err := Load(filepath.Join("..", "..", "config", "config.yaml"))
	require.NoError(t, err)
	assert.Len(t, c.Consolidation.Calibers, 10)
	assert.InDelta(t, 0.45, c.Consolidation.SourceWeights["freezeocean"], 1e-12)
}
