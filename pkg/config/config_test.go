package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sample = `
environment: test
providers:
  - name: newsapi
    kind: news
    base_url: https://news.example.com
    api_key: from-file
  - name: newsbackup
    kind: news
    base_url: https://backup.example.com
    retry:
      max_retries: 1
  - name: chain
    kind: onchain
    base_url: https://chain.example.com
sources:
  news: [newsapi, newsbackup]
  onchain: [chain]
etl:
  quality_checks: false
schedule:
  enabled: true
  jobs:
    - source: news
      symbol: BTC
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	c, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	t.Run("defaults fill unset fields", func(t *testing.T) {
		require.Equal(t, 8080, c.Server.Port)
		require.Equal(t, "/metrics", c.Metrics.Path)
		require.Equal(t, "data/altdata", c.Storage.BasePath)
		require.Equal(t, "snappy", c.Storage.Compression)
		require.Equal(t, "UTC", c.Storage.PartitionTimezone)
		require.Equal(t, 15*time.Minute, c.ETL.LockTTL)
		require.Equal(t, time.Hour, c.Schedule.Interval)
		require.Equal(t, 4, c.Align.Concurrency)
		require.Equal(t, 15*time.Second, c.Align.CacheTTL)
		require.Equal(t, "altdata.etl.requests", c.Kafka.RunRequestTopic)
	})

	t.Run("explicit values win over defaults", func(t *testing.T) {
		require.False(t, c.ETL.QualityChecks)
		require.Equal(t, "test", c.Environment)
	})

	t.Run("list entries get their own defaults", func(t *testing.T) {
		p, ok := c.Provider("newsbackup")
		require.True(t, ok)
		require.Equal(t, 10*time.Second, p.Timeout)
		require.Equal(t, 100, p.PageSize)
		require.Equal(t, 1, p.Retry.MaxRetries)
		require.Equal(t, 500*time.Millisecond, p.Retry.BaseDelay)
		require.Equal(t, 5, p.Breaker.FailureThreshold)
		require.Equal(t, 24*time.Hour, c.Schedule.Jobs[0].Lookback)
	})
}

func TestValidate(t *testing.T) {
	cases := map[string]string{
		"unknown provider": `
providers:
  - {name: a, kind: news, base_url: "https://a.example.com"}
sources:
  news: [b]
`,
		"mixed kinds": `
providers:
  - {name: a, kind: news, base_url: "https://a.example.com"}
  - {name: b, kind: onchain, base_url: "https://b.example.com"}
sources:
  news: [a, b]
`,
		"bad kind": `
providers:
  - {name: a, kind: weather, base_url: "https://a.example.com"}
sources:
  weather: [a]
`,
		"duplicate provider": `
providers:
  - {name: a, kind: news, base_url: "https://a.example.com"}
  - {name: a, kind: news, base_url: "https://b.example.com"}
sources:
  news: [a]
`,
		"no sources": `
providers:
  - {name: a, kind: news, base_url: "https://a.example.com"}
`,
		"scheduled job on unknown source": `
providers:
  - {name: a, kind: news, base_url: "https://a.example.com"}
sources:
  news: [a]
schedule:
  enabled: true
  jobs: [{source: onchain, symbol: BTC}]
`,
		"bad compression": `
providers:
  - {name: a, kind: news, base_url: "https://a.example.com"}
sources:
  news: [a]
storage:
  compression: lz4
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(body))
			require.Error(t, err)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	c, err := Parse([]byte(sample))
	require.NoError(t, err)

	env := map[string]string{
		"ALTPULL_ENV":       "production",
		"NEWS_API_KEY":      "env-key",
		"ONCHAIN_API_KEY":   "chain-key",
		"KAFKA_BROKERS":     "k1:9092,k2:9092",
		"REDIS_ADDR":        "redis:6380",
		"CLICKHOUSE_HOST":   "ch",
		"STORAGE_BASE_PATH": "/var/altdata",
	}
	require.NoError(t, c.applyEnv(func(k string) string { return env[k] }))

	require.Equal(t, "production", c.Environment)
	news, _ := c.Provider("newsapi")
	require.Equal(t, "from-file", news.APIKey)
	backup, _ := c.Provider("newsbackup")
	require.Equal(t, "env-key", backup.APIKey)
	chain, _ := c.Provider("chain")
	require.Equal(t, "chain-key", chain.APIKey)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	require.True(t, c.Kafka.Enabled)
	require.Equal(t, "redis", c.Redis.Host)
	require.Equal(t, 6380, c.Redis.Port)
	require.True(t, c.Redis.Enabled)
	require.True(t, c.ClickHouse.Enabled)
	require.Equal(t, "/var/altdata", c.Storage.BasePath)

	require.Error(t, c.applyEnv(func(k string) string {
		if k == "REDIS_ADDR" {
			return "no-port"
		}
		return ""
	}))
}
