package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const validYAML = `
seasons:
  - name: winter
    months: [12, 1, 2]
    n_clusters: 4
    n_reg: 4
    n_days_window: 5
    n_days_choices: 10
    shuffle: true
  - name: summer
    months: [6, 7, 8]
    n_clusters: 3
    n_reg: 4
    n_days_window: 5
    n_days_choices: 10
periods:
  model:
    start: {year: 2000, month: 1, day: 1}
    end: {year: 2010, month: 12, day: 31}
regression:
  anchor_points:
    - {lon: 1.5, lat: 43.5}
  dist_thresh_meters: 50000
eof:
  n_eof_rea: 10
  n_eof_obs: 5
search:
  classif_type: euclidian
output:
  format: v4
  timestep: daily
learning:
  cache_backend: file
  cache_key: test
`

func loadValid(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "dsclim.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validYAML), 0o644))

	c := NewConfig()
	require.NoError(t, Load(path, c))
	return c
}

func TestLoadParsesSeasonsFromSpecs(t *testing.T) {
	c := loadValid(t)
	require.Len(t, c.Seasons, 2)
	require.Equal(t, "winter", c.Seasons[0].Name)
	require.True(t, c.Seasons[0].HasMonth(12))
	require.True(t, c.Seasons[0].HasMonth(1))
	require.False(t, c.Seasons[0].HasMonth(6))
}

func TestLoadThenValidateSucceeds(t *testing.T) {
	c := loadValid(t)
	require.NoError(t, c.Validate())
}

func TestLoadRejectsUnknownField(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dsclim.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validYAML+"\nbogus_field: true\n"), 0o644))

	c := NewConfig()
	err := Load(path, c)
	require.Error(t, err)
}

func TestValidateRejectsEmptySeasons(t *testing.T) {
	c := NewConfig()
	err := c.Validate()
	require.Error(t, err)
}

func TestValidateRejectsOverlappingMonths(t *testing.T) {
	c := loadValid(t)
	c.Seasons[1].Months[1] = true // month 1 already claimed by winter
	err := c.Validate()
	require.ErrorContains(t, err, "assigned to both")
}

func TestValidateRejectsBadOutputFormat(t *testing.T) {
	c := loadValid(t)
	c.Output.Format = "v2"
	require.ErrorContains(t, c.Validate(), "output.format")
}

func TestValidateRejectsBadCacheBackend(t *testing.T) {
	c := loadValid(t)
	c.Learning.CacheBackend = "redis"
	require.ErrorContains(t, c.Validate(), "learning.cache_backend")
}

func TestNewConfigDefaults(t *testing.T) {
	c := NewConfig()
	require.Equal(t, "dsclim", c.ServiceName)
	require.Equal(t, "info", c.LogLevel)
	require.Equal(t, "file", c.Learning.CacheBackend)
	require.Equal(t, "euclidian", c.Search.ClassifType)
}

func TestAddressHelpers(t *testing.T) {
	c := NewConfig()
	require.Equal(t, "tcp://localhost:1883", c.MQTTAddress())
	require.Equal(t, "localhost:6379", c.RedisAddress())
	require.Contains(t, c.PostgresConnectionString(), "host=localhost")
}
