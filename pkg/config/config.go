// Package config loads the downscaling core's configuration record
// (spec §6): a YAML document for the domain-specific, nested fields
// (seasons, periods, regression, ...) plus environment/flag overrides
// for the ambient, teacher-shaped fields (service name, broker
// addresses, log level).
package config

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/cerfacs-go/dsclim/internal/dsclim/types"
)

// DateRange is a [Start, End] inclusive date range.
type DateRange struct {
	Start DateSpec `yaml:"start"`
	End   DateSpec `yaml:"end"`
}

// Periods is the model and (optional) control-run date range (spec §6).
type Periods struct {
	Model   DateRange  `yaml:"model"`
	Control *DateRange `yaml:"control,omitempty"`
}

// DateSpec is a (year, month, day) triple as it appears in YAML.
type DateSpec struct {
	Year, Month, Day int
}

// AnchorPointSpec is one (lon, lat) regression anchor.
type AnchorPointSpec struct {
	Lon float64 `yaml:"lon"`
	Lat float64 `yaml:"lat"`
}

// RegressionConfig configures the per-anchor regression (spec §6).
type RegressionConfig struct {
	AnchorPoints    []AnchorPointSpec `yaml:"anchor_points"`
	DistThreshMeters float64          `yaml:"dist_thresh_meters"`
}

// EofConfig configures the EOF projections consumed by the Learning
// Assembler and orchestrator (spec §6).
type EofConfig struct {
	NEofRea int    `yaml:"n_eof_rea"`
	NEofObs int    `yaml:"n_eof_obs"`
	Scale   string `yaml:"scale"` // e.g. "singular_value"
}

// SearchConfig configures the Analog Finder (spec §6).
type SearchConfig struct {
	UseDownscaledYear bool   `yaml:"use_downscaled_year"`
	OnlyWT            bool   `yaml:"only_wt"`
	ClassifType       string `yaml:"classif_type"` // "euclidian"
}

// OutputConfig configures the emitted file/stream layout (spec §6).
type OutputConfig struct {
	Format      string `yaml:"format"` // "v3" | "v4"
	Compression bool   `yaml:"compression"`
	MonthBegin  int    `yaml:"month_begin"`
	Path        string `yaml:"path"`
	Timestep    string `yaml:"timestep"` // "hourly" | "daily"
}

// TimeConfig configures the base-unit time axis (spec §6).
type TimeConfig struct {
	BaseUnits    string `yaml:"base_units"` // udunits-compatible, e.g. "days since 1950-01-01"
	CalendarType string `yaml:"calendar_type"`
}

// MaskConfig names optional binary masks (spec §6).
type MaskConfig struct {
	SecondaryFieldMaskPath string `yaml:"secondary_field_mask_path,omitempty"`
	LearningFieldMaskPath  string `yaml:"learning_field_mask_path,omitempty"`
}

// LearningConfig selects and configures the learning-cache backend
// ([EXPANSION], spec §4.F cache contract).
type LearningConfig struct {
	CacheBackend string `yaml:"cache_backend"` // "file" | "postgres"
	CacheDir     string `yaml:"cache_dir,omitempty"`
	CacheKey     string `yaml:"cache_key"`
	KMeansRestarts int  `yaml:"kmeans_restarts"`

	// AnalogCacheEnabled wires a Redis-backed working-set cache into the
	// Analog Finder ([EXPANSION]): unrelated to the learning-record cache
	// above, it caches one season's one model day's ranked candidate list
	// so a rerun that only changes n_days_choices skips recomputing it.
	AnalogCacheEnabled bool `yaml:"analog_cache_enabled,omitempty"`
}

// NarrativeConfig enables the optional LLM-written run narrative
// ([EXPANSION], carried over from the teacher's pkg/llm).
type NarrativeConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint,omitempty"`
	Model    string `yaml:"model,omitempty"`
}

// GeoConfig is the reference point for the suncalc daylength diagnostic
// ([EXPANSION]).
type GeoConfig struct {
	Lon float64 `yaml:"lon"`
	Lat float64 `yaml:"lat"`
}

// Config is the downscaling core's full configuration record (spec §6)
// plus the ambient fields the teacher's agents carry for service
// identity, logging and broker addresses.
type Config struct {
	Seasons    []types.Season   `yaml:"-"` // parsed from SeasonSpecs, see Load
	SeasonSpecs []SeasonSpec    `yaml:"seasons"`
	Periods    Periods          `yaml:"periods"`
	Regression RegressionConfig `yaml:"regression"`
	Eof        EofConfig        `yaml:"eof"`
	Search     SearchConfig     `yaml:"search"`
	Output     OutputConfig     `yaml:"output"`
	Time       TimeConfig       `yaml:"time"`
	Mask       MaskConfig       `yaml:"mask"`
	Learning   LearningConfig   `yaml:"learning"`
	Narrative  NarrativeConfig  `yaml:"narrative"`
	Geo        GeoConfig        `yaml:"geo"`

	// Ambient, teacher-shaped fields: not part of the YAML domain
	// record, overridden by env vars / flags exactly as the teacher's
	// agents do.
	ServiceName string
	LogLevel    string
	HealthPort  int

	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int

	PostgresHost               string
	PostgresPort               int
	PostgresUser               string
	PostgresPassword           string
	PostgresDB                 string
	PostgresSSLMode            string
	PostgresMaxConnections     int
	PostgresMaxIdleConnections int
	PostgresConnMaxLifetime    time.Duration

	MQTTBroker   string
	MQTTPort     int
	MQTTClientID string
	MQTTUser     string
	MQTTPassword string

	MasterSeed uint64
}

// SeasonSpec is the YAML shape of one types.Season; months is a list
// rather than a set for readability in the config file.
type SeasonSpec struct {
	Name                string `yaml:"name"`
	Months              []int  `yaml:"months"`
	NClusters           int    `yaml:"n_clusters"`
	NReg                int    `yaml:"n_reg"`
	NDaysWindow         int    `yaml:"n_days_window"`
	NDaysChoices        int    `yaml:"n_days_choices"`
	Shuffle             bool   `yaml:"shuffle"`
	SecondaryChoice     bool   `yaml:"secondary_choice"`
	SecondaryMainChoice bool   `yaml:"secondary_main_choice"`
	SecondaryCov        bool   `yaml:"secondary_cov"`
}

func (s SeasonSpec) toSeason() types.Season {
	months := make(map[int]bool, len(s.Months))
	for _, m := range s.Months {
		months[m] = true
	}
	return types.Season{
		Name:                s.Name,
		Months:              months,
		NClusters:           s.NClusters,
		NReg:                s.NReg,
		NDaysWindow:         s.NDaysWindow,
		NDaysChoices:        s.NDaysChoices,
		Shuffle:             s.Shuffle,
		SecondaryChoice:     s.SecondaryChoice,
		SecondaryMainChoice: s.SecondaryMainChoice,
		SecondaryCov:        s.SecondaryCov,
	}
}

// NewConfig returns a Config with the teacher's ambient defaults plus
// sane domain defaults. The domain record (seasons, periods, ...) has
// no sensible default and is expected to come from Load.
func NewConfig() *Config {
	return &Config{
		ServiceName: "dsclim",
		LogLevel:    "info",
		HealthPort:  8080,
		RedisHost:   "localhost",
		RedisPort:   6379,
		PostgresHost:               "localhost",
		PostgresPort:               5432,
		PostgresUser:               "postgres",
		PostgresDB:                 "postgres",
		PostgresSSLMode:            "disable",
		PostgresMaxConnections:     10,
		PostgresMaxIdleConnections: 5,
		PostgresConnMaxLifetime:    30 * time.Minute,
		MQTTBroker: "localhost",
		MQTTPort:   1883,
		Learning: LearningConfig{
			CacheBackend:   "file",
			CacheDir:       "./cache",
			KMeansRestarts: 20,
		},
		Search: SearchConfig{ClassifType: "euclidian"},
	}
}

// Load reads the domain configuration record from a YAML file, failing
// on unknown fields so that "unknown options are rejected" (spec §6) is
// enforced at decode time rather than silently ignored.
func Load(path string, c *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: reading %q: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("config: decoding %q: %w", path, err)
	}

	c.Seasons = make([]types.Season, len(c.SeasonSpecs))
	for i, spec := range c.SeasonSpecs {
		c.Seasons[i] = spec.toSeason()
	}
	return nil
}

// LoadFromEnv overlays environment variables (DSCLIM_ prefix) onto the
// ambient fields, following the teacher's JEEVES_-prefixed pattern.
func (c *Config) LoadFromEnv() {
	if v := os.Getenv("DSCLIM_SERVICE_NAME"); v != "" {
		c.ServiceName = v
	}
	if v := os.Getenv("DSCLIM_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("DSCLIM_HEALTH_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.HealthPort = port
		}
	}
	if v := os.Getenv("DSCLIM_REDIS_HOST"); v != "" {
		c.RedisHost = v
	}
	if v := os.Getenv("DSCLIM_REDIS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.RedisPort = port
		}
	}
	if v := os.Getenv("DSCLIM_POSTGRES_HOST"); v != "" {
		c.PostgresHost = v
	}
	if v := os.Getenv("DSCLIM_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.PostgresPort = port
		}
	}
	if v := os.Getenv("DSCLIM_POSTGRES_USER"); v != "" {
		c.PostgresUser = v
	}
	if v := os.Getenv("DSCLIM_POSTGRES_PASSWORD"); v != "" {
		c.PostgresPassword = v
	}
	if v := os.Getenv("DSCLIM_POSTGRES_DB"); v != "" {
		c.PostgresDB = v
	}
	if v := os.Getenv("DSCLIM_MQTT_BROKER"); v != "" {
		c.MQTTBroker = v
	}
	if v := os.Getenv("DSCLIM_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.MQTTPort = port
		}
	}
	if v := os.Getenv("DSCLIM_MASTER_SEED"); v != "" {
		if seed, err := strconv.ParseUint(v, 10, 64); err == nil {
			c.MasterSeed = seed
		}
	}
}

// LoadFromFlags parses command-line flags and overrides the ambient
// config fields and the path to the domain YAML record.
func (c *Config) LoadFromFlags() (configPath string) {
	pflag.StringVar(&configPath, "config", "dsclim.yaml", "path to the domain configuration YAML file")
	pflag.StringVar(&c.ServiceName, "service-name", c.ServiceName, "service name")
	pflag.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level (debug, info, warn, error)")
	pflag.IntVar(&c.HealthPort, "health-port", c.HealthPort, "health check HTTP port")
	pflag.StringVar(&c.RedisHost, "redis-host", c.RedisHost, "Redis hostname")
	pflag.IntVar(&c.RedisPort, "redis-port", c.RedisPort, "Redis port")
	pflag.StringVar(&c.PostgresHost, "postgres-host", c.PostgresHost, "PostgreSQL hostname")
	pflag.IntVar(&c.PostgresPort, "postgres-port", c.PostgresPort, "PostgreSQL port")
	pflag.StringVar(&c.MQTTBroker, "mqtt-broker", c.MQTTBroker, "MQTT broker hostname")
	pflag.IntVar(&c.MQTTPort, "mqtt-port", c.MQTTPort, "MQTT broker port")
	pflag.Uint64Var(&c.MasterSeed, "master-seed", c.MasterSeed, "master PRNG seed for reproducible shuffling")
	pflag.Parse()
	return configPath
}

// Validate checks every invariant spec.md §6 and §3 place on the
// configuration record. Unknown YAML fields are already rejected at
// decode time by Load; this catches the rest (out-of-range values,
// missing required domain fields).
func (c *Config) Validate() error {
	if len(c.Seasons) == 0 {
		return fmt.Errorf("config: at least one season is required")
	}
	seen := make(map[int]string)
	for _, s := range c.Seasons {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("config: %w", err)
		}
		for m := range s.Months {
			if m < 1 || m > 12 {
				return fmt.Errorf("config: season %q has invalid month %d", s.Name, m)
			}
			if owner, ok := seen[m]; ok {
				return fmt.Errorf("config: month %d assigned to both %q and %q", m, owner, s.Name)
			}
			seen[m] = s.Name
		}
	}

	if c.Eof.NEofRea <= 0 || c.Eof.NEofObs <= 0 {
		return fmt.Errorf("config: eof.n_eof_rea and eof.n_eof_obs must be positive")
	}
	if len(c.Regression.AnchorPoints) == 0 {
		return fmt.Errorf("config: at least one regression anchor point is required")
	}
	if c.Regression.DistThreshMeters <= 0 {
		return fmt.Errorf("config: regression.dist_thresh_meters must be positive")
	}
	if c.Output.Format != "v3" && c.Output.Format != "v4" {
		return fmt.Errorf("config: output.format must be v3 or v4, got %q", c.Output.Format)
	}
	if c.Output.Timestep != "hourly" && c.Output.Timestep != "daily" {
		return fmt.Errorf("config: output.timestep must be hourly or daily, got %q", c.Output.Timestep)
	}
	switch c.Learning.CacheBackend {
	case "file", "postgres":
	default:
		return fmt.Errorf("config: learning.cache_backend must be file or postgres, got %q", c.Learning.CacheBackend)
	}

	if c.HealthPort <= 0 || c.HealthPort > 65535 {
		return fmt.Errorf("config: health port must be between 1 and 65535")
	}
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("config: invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}
	if c.ServiceName == "" {
		return fmt.Errorf("config: service name is required")
	}
	return nil
}

// MQTTAddress returns the full MQTT broker address.
func (c *Config) MQTTAddress() string {
	return fmt.Sprintf("tcp://%s:%d", c.MQTTBroker, c.MQTTPort)
}

// RedisAddress returns the full Redis address.
func (c *Config) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// PostgresConnectionString returns a PostgreSQL connection string.
func (c *Config) PostgresConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPassword, c.PostgresDB, c.PostgresSSLMode)
}
