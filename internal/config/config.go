// Package config loads the phy-monitor configuration from YAML, then applies
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/phy-core/ntn"
	"github.com/signalsfoundry/phy-core/phymetrics"
	"github.com/signalsfoundry/phy-core/rftime"
	"github.com/signalsfoundry/phy-core/tti"
)

// Validation errors. Validate wraps them with the offending value.
var (
	ErrInvalidCarriers       = errors.New("carriers out of range")
	ErrInvalidChannels       = errors.New("channels out of range")
	ErrInvalidTick           = errors.New("tick must be positive")
	ErrInvalidReportInterval = errors.New("report interval must be positive")
	ErrInvalidSampleRate     = errors.New("sample rate must be positive")
	ErrInvalidStartTTI       = errors.New("start tti outside the ring")
	ErrInvalidProbability    = errors.New("probability must be within [0,1]")
	ErrMissingTLE            = errors.New("ntn enabled without both TLE lines")
)

// Config is the full phy-monitor configuration.
type Config struct {
	Carriers        uint32  `yaml:"carriers"`
	Channels        uint32  `yaml:"channels"`
	Tick            string  `yaml:"tick"` // Go duration, e.g. "1ms"
	Accelerated     bool    `yaml:"accelerated"`
	ReportInterval  uint32  `yaml:"report_interval"`  // in TTIs
	WindowedReports bool    `yaml:"windowed_reports"` // reset averages after every report
	SampleRateHz    float64 `yaml:"sample_rate_hz"`
	StartTTI        uint32  `yaml:"start_tti"`

	Synth   SynthConfig   `yaml:"synth"`
	Monitor MonitorConfig `yaml:"monitor"`
	NTN     NTNConfig     `yaml:"ntn"`
}

// SynthConfig drives the synthetic measurement source.
type SynthConfig struct {
	Seed           int64   `yaml:"seed"`
	NonFiniteSINRP float64 `yaml:"nonfinite_sinr_probability"`
	PCIBase        uint32  `yaml:"pci_base"`
	DLEARFCN       uint32  `yaml:"dl_earfcn"`
}

// MonitorConfig holds the listen addresses of the monitoring surface.
type MonitorConfig struct {
	MetricsAddr string `yaml:"metrics_addr"`
	GRPCAddr    string `yaml:"grpc_addr"`
}

// NTNConfig enables satellite link geometry for the sync metrics.
type NTNConfig struct {
	Enabled  bool         `yaml:"enabled"`
	TLELine1 string       `yaml:"tle_line1"`
	TLELine2 string       `yaml:"tle_line2"`
	Observer ntn.Observer `yaml:"observer"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Carriers:       1,
		Channels:       1,
		Tick:           "1ms",
		ReportInterval: 1000,
		SampleRateHz:   1.92e6,
		Synth: SynthConfig{
			Seed:     1,
			PCIBase:  1,
			DLEARFCN: 3350,
		},
		Monitor: MonitorConfig{
			MetricsAddr: ":9102",
			GRPCAddr:    ":50061",
		},
	}
}

// Load reads the YAML file at path and fills unset fields with defaults. An
// empty path yields Default().
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML data and applies defaults.
func Parse(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&c)
	return &c, nil
}

func applyDefaults(c *Config) {
	d := Default()
	if c.Carriers == 0 {
		c.Carriers = d.Carriers
	}
	if c.Channels == 0 {
		c.Channels = d.Channels
	}
	if c.Tick == "" {
		c.Tick = d.Tick
	}
	if c.ReportInterval == 0 {
		c.ReportInterval = d.ReportInterval
	}
	if c.SampleRateHz == 0 {
		c.SampleRateHz = d.SampleRateHz
	}
	if c.Synth.Seed == 0 {
		c.Synth.Seed = d.Synth.Seed
	}
	if c.Synth.PCIBase == 0 {
		c.Synth.PCIBase = d.Synth.PCIBase
	}
	if c.Synth.DLEARFCN == 0 {
		c.Synth.DLEARFCN = d.Synth.DLEARFCN
	}
	if c.Monitor.MetricsAddr == "" {
		c.Monitor.MetricsAddr = d.Monitor.MetricsAddr
	}
	if c.Monitor.GRPCAddr == "" {
		c.Monitor.GRPCAddr = d.Monitor.GRPCAddr
	}
}

// ApplyEnv overrides fields from PHY_CARRIERS, PHY_CHANNELS, PHY_METRICS_ADDR
// and PHY_GRPC_ADDR when they are set.
func (c *Config) ApplyEnv() error {
	if v := strings.TrimSpace(os.Getenv("PHY_CARRIERS")); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("PHY_CARRIERS: %w", err)
		}
		c.Carriers = uint32(n)
	}
	if v := strings.TrimSpace(os.Getenv("PHY_CHANNELS")); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("PHY_CHANNELS: %w", err)
		}
		c.Channels = uint32(n)
	}
	if v := os.Getenv("PHY_METRICS_ADDR"); v != "" {
		c.Monitor.MetricsAddr = v
	}
	if v := os.Getenv("PHY_GRPC_ADDR"); v != "" {
		c.Monitor.GRPCAddr = v
	}
	return nil
}

// TickDuration parses Tick.
func (c *Config) TickDuration() (time.Duration, error) {
	d, err := time.ParseDuration(c.Tick)
	if err != nil {
		return 0, fmt.Errorf("parse tick %q: %w", c.Tick, err)
	}
	return d, nil
}

// Validate reports the first out-of-range field.
func (c *Config) Validate() error {
	if c.Carriers == 0 || c.Carriers > phymetrics.MaxCarriers {
		return fmt.Errorf("%w: %d, want 1..%d", ErrInvalidCarriers, c.Carriers, phymetrics.MaxCarriers)
	}
	if c.Channels == 0 || c.Channels > rftime.NumChannels {
		return fmt.Errorf("%w: %d, want 1..%d", ErrInvalidChannels, c.Channels, rftime.NumChannels)
	}
	tick, err := c.TickDuration()
	if err != nil {
		return err
	}
	if tick <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTick, c.Tick)
	}
	if c.ReportInterval == 0 {
		return ErrInvalidReportInterval
	}
	if !(c.SampleRateHz > 0) || math.IsInf(c.SampleRateHz, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidSampleRate, c.SampleRateHz)
	}
	if !tti.Valid(c.StartTTI) {
		return fmt.Errorf("%w: %d", ErrInvalidStartTTI, c.StartTTI)
	}
	if p := c.Synth.NonFiniteSINRP; !(p >= 0 && p <= 1) {
		return fmt.Errorf("%w: %v", ErrInvalidProbability, p)
	}
	if c.NTN.Enabled && (strings.TrimSpace(c.NTN.TLELine1) == "" || strings.TrimSpace(c.NTN.TLELine2) == "") {
		return ErrMissingTLE
	}
	return nil
}
