// Package config loads the bridge configuration from YAML.
//
// A document is decoded over Default, so every field is optional. The
// result is checked with struct validation and converted into options for
// the bridge, the wazero adapter and the logger.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/reglet-dev/hostbridge/bridge"
	"github.com/reglet-dev/hostbridge/buffer"
	"github.com/reglet-dev/hostbridge/domain/entities"
	"github.com/reglet-dev/hostbridge/hostaccess"
	"github.com/reglet-dev/hostbridge/hostrt"
	hbwazero "github.com/reglet-dev/hostbridge/infrastructure/wazero"
	"github.com/reglet-dev/hostbridge/internal/abi"
	hblog "github.com/reglet-dev/hostbridge/log"
	"gopkg.in/yaml.v3"
)

// validate is a package-level singleton; validators cache struct metadata.
var validate = validator.New()

// Config is the root configuration document.
type Config struct {
	Host        HostConfig       `json:"host" yaml:"host"`
	Heap        HeapConfig       `json:"heap" yaml:"heap"`
	Buffers     BufferConfig     `json:"buffers" yaml:"buffers"`
	Timers      TimerConfig      `json:"timers" yaml:"timers"`
	Descriptors DescriptorConfig `json:"descriptors" yaml:"descriptors"`
	Runtime     RuntimeConfig    `json:"runtime" yaml:"runtime"`
	Log         LogConfig        `json:"log" yaml:"log"`
}

// HostConfig configures the wazero host module.
type HostConfig struct {
	// ModuleName is the import module scripts link against.
	ModuleName string `json:"module_name" yaml:"module_name" validate:"required" jsonschema:"default=bridge_host"`

	// MaxRequestSize caps call_native payloads read from guest memory.
	MaxRequestSize uint32 `json:"max_request_size" yaml:"max_request_size" validate:"gt=0"`
}

// HeapConfig configures the native heap.
type HeapConfig struct {
	MaxTotalBytes int `json:"max_total_bytes" yaml:"max_total_bytes" validate:"gt=0"`
}

// BufferConfig configures the buffer exchange.
type BufferConfig struct {
	MaxSize int `json:"max_size" yaml:"max_size" validate:"gt=0"`
}

// TimerConfig configures the timer bridge.
type TimerConfig struct {
	// LegacyIntervalCodes maps unknown interval codes to repeating timers
	// instead of rejecting them.
	LegacyIntervalCodes bool `json:"legacy_interval_codes" yaml:"legacy_interval_codes"`
}

// DescriptorConfig configures host member access.
type DescriptorConfig struct {
	// Cache enables the resolution cache.
	Cache bool `json:"cache" yaml:"cache"`

	// Verify resolves every descriptor at start-up.
	Verify bool `json:"verify" yaml:"verify"`

	// Entries override default descriptors by name.
	Entries map[string]entities.MemberDescriptor `json:"entries,omitempty" yaml:"entries" validate:"dive"`
}

// RuntimeConfig configures the in-process reference runtime used by bridgectl.
type RuntimeConfig struct {
	SDKVersion int32 `json:"sdk_version" yaml:"sdk_version" validate:"gte=1"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level     string `json:"level" yaml:"level" validate:"oneof=debug info warn error" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
	Format    string `json:"format" yaml:"format" validate:"oneof=text json" jsonschema:"enum=text,enum=json"`
	AddSource bool   `json:"add_source" yaml:"add_source"`
}

// Default returns the configuration used when no document is given.
func Default() Config {
	return Config{
		Host: HostConfig{
			ModuleName:     hbwazero.DefaultModuleName,
			MaxRequestSize: hbwazero.DefaultMaxRequestSize,
		},
		Heap:    HeapConfig{MaxTotalBytes: abi.DefaultMaxTotalAllocations},
		Buffers: BufferConfig{MaxSize: buffer.DefaultMaxSize},
		Runtime: RuntimeConfig{SDKVersion: hostrt.DefaultSDKVersion},
		Log:     LogConfig{Level: "info", Format: hblog.FormatText},
	}
}

// Parse decodes a YAML document over Default and validates the result.
// Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads and parses the file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is chosen by the operator
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Validate checks field constraints and that the descriptor table builds.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if _, err := c.DescriptorTable(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// DescriptorTable merges the configured entries over the default descriptors.
func (c Config) DescriptorTable() (*hostaccess.Table, error) {
	entries := hostaccess.DefaultDescriptors()
	for name, desc := range c.Descriptors.Entries {
		entries[name] = desc
	}
	return hostaccess.NewTable(entries)
}

// BridgeOptions returns the bridge options described by c.
func (c Config) BridgeOptions() ([]bridge.Option, error) {
	table, err := c.DescriptorTable()
	if err != nil {
		return nil, err
	}

	opts := []bridge.Option{
		bridge.WithTable(table),
		bridge.WithResolutionCache(c.Descriptors.Cache),
		bridge.WithLegacyIntervalCodes(c.Timers.LegacyIntervalCodes),
		bridge.WithMaxBufferSize(c.Buffers.MaxSize),
		bridge.WithHeap(abi.NewHeap(abi.WithMaxTotalAllocations(c.Heap.MaxTotalBytes))),
	}
	if c.Descriptors.Verify {
		opts = append(opts, bridge.WithStartupVerification())
	}
	return opts, nil
}

// AdapterOptions returns the wazero host module options described by c.
func (c Config) AdapterOptions() []hbwazero.AdapterOption {
	return []hbwazero.AdapterOption{
		hbwazero.WithModuleName(c.Host.ModuleName),
		hbwazero.WithMaxRequestSize(c.Host.MaxRequestSize),
	}
}

// Logger builds a logger writing to w.
func (c Config) Logger(w io.Writer) (*slog.Logger, error) {
	level, err := hblog.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	return hblog.New(
		hblog.WithWriter(w),
		hblog.WithLevel(level),
		hblog.WithFormat(c.Log.Format),
		hblog.WithSource(c.Log.AddSource),
	), nil
}
