package host

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
)

// DefaultMaxScriptSize caps the size of script modules read by a Loader.
const DefaultMaxScriptSize = 64 * 1024 * 1024 // 64MB

var wasmMagic = []byte{0x00, 0x61, 0x73, 0x6d}

// ErrNotWasm is returned for input without the WebAssembly magic header.
var ErrNotWasm = errors.New("host: not a WebAssembly module")

// loaderConfig holds configuration for the Loader.
type loaderConfig struct {
	maxSize int64
}

func defaultLoaderConfig() loaderConfig {
	return loaderConfig{maxSize: DefaultMaxScriptSize}
}

// Loader reads script modules from disk or a stream.
type Loader struct {
	config loaderConfig
}

// LoaderOption configures the Loader.
type LoaderOption func(*loaderConfig)

// WithMaxScriptSize sets the maximum module size. Values <= 0 are ignored.
func WithMaxScriptSize(n int64) LoaderOption {
	return func(c *loaderConfig) {
		if n > 0 {
			c.maxSize = n
		}
	}
}

// NewLoader creates a new Loader with defaults.
func NewLoader(opts ...LoaderOption) *Loader {
	cfg := defaultLoaderConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Loader{config: cfg}
}

// LoadFile reads and checks the module at path.
func (l *Loader) LoadFile(path string) ([]byte, error) {
	f, err := os.Open(path) //nolint:gosec // G304: path is chosen by the operator
	if err != nil {
		return nil, fmt.Errorf("failed to open script: %w", err)
	}
	defer f.Close()

	return l.Load(f)
}

// Load reads and checks a module from r.
func (l *Loader) Load(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, l.config.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	if int64(len(data)) > l.config.maxSize {
		return nil, fmt.Errorf("script exceeds maximum size of %d bytes", l.config.maxSize)
	}
	if !bytes.HasPrefix(data, wasmMagic) {
		return nil, ErrNotWasm
	}
	return data, nil
}
