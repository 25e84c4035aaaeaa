package ipmutex

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/srediag/ipmutex/internal/shm"
)

const (
	defaultPerm          = 0o600
	defaultProbeInterval = 100 * time.Millisecond
	minProbeInterval     = time.Millisecond
	instrumentationName  = "github.com/srediag/ipmutex"
)

// Config holds Mutex construction parameters.
type Config struct {
	// Dir is the directory holding the shared memory namespace.
	// Defaults to /dev/shm on Linux and os.TempDir() elsewhere.
	Dir string
	// Perm is the permission of newly created objects. Defaults to 0600.
	Perm os.FileMode
	// ProbeInterval is how often a blocked Lock checks whether the holder
	// process is still alive.
	ProbeInterval time.Duration
	// CheckFreeSpace makes the creator verify that Dir has room for the
	// lock word before creating the object.
	CheckFreeSpace bool
	// Meter and Tracer receive lock instrumentation. Nil means no-op.
	Meter  metric.Meter
	Tracer trace.Tracer
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Dir:            shm.DefaultDir(),
		Perm:           defaultPerm,
		ProbeInterval:  defaultProbeInterval,
		CheckFreeSpace: runtime.GOOS == "linux",
	}
}

// VerifyConfig reports whether config can be used to construct a Mutex.
func VerifyConfig(config *Config) error {
	if config == nil {
		return fmt.Errorf("%w: nil config", ErrInvalidConfig)
	}
	if config.Dir == "" {
		return fmt.Errorf("%w: empty segment directory", ErrInvalidConfig)
	}
	if config.Perm&0o600 != 0o600 {
		return fmt.Errorf("%w: permission %v does not allow the creator to read and write", ErrInvalidConfig, config.Perm)
	}
	if config.Perm&^os.ModePerm != 0 {
		return fmt.Errorf("%w: permission %v carries non-permission bits", ErrInvalidConfig, config.Perm)
	}
	if config.ProbeInterval < minProbeInterval {
		return fmt.Errorf("%w: probe interval %v is below %v", ErrInvalidConfig, config.ProbeInterval, minProbeInterval)
	}
	return nil
}

func (c *Config) meter() metric.Meter {
	if c.Meter != nil {
		return c.Meter
	}
	return metricnoop.NewMeterProvider().Meter(instrumentationName)
}

func (c *Config) tracer() trace.Tracer {
	if c.Tracer != nil {
		return c.Tracer
	}
	return tracenoop.NewTracerProvider().Tracer(instrumentationName)
}
