package forge

import (
	"log/slog"

	"github.com/gogpu/forge/device"
	"github.com/gogpu/forge/lifecycle"
)

// Option configures a Pipeline during creation.
//
// Example:
//
//	// Default backend selection (GPU if a provider is installed,
//	// headless otherwise):
//	p, err := forge.New()
//
//	// Explicit device and a resource ceiling:
//	p, err := forge.New(forge.WithDevice(dev), forge.WithCapacity(4096))
type Option func(*options)

// options holds optional configuration for Pipeline creation.
type options struct {
	capacity  int
	producers int
	dev       device.Device
	eviction  lifecycle.Policy
	logger    *slog.Logger
}

func defaultOptions() options {
	return options{
		capacity:  0,   // growable
		producers: 0,   // buffers allocated on first BeginFrame
		dev:       nil, // device.Default() if nil
		logger:    nil, // forge.Logger() if nil
	}
}

// WithCapacity caps the number of simultaneously allocated resources.
// Zero or negative means the registry grows without bound.
func WithCapacity(n int) Option {
	return func(o *options) {
		o.capacity = n
	}
}

// WithProducers pre-allocates command buffers for n producer
// goroutines. BeginFrame still grows the pool on demand; this only
// avoids allocation in the first frames.
func WithProducers(n int) Option {
	return func(o *options) {
		o.producers = n
	}
}

// WithDevice injects a backend device instead of selecting one from
// the registry. Use this for dependency injection of a custom or mock
// device.
//
// Example:
//
//	dev := headless.New()
//	p, err := forge.New(forge.WithDevice(dev))
func WithDevice(dev device.Device) Option {
	return func(o *options) {
		o.dev = dev
	}
}

// WithEviction installs an eviction policy that proposes unreferenced
// resources for destruction when a byte budget is exceeded. Off by
// default.
//
// Example:
//
//	p, err := forge.New(forge.WithEviction(lifecycle.NewLRU(256 << 20)))
func WithEviction(policy lifecycle.Policy) Option {
	return func(o *options) {
		o.eviction = policy
	}
}

// WithLogger gives the pipeline its own logger, overriding the package
// logger installed with SetLogger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}
