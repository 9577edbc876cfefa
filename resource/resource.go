// Package resource defines the descriptors that producers hand to the
// lifecycle manager when creating or updating GPU resources.
//
// Descriptors are plain data. The core never interprets their payloads
// beyond validation and size accounting; the device binding consumes
// them when the corresponding backend objects are created. Pixel and
// vertex payloads travel by value with the descriptor, so a producer
// may recycle its own staging memory immediately after submission.
package resource

import (
	"errors"

	"github.com/gogpu/forge/handle"
)

// Common descriptor validation errors.
var (
	// ErrEmptyDescriptor is returned when a descriptor has no usable payload.
	ErrEmptyDescriptor = errors.New("resource: empty descriptor")

	// ErrBadDimensions is returned when a descriptor's dimensions are zero
	// or inconsistent with its payload.
	ErrBadDimensions = errors.New("resource: bad dimensions")
)

// Descriptor is implemented by every resource descriptor.
type Descriptor interface {
	// Kind returns the resource category the descriptor creates.
	Kind() handle.Kind

	// SizeBytes returns the approximate GPU memory footprint, used for
	// eviction budgeting. Zero is valid for resources with no payload.
	SizeBytes() int

	// Validate checks the descriptor for internal consistency.
	// It is called once, on the producer thread, at submission.
	Validate() error
}
