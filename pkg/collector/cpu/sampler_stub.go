//go:build !linux
// +build !linux

package cpu

import (
	"errors"
	"time"

	"github.com/srodi/wattrace/pkg/types"
)

var errUnsupported = errors.New("cpu sampler requires linux")

// Sampler is a placeholder on non-Linux platforms.
type Sampler struct{}

// New returns an error because the sampler reads Linux procfs.
func New(interval time.Duration) (*Sampler, error) {
	return nil, errUnsupported
}

// Name identifies the component in histories and log blocks.
func (s *Sampler) Name() string { return "CPU" }

// HasUIDData reports that CPU readings break down per UID.
func (s *Sampler) HasUIDData() bool { return true }

// Calculate always fails on unsupported platforms.
func (s *Sampler) Calculate(iter int64) (*types.IterationData, error) {
	return nil, errUnsupported
}

// Close is a no-op stub.
func (s *Sampler) Close() error { return nil }
