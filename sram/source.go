package sram

import (
	"context"
	"fmt"
	"os"

	"github.com/MapleMaven/esp32-sram-puf/interfaces"
)

// SampleSource obtains the power-up SRAM image for the current boot.
// A failure to obtain the sample aborts the boot's enrollment attempt
// before any persisted state is touched.
type SampleSource interface {
	ReadSample(ctx context.Context) (interfaces.Sample, error)
}

// SourceFunc adapts a plain function to the SampleSource interface.
type SourceFunc func() ([]byte, error)

// ReadSample invokes the wrapped function.
func (f SourceFunc) ReadSample(ctx context.Context) (interfaces.Sample, error) {
	raw, err := f()
	if err != nil {
		return nil, err
	}
	return interfaces.Sample(raw), nil
}

// FileSource reads a captured SRAM dump from disk. One capture file
// corresponds to one boot; the file must contain exactly the configured
// sample size.
type FileSource struct {
	path string
	size int
}

// NewFileSource creates a sample source reading the capture at path.
func NewFileSource(path string, size int) *FileSource {
	return &FileSource{path: path, size: size}
}

// ReadSample loads and validates the capture.
func (f *FileSource) ReadSample(ctx context.Context) (interfaces.Sample, error) {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read capture %s: %w", f.path, err)
	}
	sample, err := interfaces.NewSample(raw, f.size)
	if err != nil {
		return nil, fmt.Errorf("capture %s: %w", f.path, err)
	}
	return sample, nil
}

// StaticSource wraps an already-obtained sample, typically one carried in a
// boot report, so it can flow through the controller's source boundary.
type StaticSource struct {
	sample interfaces.Sample
}

// NewStaticSource validates the raw sample and wraps it.
func NewStaticSource(raw []byte, size int) (*StaticSource, error) {
	sample, err := interfaces.NewSample(raw, size)
	if err != nil {
		return nil, err
	}
	return &StaticSource{sample: sample}, nil
}

// ReadSample returns the wrapped sample.
func (s *StaticSource) ReadSample(ctx context.Context) (interfaces.Sample, error) {
	return s.sample, nil
}
