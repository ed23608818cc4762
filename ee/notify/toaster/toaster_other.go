//go:build !windows && !linux
// +build !windows,!linux

package toaster

import (
	"context"

	"github.com/go-kit/kit/log"
)

// New has no OS backend to offer here; use NewMemory.
func New(opts ...Option) (*MemoryToaster, error) {
	return nil, ErrUnsupportedPlatform
}

func Probe(ctx context.Context, logger log.Logger, aumid string) (string, error) {
	return "", ErrUnsupportedPlatform
}
