package checkups

import (
	"context"
	"fmt"
	"runtime"
)

type Platform struct {
}

func (c *Platform) Name() string {
	return "Platform"
}

func (c *Platform) Run(_ context.Context) error {
	return nil
}

func (c *Platform) Status() Status {
	return Informational
}

func (c *Platform) Summary() string {
	return fmt.Sprintf("platform: %s, architecture: %s", runtime.GOOS, runtime.GOARCH)
}
