//go:build !windows
// +build !windows

package identity

type osPackageChecker struct{}

// NewPackageChecker returns a checker that always reports package identity.
// Freedesktop notification servers address applications by name, so there is
// nothing to register and history is tracked in-process.
func NewPackageChecker() PackageChecker {
	return osPackageChecker{}
}

func (osPackageChecker) HasPackageIdentity() (bool, error) {
	return true, nil
}
