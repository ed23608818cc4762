//go:build windows
// +build windows

package identity

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

const (
	appModelErrorNoPackage = windows.Errno(15700)
)

var (
	modkernel32                   = windows.NewLazySystemDLL("kernel32.dll")
	procGetCurrentPackageFullName = modkernel32.NewProc("GetCurrentPackageFullName")
)

type osPackageChecker struct{}

// NewPackageChecker returns a checker backed by GetCurrentPackageFullName.
func NewPackageChecker() PackageChecker {
	return osPackageChecker{}
}

func (osPackageChecker) HasPackageIdentity() (bool, error) {
	if err := procGetCurrentPackageFullName.Find(); err != nil {
		// Pre-Windows 8 has no packaged apps at all
		return false, nil
	}

	var length uint32
	ret, _, _ := procGetCurrentPackageFullName.Call(uintptr(unsafe.Pointer(&length)), 0)
	switch windows.Errno(ret) {
	case appModelErrorNoPackage:
		return false, nil
	case windows.ERROR_INSUFFICIENT_BUFFER:
	default:
		return false, fmt.Errorf("%w: GetCurrentPackageFullName: %s", ErrIdentityUnknown, windows.Errno(ret).Error())
	}

	buf := make([]uint16, length)
	ret, _, _ = procGetCurrentPackageFullName.Call(uintptr(unsafe.Pointer(&length)), uintptr(unsafe.Pointer(&buf[0])))
	if ret != 0 {
		err := windows.Errno(ret)
		if errors.Is(err, appModelErrorNoPackage) {
			return false, nil
		}
		return false, fmt.Errorf("%w: GetCurrentPackageFullName: %s", ErrIdentityUnknown, err.Error())
	}

	return true, nil
}
