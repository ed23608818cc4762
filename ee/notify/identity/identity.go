// Package identity describes how this process is addressed by the OS notification
// subsystem: its AUMID, display metadata, activator GUID and package identity status.
package identity

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrInvalidGUID is returned when an activator GUID is not a 36 character,
	// hyphenated UUID string.
	ErrInvalidGUID = errors.New("invalid activator guid")

	// ErrIdentityUnknown is returned when the OS could not say whether the
	// process runs with package identity.
	ErrIdentityUnknown = errors.New("package identity unknown")
)

// AppIdentity is fixed once the plugin is initialized.
type AppIdentity struct {
	AUMID              string
	DisplayName        string
	IconPath           string
	IconColor          string
	ActivatorGUID      string
	HasPackageIdentity bool
}

// PackageChecker reports whether the running process has package identity.
// Implementations return ErrIdentityUnknown rather than guessing.
type PackageChecker interface {
	HasPackageIdentity() (bool, error)
}

// PackageCheckerFunc adapts a function to PackageChecker.
type PackageCheckerFunc func() (bool, error)

func (f PackageCheckerFunc) HasPackageIdentity() (bool, error) {
	return f()
}

// ValidateGUID checks the canonical 8-4-4-4-12 form. Braced, URN and
// unhyphenated forms, which uuid.Parse would otherwise accept, are rejected.
func ValidateGUID(guid string) error {
	if len(guid) != 36 {
		return fmt.Errorf("%w: expected 36 characters, got %d", ErrInvalidGUID, len(guid))
	}

	for _, pos := range []int{8, 13, 18, 23} {
		if guid[pos] != '-' {
			return fmt.Errorf("%w: expected hyphen at position %d", ErrInvalidGUID, pos)
		}
	}

	if _, err := uuid.Parse(guid); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidGUID, err.Error())
	}

	return nil
}

// CLSID returns the guid in the braced, upper case form used by the registry.
func CLSID(guid string) string {
	return "{" + strings.ToUpper(guid) + "}"
}

// DefaultGUID derives a stable activator GUID for an AUMID, so callers who do
// not supply one get the same class id on every start.
func DefaultGUID(aumid string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("aumid:"+aumid)).String()
}

// Check runs checker and returns the identity with HasPackageIdentity filled in.
func (a AppIdentity) Check(checker PackageChecker) (AppIdentity, error) {
	hasIdentity, err := checker.HasPackageIdentity()
	if err != nil {
		return a, err
	}
	a.HasPackageIdentity = hasIdentity
	return a, nil
}
