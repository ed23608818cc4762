// Package registration writes the per-user registry entries that let the OS
// notification subsystem address an unpackaged app by AUMID and relaunch it
// through its COM activator.
package registration

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kolide/localnotify/ee/notify/identity"
)

// ErrNotRegistered is returned by Verify when the app's registration is absent or
// inconsistent.
var ErrNotRegistered = errors.New("app is not registered")

// ErrValueNotFound is returned by Registry implementations for a missing key or value.
var ErrValueNotFound = errors.New("registry value not found")

const (
	backupKeyPrefix     = `Software\Microsoft\Windows\CurrentVersion\PushNotifications\Backup\`
	aumidKeyPrefix      = `Software\Classes\AppUserModelId\`
	clsidKeyPrefix      = `Software\Classes\CLSID\`
	localServerSubkey   = `\LocalServer32`
	notificationSetting = "s:banner,s:toast,s:audio,c:toast,c:ringing"

	// ToastActivatedArg is appended to the LocalServer32 command line, so a
	// process launched by COM can tell it is an activation host.
	ToastActivatedArg = "-ToastActivated"
)

// Registry is the subset of a hierarchical string store that registration needs.
// The empty name addresses a key's default value. Deleting a missing value is
// not an error.
type Registry interface {
	SetStringValue(path, name, value string) error
	GetStringValue(path, name string) (string, error)
	DeleteValue(path, name string) error
}

// BackupKey is the notification settings subtree for aumid.
func BackupKey(aumid string) string {
	return backupKeyPrefix + aumid
}

// AUMIDKey is the display and activator subtree for aumid.
func AUMIDKey(aumid string) string {
	return aumidKeyPrefix + aumid
}

// LocalServerKey is the COM server key for the activator guid.
func LocalServerKey(guid string) string {
	return clsidKeyPrefix + identity.CLSID(guid) + localServerSubkey
}

// value is a registry write. A value with remove set is deleted instead, so
// optional values dropped from the identity do not linger.
type value struct {
	path, name, data string
	remove           bool
}

// RegisterApp writes the registration for id, overwriting prior values. The guid
// is validated before anything is written, so a malformed guid leaves the
// registry untouched. Any write failure aborts registration. extraArgs are
// appended to the activation command line.
func RegisterApp(reg Registry, id identity.AppIdentity, exePath string, extraArgs ...string) error {
	if err := identity.ValidateGUID(id.ActivatorGUID); err != nil {
		return err
	}

	if id.AUMID == "" {
		return errors.New("aumid is blank")
	}

	values := []value{
		{BackupKey(id.AUMID), "appType", "app:desktop", false},
		{BackupKey(id.AUMID), "Setting", notificationSetting, false},
		{BackupKey(id.AUMID), "wnsId", "NonImmersivePackage", false},
		{AUMIDKey(id.AUMID), "DisplayName", id.DisplayName, false},
	}

	values = append(values,
		value{AUMIDKey(id.AUMID), "IconUri", id.IconPath, id.IconPath == ""},
		value{AUMIDKey(id.AUMID), "IconBackgroundColor", id.IconColor, id.IconColor == ""},
	)

	values = append(values,
		value{AUMIDKey(id.AUMID), "CustomActivator", identity.CLSID(id.ActivatorGUID), false},
		value{LocalServerKey(id.ActivatorGUID), "", LocalServerCommand(exePath, extraArgs...), false},
	)

	for _, v := range values {
		if v.remove {
			if err := reg.DeleteValue(v.path, v.name); err != nil {
				return fmt.Errorf("deleting %s\\%s: %w", v.path, v.name, err)
			}
			continue
		}
		if err := reg.SetStringValue(v.path, v.name, v.data); err != nil {
			return fmt.Errorf("writing %s\\%s: %w", v.path, v.name, err)
		}
	}

	return nil
}

// LocalServerCommand is the command line COM runs to start an activation host.
func LocalServerCommand(exePath string, extraArgs ...string) string {
	command := fmt.Sprintf(`"%s" %s`, exePath, ToastActivatedArg)
	for _, arg := range extraArgs {
		command += " " + quoteArg(arg)
	}
	return command
}

// quoteArg quotes arg for a windows command line when it needs it. Backslashes
// are only special when they precede a quote.
func quoteArg(arg string) string {
	if arg != "" && !strings.ContainsAny(arg, " \t\"") {
		return arg
	}

	var b strings.Builder
	b.WriteByte('"')
	slashes := 0
	for _, r := range arg {
		switch r {
		case '\\':
			slashes++
		case '"':
			b.WriteString(strings.Repeat(`\`, slashes+1))
			slashes = 0
		default:
			slashes = 0
		}
		b.WriteRune(r)
	}
	b.WriteString(strings.Repeat(`\`, slashes))
	b.WriteByte('"')
	return b.String()
}

// Verify checks that aumid has a registered activator whose CLSID parses as a
// guid, and returns the guid.
func Verify(reg Registry, aumid string) (string, error) {
	clsid, err := reg.GetStringValue(AUMIDKey(aumid), "CustomActivator")
	if err != nil {
		return "", fmt.Errorf("%w: reading CustomActivator: %s", ErrNotRegistered, err.Error())
	}

	guid := strings.ToLower(strings.TrimSuffix(strings.TrimPrefix(clsid, "{"), "}"))
	if err := identity.ValidateGUID(guid); err != nil {
		return "", fmt.Errorf("%w: CustomActivator %q: %s", ErrNotRegistered, clsid, err.Error())
	}

	if _, err := reg.GetStringValue(BackupKey(aumid), "Setting"); err != nil {
		return "", fmt.Errorf("%w: reading notification settings: %s", ErrNotRegistered, err.Error())
	}

	return guid, nil
}
