//go:build windows
// +build windows

package registration

import (
	"errors"
	"fmt"

	"golang.org/x/sys/windows/registry"
)

type currentUserRegistry struct{}

// NewCurrentUserRegistry returns a Registry rooted at HKEY_CURRENT_USER.
func NewCurrentUserRegistry() Registry {
	return currentUserRegistry{}
}

func (currentUserRegistry) SetStringValue(path, name, value string) error {
	key, _, err := registry.CreateKey(registry.CURRENT_USER, path, registry.SET_VALUE)
	if err != nil {
		return fmt.Errorf("creating key: %w", err)
	}
	defer key.Close()

	if err := key.SetStringValue(name, value); err != nil {
		return fmt.Errorf("setting value: %w", err)
	}
	return nil
}

// DeleteValue removes a value. A missing key or value is not an error.
func (currentUserRegistry) DeleteValue(path, name string) error {
	key, err := registry.OpenKey(registry.CURRENT_USER, path, registry.SET_VALUE)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("opening key: %w", err)
	}
	defer key.Close()

	if err := key.DeleteValue(name); err != nil && !errors.Is(err, registry.ErrNotExist) {
		return fmt.Errorf("deleting value: %w", err)
	}
	return nil
}

func (currentUserRegistry) GetStringValue(path, name string) (string, error) {
	key, err := registry.OpenKey(registry.CURRENT_USER, path, registry.QUERY_VALUE)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return "", ErrValueNotFound
		}
		return "", fmt.Errorf("opening key: %w", err)
	}
	defer key.Close()

	v, _, err := key.GetStringValue(name)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return "", ErrValueNotFound
		}
		return "", fmt.Errorf("reading value: %w", err)
	}
	return v, nil
}
