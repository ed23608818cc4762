package registration

import (
	"fmt"

	"github.com/kolide/localnotify/ee/agent/types"
)

// storeRegistry keeps registry values in a key-value store. It backs
// registration on platforms without a registry, and in tests.
type storeRegistry struct {
	store types.GetterSetterDeleter
}

func NewStoreRegistry(store types.GetterSetterDeleter) *storeRegistry {
	return &storeRegistry{store: store}
}

func storeKey(path, name string) []byte {
	return []byte(path + "\x00" + name)
}

func (s *storeRegistry) SetStringValue(path, name, value string) error {
	if err := s.store.Set(storeKey(path, name), []byte(value)); err != nil {
		return fmt.Errorf("setting value: %w", err)
	}
	return nil
}

func (s *storeRegistry) DeleteValue(path, name string) error {
	if err := s.store.Delete(storeKey(path, name)); err != nil {
		return fmt.Errorf("deleting value: %w", err)
	}
	return nil
}

func (s *storeRegistry) GetStringValue(path, name string) (string, error) {
	v, err := s.store.Get(storeKey(path, name))
	if err != nil {
		return "", fmt.Errorf("getting value: %w", err)
	}
	if v == nil {
		return "", ErrValueNotFound
	}
	return string(v), nil
}
