package plugin

import (
	"encoding/json"
	"fmt"

	"github.com/kolide/localnotify/ee/agent/types"
)

var configKey = []byte("config")

// saveConfig records the last config that initialized successfully, so a
// process started by the OS to deliver an activation can initialize itself.
func (p *Plugin) saveConfig(cfg Config) error {
	if p.configStore == nil {
		return nil
	}

	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	return p.configStore.Set(configKey, raw)
}

// LoadConfig returns the config saved by the last successful Initialize, and
// false if there is none.
func LoadConfig(store types.Getter) (Config, bool, error) {
	raw, err := store.Get(configKey)
	if err != nil {
		return Config{}, false, fmt.Errorf("reading saved config: %w", err)
	}
	if len(raw) == 0 {
		return Config{}, false, nil
	}

	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, false, fmt.Errorf("parsing saved config: %w", err)
	}
	return cfg, true, nil
}
