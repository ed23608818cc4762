package main

import (
	"context"
	"testing"

	"github.com/go-kit/kit/log"
	"github.com/kolide/localnotify/ee/agent/storage/inmemory"
	"github.com/kolide/localnotify/ee/notify/activation"
	"github.com/kolide/localnotify/ee/notify/identity"
	"github.com/kolide/localnotify/ee/notify/plugin"
	"github.com/kolide/localnotify/ee/notify/registration"
	"github.com/stretchr/testify/require"
)

const testGUID = "b2f1d3c4-5e6f-4a1b-9c8d-7e6f5a4b3c2d"

var initializedConfig = plugin.Config{AppName: "Example", AUMID: "com.example.app", GUID: testGUID}

func TestStartupConfig(t *testing.T) { // nolint:paralleltest
	rootDir := t.TempDir()

	// An earlier serve that was initialized by a client leaves its identity behind
	initialized := inmemory.NewStore()
	p := plugin.New(
		plugin.WithLogger(log.NewNopLogger()),
		plugin.WithConfigStore(initialized),
		plugin.WithRegistry(registration.NewStoreRegistry(inmemory.NewStore())),
		plugin.WithRegistrar(func(_ log.Logger, d *activation.Dispatcher) (activation.Registrar, func() error) {
			return d, func() error { return nil }
		}),
		plugin.WithExecutablePath(`C:\app\notifyd.exe`),
		plugin.WithToasterFactory(memoryToaster),
		plugin.WithPackageChecker(identity.PackageCheckerFunc(func() (bool, error) { return false, nil })),
	)
	require.NoError(t, p.Initialize(context.Background(), initializedConfig))
	require.NoError(t, p.Close())

	tests := []struct {
		name          string
		args          []string
		saved         bool
		expectedFound bool
		expected      plugin.Config
	}{
		{
			name:          "relaunch by the OS uses the saved identity",
			args:          []string{"-root_directory", rootDir, "-ToastActivated"},
			saved:         true,
			expectedFound: true,
			expected:      initializedConfig,
		},
		{
			name:          "relaunch before any initialize",
			args:          []string{"-root_directory", rootDir, "-ToastActivated"},
			expectedFound: false,
		},
		{
			name:          "flags win over the saved identity",
			args:          []string{"-root_directory", rootDir, "-aumid", "com.example.flags", "-guid", testGUID, "-icon_path", `C:\icon.png`},
			saved:         true,
			expectedFound: true,
			expected:      plugin.Config{AUMID: "com.example.flags", GUID: testGUID, IconPath: `C:\icon.png`},
		},
		{
			name:          "flags without a guid derive one",
			args:          []string{"-root_directory", rootDir, "-aumid", "com.example.flags"},
			expectedFound: true,
			expected:      plugin.Config{AUMID: "com.example.flags", GUID: identity.DefaultGUID("com.example.flags")},
		},
	}

	for _, tt := range tests { // nolint:paralleltest
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			opts, err := parseOptions(tt.args)
			require.NoError(t, err)

			store := inmemory.NewStore()
			if tt.saved {
				store = initialized
			}

			cfg, found, err := startupConfig(opts, store)
			require.NoError(t, err)
			require.Equal(t, tt.expectedFound, found)
			if tt.expectedFound {
				require.Equal(t, tt.expected, cfg)
			}
		})
	}
}
