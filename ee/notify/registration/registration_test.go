package registration

import (
	"errors"
	"testing"

	"github.com/kolide/localnotify/ee/agent/storage/inmemory"
	"github.com/kolide/localnotify/ee/notify/identity"
	"github.com/stretchr/testify/require"
)

const testGUID = "b2f1d3c4-5e6f-4a1b-9c8d-7e6f5a4b3c2d"

func testIdentity() identity.AppIdentity {
	return identity.AppIdentity{
		AUMID:         "com.example.app",
		DisplayName:   "Example",
		IconPath:      `C:\icons\example.png`,
		IconColor:     "FF00FF00",
		ActivatorGUID: testGUID,
	}
}

func dump(t *testing.T, s interface {
	ForEach(fn func(k, v []byte) error) error
}) map[string]string {
	out := make(map[string]string)
	require.NoError(t, s.ForEach(func(k, v []byte) error {
		out[string(k)] = string(v)
		return nil
	}))
	return out
}

func TestRegisterApp(t *testing.T) {
	t.Parallel()

	store := inmemory.NewStore()
	reg := NewStoreRegistry(store)

	require.NoError(t, RegisterApp(reg, testIdentity(), `C:\Program Files\Example\example.exe`))

	var expected = []struct {
		path, name, value string
	}{
		{`Software\Microsoft\Windows\CurrentVersion\PushNotifications\Backup\com.example.app`, "appType", "app:desktop"},
		{`Software\Microsoft\Windows\CurrentVersion\PushNotifications\Backup\com.example.app`, "Setting", "s:banner,s:toast,s:audio,c:toast,c:ringing"},
		{`Software\Microsoft\Windows\CurrentVersion\PushNotifications\Backup\com.example.app`, "wnsId", "NonImmersivePackage"},
		{`Software\Classes\AppUserModelId\com.example.app`, "DisplayName", "Example"},
		{`Software\Classes\AppUserModelId\com.example.app`, "IconUri", `C:\icons\example.png`},
		{`Software\Classes\AppUserModelId\com.example.app`, "IconBackgroundColor", "FF00FF00"},
		{`Software\Classes\AppUserModelId\com.example.app`, "CustomActivator", "{B2F1D3C4-5E6F-4A1B-9C8D-7E6F5A4B3C2D}"},
		{`Software\Classes\CLSID\{B2F1D3C4-5E6F-4A1B-9C8D-7E6F5A4B3C2D}\LocalServer32`, "", `"C:\Program Files\Example\example.exe" -ToastActivated`},
	}

	for _, e := range expected {
		v, err := reg.GetStringValue(e.path, e.name)
		require.NoError(t, err, e.path+`\`+e.name)
		require.Equal(t, e.value, v)
	}

	guid, err := Verify(reg, "com.example.app")
	require.NoError(t, err)
	require.Equal(t, testGUID, guid)
}

func TestRegisterApp_Idempotent(t *testing.T) {
	t.Parallel()

	once := inmemory.NewStore()
	require.NoError(t, RegisterApp(NewStoreRegistry(once), testIdentity(), "app.exe"))

	twice := inmemory.NewStore()
	require.NoError(t, RegisterApp(NewStoreRegistry(twice), testIdentity(), "app.exe"))
	require.NoError(t, RegisterApp(NewStoreRegistry(twice), testIdentity(), "app.exe"))

	require.Equal(t, dump(t, once), dump(t, twice))
}

func TestRegisterApp_OptionalIcon(t *testing.T) {
	t.Parallel()

	reg := NewStoreRegistry(inmemory.NewStore())
	id := testIdentity()
	id.IconPath = ""
	id.IconColor = ""
	require.NoError(t, RegisterApp(reg, id, "app.exe"))

	_, err := reg.GetStringValue(AUMIDKey(id.AUMID), "IconUri")
	require.ErrorIs(t, err, ErrValueNotFound)
	_, err = reg.GetStringValue(AUMIDKey(id.AUMID), "IconBackgroundColor")
	require.ErrorIs(t, err, ErrValueNotFound)
}

func TestRegisterApp_DropsStaleIcon(t *testing.T) {
	t.Parallel()

	reg := NewStoreRegistry(inmemory.NewStore())
	require.NoError(t, RegisterApp(reg, testIdentity(), "app.exe"))

	id := testIdentity()
	id.IconPath = ""
	id.IconColor = ""
	require.NoError(t, RegisterApp(reg, id, "app.exe"))

	_, err := reg.GetStringValue(AUMIDKey(id.AUMID), "IconUri")
	require.ErrorIs(t, err, ErrValueNotFound, "a re-registration without an icon removes the old one")
	_, err = reg.GetStringValue(AUMIDKey(id.AUMID), "IconBackgroundColor")
	require.ErrorIs(t, err, ErrValueNotFound)

	display, err := reg.GetStringValue(AUMIDKey(id.AUMID), "DisplayName")
	require.NoError(t, err)
	require.Equal(t, "Example", display)
}

func TestRegisterApp_InvalidGUIDWritesNothing(t *testing.T) {
	t.Parallel()

	for _, guid := range []string{"", "not-a-guid", "{b2f1d3c4-5e6f-4a1b-9c8d-7e6f5a4b3c2d}", "b2f1d3c45e6f4a1b9c8d7e6f5a4b3c2d"} {
		store := inmemory.NewStore()
		id := testIdentity()
		id.ActivatorGUID = guid

		err := RegisterApp(NewStoreRegistry(store), id, "app.exe")
		require.ErrorIs(t, err, identity.ErrInvalidGUID, guid)
		require.Empty(t, dump(t, store), guid)
	}
}

type failingRegistry struct {
	failOn string
	writes int
}

func (f *failingRegistry) SetStringValue(path, name, value string) error {
	if name == f.failOn {
		return errors.New("access denied")
	}
	f.writes++
	return nil
}

func (f *failingRegistry) DeleteValue(path, name string) error {
	return nil
}

func (f *failingRegistry) GetStringValue(path, name string) (string, error) {
	return "", ErrValueNotFound
}

func TestRegisterApp_WriteFailurePropagates(t *testing.T) {
	t.Parallel()

	reg := &failingRegistry{failOn: "DisplayName"}
	err := RegisterApp(reg, testIdentity(), "app.exe")
	require.Error(t, err)
	require.Contains(t, err.Error(), "access denied")
	require.Equal(t, 3, reg.writes, "registration stops at the first failed write")
}

func TestVerify(t *testing.T) {
	t.Parallel()

	reg := NewStoreRegistry(inmemory.NewStore())

	_, err := Verify(reg, "com.example.app")
	require.ErrorIs(t, err, ErrNotRegistered)

	require.NoError(t, reg.SetStringValue(AUMIDKey("com.example.app"), "CustomActivator", "{garbage}"))
	_, err = Verify(reg, "com.example.app")
	require.ErrorIs(t, err, ErrNotRegistered)
}

func TestLocalServerCommand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		extraArgs []string
		expected  string
	}{
		{name: "no extra args", expected: `"C:\app\app.exe" -ToastActivated`},
		{
			name:      "plain",
			extraArgs: []string{"-root_directory", `C:\data`},
			expected:  `"C:\app\app.exe" -ToastActivated -root_directory C:\data`,
		},
		{
			name:      "spaces",
			extraArgs: []string{"-root_directory", `C:\Users\Jo Doe\AppData\Roaming\localnotify\`},
			expected:  `"C:\app\app.exe" -ToastActivated -root_directory "C:\Users\Jo Doe\AppData\Roaming\localnotify\\"`,
		},
		{
			name:      "quotes",
			extraArgs: []string{`say \"hi"`},
			expected:  `"C:\app\app.exe" -ToastActivated "say \\\"hi\""`,
		},
		{name: "empty", extraArgs: []string{""}, expected: `"C:\app\app.exe" -ToastActivated ""`},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.expected, LocalServerCommand(`C:\app\app.exe`, tt.extraArgs...))
		})
	}
}
