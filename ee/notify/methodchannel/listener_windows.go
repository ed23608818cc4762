//go:build windows
// +build windows

package methodchannel

import (
	"fmt"
	"net"
	"strings"

	"github.com/Microsoft/go-winio"
	"golang.org/x/sys/windows"
)

const (
	FILE_CREATE_PIPE_INSTANCE = 0x00000004
	// duplexPipeAccessPermissions includes read, write, and sync permissions, plus
	// FILE_CREATE_PIPE_INSTANCE to create the named pipe.
	duplexPipeAccessPermissions = windows.GENERIC_READ | windows.GENERIC_WRITE | windows.SYNCHRONIZE | FILE_CREATE_PIPE_INSTANCE
)

// listener opens a named pipe that only the current user and SYSTEM can use.
// The app and this process run as the same user.
func listener(pipePath string) (net.Listener, error) {
	token := windows.GetCurrentProcessToken()
	user, err := token.GetTokenUser()
	if err != nil {
		return nil, fmt.Errorf("getting current user: %w", err)
	}
	systemSid, err := windows.CreateWellKnownSid(windows.WinLocalSystemSid)
	if err != nil {
		return nil, fmt.Errorf("getting system SID: %w", err)
	}

	explicitAccessPolicies := []windows.EXPLICIT_ACCESS{
		{
			AccessPermissions: duplexPipeAccessPermissions,
			AccessMode:        windows.SET_ACCESS,
			Inheritance:       windows.NO_INHERITANCE,
			Trustee: windows.TRUSTEE{
				TrusteeForm:  windows.TRUSTEE_IS_SID,
				TrusteeType:  windows.TRUSTEE_IS_USER,
				TrusteeValue: windows.TrusteeValueFromSID(user.User.Sid),
			},
		},
		{
			AccessPermissions: duplexPipeAccessPermissions,
			AccessMode:        windows.SET_ACCESS,
			Inheritance:       windows.NO_INHERITANCE,
			Trustee: windows.TRUSTEE{
				TrusteeForm:  windows.TRUSTEE_IS_SID,
				TrusteeType:  windows.TRUSTEE_IS_GROUP,
				TrusteeValue: windows.TrusteeValueFromSID(systemSid),
			},
		},
	}

	sd, err := windows.BuildSecurityDescriptor(nil, nil, explicitAccessPolicies, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("building security descriptor: %w", err)
	}

	// BuildSecurityDescriptor appends "S:NO_ACCESS_CONTROL"; we don't want a SACL.
	sdStr := strings.ReplaceAll(sd.String(), "S:NO_ACCESS_CONTROL", "")

	cfg := &winio.PipeConfig{
		SecurityDescriptor: sdStr,
		InputBufferSize:    65536,
		OutputBufferSize:   65536,
	}
	return winio.ListenPipe(pipePath, cfg)
}

// Named pipes disappear with their last handle.
func removeSocket(string) error {
	return nil
}
