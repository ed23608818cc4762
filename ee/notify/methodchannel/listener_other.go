//go:build !windows
// +build !windows

package methodchannel

import (
	"net"
	"os"
)

func listener(socketPath string) (net.Listener, error) {
	return net.Listen("unix", socketPath)
}

func removeSocket(socketPath string) error {
	return os.RemoveAll(socketPath)
}
