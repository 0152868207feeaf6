//go:build !linux
// +build !linux

package player

import "fmt"

// dialSessionBus always fails: MPRIS is only exposed on Linux desktops
func dialSessionBus() (DBusClient, error) {
	return nil, fmt.Errorf("MPRIS is only supported on Linux systems")
}
