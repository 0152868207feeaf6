//go:build linux
// +build linux

package player

import "github.com/godbus/dbus/v5"

// dialSessionBus opens a private connection to the session bus.
// The connection is owned by the Source, so closing it never affects other users.
func dialSessionBus() (DBusClient, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, err
	}
	return &StdDBusClient{conn: conn}, nil
}
