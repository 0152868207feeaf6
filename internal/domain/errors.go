package domain

import "errors"

var (
	// ErrPlatformUnavailable means the desktop bus could not be reached at all
	ErrPlatformUnavailable = errors.New("platform unavailable")
	// ErrNoPlayerFound means the bus works but no media player is running
	ErrNoPlayerFound = errors.New("no player found")
	// ErrMetadataUnavailable means a player was found but did not answer its track query
	ErrMetadataUnavailable = errors.New("metadata unavailable")
	// ErrBrokerUnavailable means a send could not be handed to the broker
	// because the connection is not up
	ErrBrokerUnavailable = errors.New("broker unavailable")
	// ErrPublish means the broker rejected a send
	ErrPublish = errors.New("publish failed")
	// ErrHostResolution means the local host name could not be determined
	ErrHostResolution = errors.New("host resolution failed")
)

// ErrorKind returns a short label for the sentinel wrapped by err, for log fields
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrPlatformUnavailable):
		return "platform_unavailable"
	case errors.Is(err, ErrNoPlayerFound):
		return "no_player_found"
	case errors.Is(err, ErrMetadataUnavailable):
		return "metadata_unavailable"
	case errors.Is(err, ErrBrokerUnavailable):
		return "broker_unavailable"
	case errors.Is(err, ErrPublish):
		return "publish_error"
	case errors.Is(err, ErrHostResolution):
		return "host_resolution_error"
	default:
		return "unknown"
	}
}
