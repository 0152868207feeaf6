package domain

import (
	"slices"
	"time"
)

// PlayerStatus represents the current state of the media player
type PlayerStatus string

const (
	// StatusPlaying indicates the media is currently playing
	StatusPlaying PlayerStatus = "Playing"
	// StatusPaused indicates the media is paused
	StatusPaused PlayerStatus = "Paused"
	// StatusStopped indicates the media is stopped
	StatusStopped PlayerStatus = "Stopped"
)

// Snapshot is one immutable observation of the active player's track.
// Optional fields keep the distinction between absent and empty.
type Snapshot struct {
	title   *string
	artists []string // nil means absent
	album   *string

	// Reported by the player but never compared or published.
	player string
	length time.Duration
	artURL string
}

// SnapshotOption sets one field while a Snapshot is being built
type SnapshotOption func(*Snapshot)

// WithTitle sets the track title
func WithTitle(title string) SnapshotOption {
	return func(s *Snapshot) { s.title = &title }
}

// WithArtists sets the performer list. Calling it without names marks the
// list as present but empty.
func WithArtists(artists ...string) SnapshotOption {
	return func(s *Snapshot) {
		s.artists = make([]string, len(artists))
		copy(s.artists, artists)
	}
}

// WithAlbum sets the album name
func WithAlbum(album string) SnapshotOption {
	return func(s *Snapshot) { s.album = &album }
}

// WithPlayer records which player produced the snapshot
func WithPlayer(player string) SnapshotOption {
	return func(s *Snapshot) { s.player = player }
}

// WithLength records the track length
func WithLength(length time.Duration) SnapshotOption {
	return func(s *Snapshot) { s.length = length }
}

// WithArtURL records the artwork location
func WithArtURL(url string) SnapshotOption {
	return func(s *Snapshot) { s.artURL = url }
}

// NewSnapshot builds a Snapshot from the given options
func NewSnapshot(opts ...SnapshotOption) Snapshot {
	var s Snapshot
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Title returns the track title and whether the player reported one
func (s Snapshot) Title() (string, bool) {
	if s.title == nil {
		return "", false
	}
	return *s.title, true
}

// Artists returns a copy of the performer list and whether the player reported one
func (s Snapshot) Artists() ([]string, bool) {
	if s.artists == nil {
		return nil, false
	}
	return slices.Clone(s.artists), true
}

// Album returns the album name and whether the player reported one
func (s Snapshot) Album() (string, bool) {
	if s.album == nil {
		return "", false
	}
	return *s.album, true
}

// Player returns the identity of the player that produced the snapshot
func (s Snapshot) Player() string { return s.player }

// Length returns the track length, zero when unknown
func (s Snapshot) Length() time.Duration { return s.length }

// ArtURL returns the artwork location, empty when unknown
func (s Snapshot) ArtURL() string { return s.artURL }

// Fact is a single topic/value pair sent to the broker
type Fact struct {
	Topic string
	Value string
}

// BrokerEventKind classifies notifications coming out of the broker client
type BrokerEventKind string

const (
	// EventConnected is emitted when a connection is established
	EventConnected BrokerEventKind = "connected"
	// EventConnectionLost is emitted when an established connection drops
	EventConnectionLost BrokerEventKind = "connection_lost"
	// EventReconnecting is emitted before each reconnect attempt
	EventReconnecting BrokerEventKind = "reconnecting"
	// EventMessage is emitted for an inbound message
	EventMessage BrokerEventKind = "message"
)

// BrokerEvent is a notification emitted by the broker client
type BrokerEvent struct {
	Kind    BrokerEventKind
	Topic   string
	Payload []byte
	Err     error
}
