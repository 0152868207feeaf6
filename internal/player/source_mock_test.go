package player

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/genricoloni/mpris2mqtt/internal/domain"
	"github.com/genricoloni/mpris2mqtt/internal/player/mocks"
	"github.com/godbus/dbus/v5"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

func newTestSource(client DBusClient) *Source {
	src := NewSource(zap.NewNop())
	src.dial = func() (DBusClient, error) { return client, nil }
	return src
}

func expectStatus(m *mocks.MockDBusClient, player, status string) {
	m.EXPECT().GetProperty(gomock.Any(), player, mprisObjectPath, propStatus).
		Return(dbus.MakeVariant(status), nil)
}

func expectIdentity(m *mocks.MockDBusClient, player, identity string) {
	m.EXPECT().GetProperty(gomock.Any(), player, mprisObjectPath, propIdentity).
		Return(dbus.MakeVariant(identity), nil)
}

func expectMetadata(m *mocks.MockDBusClient, player, title string) {
	m.EXPECT().GetProperty(gomock.Any(), player, mprisObjectPath, propMetadata).
		Return(dbus.MakeVariant(map[string]dbus.Variant{
			"xesam:title": dbus.MakeVariant(title),
		}), nil)
}

// TestSnapshot unifies the metadata fetching scenarios:
// 1. Success (Happy Path)
// 2. Bus errors
// 3. Player errors and invalid data
func TestSnapshot(t *testing.T) {
	spotify := "org.mpris.MediaPlayer2.spotify"

	tests := []struct {
		name          string
		setupMock     func(*mocks.MockDBusClient)
		expectedError error
		check         func(*testing.T, domain.Snapshot)
	}{
		{
			name: "Success - Valid Metadata",
			setupMock: func(m *mocks.MockDBusClient) {
				m.EXPECT().ListNames(gomock.Any()).Return([]string{
					"org.freedesktop.DBus",
					spotify,
					"com.example.OtherApp",
				}, nil)
				expectStatus(m, spotify, "Playing")
				expectIdentity(m, spotify, "Spotify")
				m.EXPECT().GetProperty(gomock.Any(), spotify, mprisObjectPath, propMetadata).
					Return(dbus.MakeVariant(map[string]dbus.Variant{
						"xesam:title":  dbus.MakeVariant("Stairway to Heaven"),
						"xesam:artist": dbus.MakeVariant([]string{"Led Zeppelin"}),
						"xesam:album":  dbus.MakeVariant("Led Zeppelin IV"),
					}), nil)
			},
			check: func(t *testing.T, s domain.Snapshot) {
				if title, _ := s.Title(); title != "Stairway to Heaven" {
					t.Errorf("Title mismatch: got %q", title)
				}
				if artists, _ := s.Artists(); len(artists) != 1 || artists[0] != "Led Zeppelin" {
					t.Errorf("Artists mismatch: got %v", artists)
				}
				if album, _ := s.Album(); album != "Led Zeppelin IV" {
					t.Errorf("Album mismatch: got %q", album)
				}
				if s.Player() != "Spotify" {
					t.Errorf("Player mismatch: got %q", s.Player())
				}
			},
		},
		{
			name: "Bus Error - ListNames fails",
			setupMock: func(m *mocks.MockDBusClient) {
				m.EXPECT().ListNames(gomock.Any()).Return(nil, fmt.Errorf("bus error"))
				m.EXPECT().Close().Return(nil)
			},
			expectedError: domain.ErrPlatformUnavailable,
		},
		{
			name: "No Player - Only Non-MPRIS Names",
			setupMock: func(m *mocks.MockDBusClient) {
				m.EXPECT().ListNames(gomock.Any()).Return([]string{"org.freedesktop.DBus", ":1.42"}, nil)
			},
			expectedError: domain.ErrNoPlayerFound,
		},
		{
			name: "Player Error - Metadata Query Fails",
			setupMock: func(m *mocks.MockDBusClient) {
				m.EXPECT().ListNames(gomock.Any()).Return([]string{spotify}, nil)
				expectStatus(m, spotify, "Playing")
				expectIdentity(m, spotify, "Spotify")
				m.EXPECT().GetProperty(gomock.Any(), spotify, mprisObjectPath, propMetadata).
					Return(dbus.MakeVariant(""), fmt.Errorf("connection timeout"))
			},
			expectedError: domain.ErrMetadataUnavailable,
		},
		{
			name: "Invalid Data - Metadata is Int not Map",
			setupMock: func(m *mocks.MockDBusClient) {
				m.EXPECT().ListNames(gomock.Any()).Return([]string{spotify}, nil)
				expectStatus(m, spotify, "Paused")
				expectIdentity(m, spotify, "Spotify")
				m.EXPECT().GetProperty(gomock.Any(), spotify, mprisObjectPath, propMetadata).
					Return(dbus.MakeVariant(12345), nil)
			},
			expectedError: domain.ErrMetadataUnavailable,
		},
		{
			name: "Identity Unavailable - Falls Back To Bus Name",
			setupMock: func(m *mocks.MockDBusClient) {
				m.EXPECT().ListNames(gomock.Any()).Return([]string{spotify}, nil)
				expectStatus(m, spotify, "Playing")
				m.EXPECT().GetProperty(gomock.Any(), spotify, mprisObjectPath, propIdentity).
					Return(dbus.MakeVariant(""), fmt.Errorf("no such property"))
				expectMetadata(m, spotify, "Song")
			},
			check: func(t *testing.T, s domain.Snapshot) {
				if s.Player() != spotify {
					t.Errorf("expected bus name fallback, got %q", s.Player())
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			mockClient := mocks.NewMockDBusClient(ctrl)
			tt.setupMock(mockClient)

			src := newTestSource(mockClient)
			snapshot, err := src.Snapshot(context.Background())

			if tt.expectedError != nil {
				if !errors.Is(err, tt.expectedError) {
					t.Fatalf("expected error wrapping %v, got %v", tt.expectedError, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if tt.check != nil {
				tt.check(t, snapshot)
			}
		})
	}
}

func expectNoMetadata(m *mocks.MockDBusClient, player string) {
	m.EXPECT().GetProperty(gomock.Any(), player, mprisObjectPath, propMetadata).
		Return(dbus.MakeVariant(map[string]dbus.Variant{}), nil)
}

// TestFindActive verifies the Playing > Paused > has metadata > first listed priority.
func TestFindActive(t *testing.T) {
	tests := []struct {
		name      string
		names     []string
		setupMock func(*mocks.MockDBusClient)
		expected  string
	}{
		{
			name:  "Playing Wins Over Paused And Stopped",
			names: []string{"org.mpris.MediaPlayer2.vlc", "org.mpris.MediaPlayer2.mpv", "org.mpris.MediaPlayer2.spotify"},
			setupMock: func(m *mocks.MockDBusClient) {
				// Sorted order: mpv, spotify, vlc
				expectStatus(m, "org.mpris.MediaPlayer2.mpv", "Stopped")
				expectStatus(m, "org.mpris.MediaPlayer2.spotify", "Paused")
				expectStatus(m, "org.mpris.MediaPlayer2.vlc", "Playing")
			},
			expected: "org.mpris.MediaPlayer2.vlc",
		},
		{
			name:  "Paused Wins Over Stopped",
			names: []string{"org.mpris.MediaPlayer2.b", "org.mpris.MediaPlayer2.a"},
			setupMock: func(m *mocks.MockDBusClient) {
				expectStatus(m, "org.mpris.MediaPlayer2.a", "Stopped")
				expectStatus(m, "org.mpris.MediaPlayer2.b", "Paused")
			},
			expected: "org.mpris.MediaPlayer2.b",
		},
		{
			name:  "First Playing Stops The Scan",
			names: []string{"org.mpris.MediaPlayer2.a", "org.mpris.MediaPlayer2.b"},
			setupMock: func(m *mocks.MockDBusClient) {
				expectStatus(m, "org.mpris.MediaPlayer2.a", "Playing")
			},
			expected: "org.mpris.MediaPlayer2.a",
		},
		{
			name:  "Non-Empty Metadata Wins Over Empty",
			names: []string{"org.mpris.MediaPlayer2.a", "org.mpris.MediaPlayer2.b"},
			setupMock: func(m *mocks.MockDBusClient) {
				m.EXPECT().GetProperty(gomock.Any(), "org.mpris.MediaPlayer2.a", mprisObjectPath, propStatus).
					Return(dbus.MakeVariant(""), fmt.Errorf("timeout"))
				expectStatus(m, "org.mpris.MediaPlayer2.b", "Stopped")
				expectNoMetadata(m, "org.mpris.MediaPlayer2.a")
				expectMetadata(m, "org.mpris.MediaPlayer2.b", "Song")
			},
			expected: "org.mpris.MediaPlayer2.b",
		},
		{
			name:  "All Unreadable Falls Back To First",
			names: []string{"org.mpris.MediaPlayer2.b", "org.mpris.MediaPlayer2.a"},
			setupMock: func(m *mocks.MockDBusClient) {
				m.EXPECT().GetProperty(gomock.Any(), gomock.Any(), mprisObjectPath, propStatus).
					Return(dbus.MakeVariant(""), fmt.Errorf("timeout")).Times(2)
				m.EXPECT().GetProperty(gomock.Any(), gomock.Any(), mprisObjectPath, propMetadata).
					Return(dbus.MakeVariant(""), fmt.Errorf("timeout")).Times(2)
			},
			expected: "org.mpris.MediaPlayer2.a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			mockClient := mocks.NewMockDBusClient(ctrl)
			mockClient.EXPECT().ListNames(gomock.Any()).Return(tt.names, nil)
			tt.setupMock(mockClient)

			src := newTestSource(mockClient)
			got, err := src.findActive(context.Background(), mockClient)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, got)
			}
		})
	}
}

// TestSnapshot_Reconnects verifies that a dead bus connection is dropped and
// redialed on the next poll instead of being cached forever.
func TestSnapshot_Reconnects(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	stale := mocks.NewMockDBusClient(ctrl)
	stale.EXPECT().ListNames(gomock.Any()).Return(nil, fmt.Errorf("connection closed"))
	stale.EXPECT().Close().Return(nil)

	fresh := mocks.NewMockDBusClient(ctrl)
	fresh.EXPECT().ListNames(gomock.Any()).Return([]string{"org.mpris.MediaPlayer2.mpv"}, nil)
	expectStatus(fresh, "org.mpris.MediaPlayer2.mpv", "Playing")
	expectIdentity(fresh, "org.mpris.MediaPlayer2.mpv", "mpv")
	expectMetadata(fresh, "org.mpris.MediaPlayer2.mpv", "Song A")

	dials := 0
	src := NewSource(zap.NewNop())
	src.dial = func() (DBusClient, error) {
		dials++
		if dials == 1 {
			return stale, nil
		}
		return fresh, nil
	}

	if _, err := src.Snapshot(context.Background()); !errors.Is(err, domain.ErrPlatformUnavailable) {
		t.Fatalf("expected platform error on first poll, got %v", err)
	}

	snapshot, err := src.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error on second poll: %v", err)
	}
	if title, _ := snapshot.Title(); title != "Song A" {
		t.Errorf("expected title from fresh connection, got %q", title)
	}
	if dials != 2 {
		t.Errorf("expected 2 dials, got %d", dials)
	}
}

func TestSnapshot_DialFailure(t *testing.T) {
	src := NewSource(zap.NewNop())
	src.dial = func() (DBusClient, error) { return nil, fmt.Errorf("no DBUS_SESSION_BUS_ADDRESS") }

	_, err := src.Snapshot(context.Background())
	if !errors.Is(err, domain.ErrPlatformUnavailable) {
		t.Fatalf("expected platform error, got %v", err)
	}
}

func TestClose(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockClient := mocks.NewMockDBusClient(ctrl)
	mockClient.EXPECT().ListNames(gomock.Any()).Return(nil, nil)
	mockClient.EXPECT().Close().Return(nil).Times(1)

	src := newTestSource(mockClient)
	if _, err := src.Snapshot(context.Background()); !errors.Is(err, domain.ErrNoPlayerFound) {
		t.Fatalf("expected no player, got %v", err)
	}

	if err := src.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	// Second close is a no-op
	if err := src.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}
