package player

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/genricoloni/mpris2mqtt/internal/domain"
	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"
)

const (
	mprisPrefix     = "org.mpris.MediaPlayer2."
	mprisObjectPath = "/org/mpris/MediaPlayer2"

	propIdentity = "org.mpris.MediaPlayer2.Identity"
	propStatus   = "org.mpris.MediaPlayer2.Player.PlaybackStatus"
	propMetadata = "org.mpris.MediaPlayer2.Player.Metadata"
)

// Source reads track metadata from the active MPRIS player.
// Every call looks the player up again, so players that start or quit between
// polls are picked up on the next call.
type Source struct {
	logger *zap.Logger
	dial   func() (DBusClient, error)

	mu   sync.Mutex
	conn DBusClient
}

// NewSource creates a player source backed by the D-Bus session bus
func NewSource(logger *zap.Logger) *Source {
	return &Source{
		logger: logger,
		dial:   dialSessionBus,
	}
}

// Snapshot returns the current metadata of the active player
func (s *Source) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, err := s.connection()
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("%w: session bus connection failed: %w", domain.ErrPlatformUnavailable, err)
	}

	player, err := s.findActive(ctx, conn)
	if err != nil {
		return domain.Snapshot{}, err
	}

	identity := s.identity(ctx, conn, player)
	s.logger.Debug("Found player",
		zap.String("identity", identity),
		zap.String("bus", player))

	variant, err := conn.GetProperty(ctx, player, mprisObjectPath, propMetadata)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("%w: %s: %w", domain.ErrMetadataUnavailable, player, err)
	}

	// Some players may return nil or unexpected types if not playing anything
	metadata, ok := variant.Value().(map[string]dbus.Variant)
	if !ok {
		return domain.Snapshot{}, fmt.Errorf("%w: %s returned %T instead of a map",
			domain.ErrMetadataUnavailable, player, variant.Value())
	}

	return s.parseMetadata(identity, metadata), nil
}

// Close releases the D-Bus connection
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// connection returns the open bus connection, dialing a new one if needed.
// Must be called with mu held.
func (s *Source) connection() (DBusClient, error) {
	if s.conn != nil {
		return s.conn, nil
	}
	conn, err := s.dial()
	if err != nil {
		return nil, err
	}
	s.conn = conn
	return conn, nil
}

// dropConnection forgets a connection that stopped answering so the next
// call dials again. Must be called with mu held.
func (s *Source) dropConnection() {
	if s.conn == nil {
		return
	}
	if err := s.conn.Close(); err != nil {
		s.logger.Debug("Failed to close stale D-Bus connection", zap.Error(err))
	}
	s.conn = nil
}

// findActive picks the player to read from: the first one playing, else the
// first one paused, else the first one with non-empty metadata, else the first
// one listed. Names are sorted so the choice is stable between polls.
func (s *Source) findActive(ctx context.Context, conn DBusClient) (string, error) {
	names, err := conn.ListNames(ctx)
	if err != nil {
		s.dropConnection()
		return "", fmt.Errorf("%w: failed to list bus names: %w", domain.ErrPlatformUnavailable, err)
	}

	var players []string
	for _, name := range names {
		if strings.HasPrefix(name, mprisPrefix) {
			players = append(players, name)
		}
	}
	if len(players) == 0 {
		return "", fmt.Errorf("%w on the session bus", domain.ErrNoPlayerFound)
	}
	slices.Sort(players)

	paused := ""
	for _, player := range players {
		switch s.status(ctx, conn, player) {
		case domain.StatusPlaying:
			return player, nil
		case domain.StatusPaused:
			if paused == "" {
				paused = player
			}
		}
	}
	if paused != "" {
		return paused, nil
	}

	for _, player := range players {
		if s.hasMetadata(ctx, conn, player) {
			return player, nil
		}
	}
	return players[0], nil
}

// status returns the playback status, or "" when it cannot be read
func (s *Source) status(ctx context.Context, conn DBusClient, player string) domain.PlayerStatus {
	variant, err := conn.GetProperty(ctx, player, mprisObjectPath, propStatus)
	if err != nil {
		s.logger.Debug("Failed to read playback status",
			zap.String("player", player),
			zap.Error(err))
		return ""
	}
	status, _ := variant.Value().(string)
	return domain.PlayerStatus(status)
}

func (s *Source) hasMetadata(ctx context.Context, conn DBusClient, player string) bool {
	variant, err := conn.GetProperty(ctx, player, mprisObjectPath, propMetadata)
	if err != nil {
		return false
	}
	metadata, ok := variant.Value().(map[string]dbus.Variant)
	return ok && len(metadata) > 0
}

// identity returns the human readable player name, falling back to the bus name
func (s *Source) identity(ctx context.Context, conn DBusClient, player string) string {
	variant, err := conn.GetProperty(ctx, player, mprisObjectPath, propIdentity)
	if err != nil {
		return player
	}
	if identity, ok := variant.Value().(string); ok && identity != "" {
		return identity
	}
	return player
}

// parseMetadata converts MPRIS metadata to a snapshot
func (s *Source) parseMetadata(player string, metadata map[string]dbus.Variant) domain.Snapshot {
	opts := []domain.SnapshotOption{domain.WithPlayer(player)}

	if titleVar, ok := metadata["xesam:title"]; ok {
		if title, ok := titleVar.Value().(string); ok {
			opts = append(opts, domain.WithTitle(title))
		}
	}

	// xesam:artist is a list, some non-compliant players send a plain string
	if artistVar, ok := metadata["xesam:artist"]; ok {
		switch artists := artistVar.Value().(type) {
		case []string:
			opts = append(opts, domain.WithArtists(artists...))
		case string:
			opts = append(opts, domain.WithArtists(artists))
		default:
			s.logger.Debug("Unexpected artist type in metadata",
				zap.String("type", fmt.Sprintf("%T", artistVar.Value())))
		}
	}

	if albumVar, ok := metadata["xesam:album"]; ok {
		if album, ok := albumVar.Value().(string); ok {
			opts = append(opts, domain.WithAlbum(album))
		}
	}

	// mpris:length is in microseconds; the type varies between players
	if lengthVar, ok := metadata["mpris:length"]; ok {
		switch length := lengthVar.Value().(type) {
		case int64:
			opts = append(opts, domain.WithLength(time.Duration(length)*time.Microsecond))
		case uint64:
			opts = append(opts, domain.WithLength(time.Duration(length)*time.Microsecond))
		case int32:
			opts = append(opts, domain.WithLength(time.Duration(length)*time.Microsecond))
		}
	}

	if artVar, ok := metadata["mpris:artUrl"]; ok {
		if artURL, ok := artVar.Value().(string); ok {
			opts = append(opts, domain.WithArtURL(artURL))
		}
	}

	return domain.NewSnapshot(opts...)
}
