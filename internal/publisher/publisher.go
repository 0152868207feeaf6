package publisher

import (
	"context"
	"fmt"
	"strings"

	"github.com/genricoloni/mpris2mqtt/internal/domain"
	"go.uber.org/zap"
)

const (
	// TopicTitle carries the track title
	TopicTitle = "music/title"
	// TopicArtist carries the performers joined with ", "
	TopicArtist = "music/artist"
	// TopicAlbum carries the album name
	TopicAlbum = "music/album"
	// TopicSource carries the host name of the machine playing the track
	TopicSource = "music/source"

	// Placeholder is sent for any missing track field
	Placeholder = "N/A"

	artistSeparator = ", "
)

// HostnameFunc resolves the name of the machine the player runs on
type HostnameFunc func() (string, error)

// Publisher turns snapshots into retained messages on the music/* topics
type Publisher struct {
	logger   *zap.Logger
	broker   domain.Broker
	hostname HostnameFunc
}

// New creates a new Publisher
func New(logger *zap.Logger, broker domain.Broker, hostname HostnameFunc) *Publisher {
	return &Publisher{
		logger:   logger,
		broker:   broker,
		hostname: hostname,
	}
}

// PublishPlaceholder announces that nothing is known yet
func (p *Publisher) PublishPlaceholder(ctx context.Context) error {
	return p.send(ctx, []domain.Fact{{Topic: TopicTitle, Value: Placeholder}})
}

// Publish sends title, artist, album and source in that order. The source is
// skipped when the host name cannot be resolved.
func (p *Publisher) Publish(ctx context.Context, snapshot domain.Snapshot) error {
	host, err := p.resolveHost()
	if err != nil {
		p.logger.Warn("Skipping source topic",
			zap.String("kind", domain.ErrorKind(err)),
			zap.Error(err))
	}

	return p.send(ctx, Facts(snapshot, host, err == nil))
}

// Facts maps a snapshot onto the messages to publish
func Facts(snapshot domain.Snapshot, host string, hasHost bool) []domain.Fact {
	facts := make([]domain.Fact, 0, 4)

	title, ok := snapshot.Title()
	facts = append(facts, domain.Fact{Topic: TopicTitle, Value: orPlaceholder(title, ok)})

	artists, ok := snapshot.Artists()
	facts = append(facts, domain.Fact{Topic: TopicArtist, Value: orPlaceholder(strings.Join(artists, artistSeparator), ok)})

	album, ok := snapshot.Album()
	facts = append(facts, domain.Fact{Topic: TopicAlbum, Value: orPlaceholder(album, ok)})

	if hasHost {
		facts = append(facts, domain.Fact{Topic: TopicSource, Value: host})
	}
	return facts
}

func (p *Publisher) send(ctx context.Context, facts []domain.Fact) error {
	for _, fact := range facts {
		if err := p.broker.Publish(ctx, fact); err != nil {
			return fmt.Errorf("%w: %s: %w", domain.ErrPublish, fact.Topic, err)
		}
		p.logger.Debug("Published", zap.String("topic", fact.Topic), zap.String("value", fact.Value))
	}
	return nil
}

func (p *Publisher) resolveHost() (string, error) {
	host, err := p.hostname()
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrHostResolution, err)
	}
	if host == "" {
		return "", fmt.Errorf("%w: empty host name", domain.ErrHostResolution)
	}
	return host, nil
}

func orPlaceholder(value string, ok bool) string {
	if !ok {
		return Placeholder
	}
	return value
}
