package engine

import (
	"slices"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/genricoloni/mpris2mqtt/internal/domain"
)

// trackKey is the part of a snapshot that decides whether subscribers need an
// update. Position, length and artwork are deliberately left out so progress
// updates never cause a publish.
type trackKey struct {
	title      string
	hasTitle   bool
	artists    []string
	hasArtists bool
	album      string
	hasAlbum   bool
}

func keyOf(s domain.Snapshot) trackKey {
	var k trackKey
	k.title, k.hasTitle = s.Title()
	k.artists, k.hasArtists = s.Artists()
	k.album, k.hasAlbum = s.Album()
	return k
}

func (k trackKey) equal(o trackKey) bool {
	return k.hasTitle == o.hasTitle && k.title == o.title &&
		k.hasArtists == o.hasArtists && slices.Equal(k.artists, o.artists) &&
		k.hasAlbum == o.hasAlbum && k.album == o.album
}

// IsUnchanged reports whether next carries the same title, artists and album as
// previous. A nil previous always counts as changed.
func IsUnchanged(next domain.Snapshot, previous *domain.Snapshot) bool {
	if previous == nil {
		return false
	}
	return keyOf(next).equal(keyOf(*previous))
}

// Fingerprint hashes the compared fields so log lines about the same track can
// be correlated. It is not used for equality.
func Fingerprint(s domain.Snapshot) string {
	k := keyOf(s)
	d := xxhash.New()
	writeField(d, k.hasTitle, k.title)
	_, _ = d.WriteString(strconv.FormatBool(k.hasArtists))
	_, _ = d.WriteString(strconv.Itoa(len(k.artists)))
	for _, a := range k.artists {
		writeField(d, true, a)
	}
	writeField(d, k.hasAlbum, k.album)
	return strconv.FormatUint(d.Sum64(), 16)
}

func writeField(d *xxhash.Digest, present bool, value string) {
	if !present {
		_, _ = d.WriteString("\x00-")
		return
	}
	_, _ = d.WriteString("\x00+")
	_, _ = d.WriteString(strconv.Itoa(len(value)))
	_, _ = d.WriteString(":")
	_, _ = d.WriteString(value)
}
