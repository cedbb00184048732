package media

import (
	"sync"

	"github.com/google/uuid"
)

// Stream is the mutable set of local tracks for one call. It holds at most
// one track per kind; only the device manager mutates it, the negotiation
// engine reads it at attach time.
type Stream struct {
	id string

	mu     sync.Mutex
	tracks map[Kind]Track
}

// NewStream creates an empty stream with a fresh identifier.
func NewStream() *Stream {
	return &Stream{
		id:     uuid.NewString(),
		tracks: make(map[Kind]Track),
	}
}

// ID returns the stream identifier (used as the SDP msid).
func (s *Stream) ID() string { return s.id }

// Track returns the track of the given kind, if present.
func (s *Stream) Track(kind Kind) (Track, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tracks[kind]
	return t, ok
}

// Tracks returns a snapshot of all current tracks.
func (s *Stream) Tracks() []Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Track, 0, len(s.tracks))
	for _, k := range []Kind{KindVideo, KindAudio} {
		if t, ok := s.tracks[k]; ok {
			out = append(out, t)
		}
	}
	return out
}

// SetTrack places t in its kind slot, replacing any previous occupant. The
// previous track is returned so the caller can stop it after the sender has
// been repointed.
func (s *Stream) SetTrack(t Track) (previous Track) {
	s.mu.Lock()
	defer s.mu.Unlock()
	previous = s.tracks[t.Kind()]
	s.tracks[t.Kind()] = t
	return previous
}

// RemoveTrack drops the track of the given kind without stopping it.
func (s *Stream) RemoveTrack(kind Kind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tracks, kind)
}

// StopAll stops every track and empties the stream.
func (s *Stream) StopAll() {
	s.mu.Lock()
	tracks := make([]Track, 0, len(s.tracks))
	for _, t := range s.tracks {
		tracks = append(tracks, t)
	}
	s.tracks = make(map[Kind]Track)
	s.mu.Unlock()

	for _, t := range tracks {
		_ = t.Stop()
	}
}
