package media

import (
	"sort"
	"sync"
	"time"

	pion "github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// TrackStats summarises one received track.
type TrackStats struct {
	ID       string
	Kind     string
	Codec    string
	Packets  int
	Bytes    int64
	First    time.Time
	Last     time.Time
	Finished bool
}

// Sink consumes remote tracks and keeps per-track counters.
type Sink struct {
	mu     sync.Mutex
	tracks map[string]*TrackStats
	log    zerolog.Logger
}

func NewSink() *Sink {
	return &Sink{
		tracks: make(map[string]*TrackStats),
		log:    log.With().Str("module", "media").Logger(),
	}
}

// HandleTrack has the signature pion expects for OnTrack.
func (s *Sink) HandleTrack(track *pion.TrackRemote, _ *pion.RTPReceiver) {
	s.log.Info().Str("kind", track.Kind().String()).Str("codec", track.Codec().MimeType).Msg("remote track")
	go s.consume(track.ID(), track.Kind().String(), track.Codec().MimeType, func(b []byte) (int, error) {
		n, _, err := track.Read(b)
		return n, err
	})
}

func (s *Sink) consume(id, kind, codec string, read func([]byte) (int, error)) {
	s.mu.Lock()
	st := &TrackStats{ID: id, Kind: kind, Codec: codec}
	s.tracks[id] = st
	s.mu.Unlock()

	buf := make([]byte, 1500)
	for {
		n, err := read(buf)
		if err != nil {
			s.mu.Lock()
			st.Finished = true
			s.mu.Unlock()
			return
		}

		now := time.Now()
		s.mu.Lock()
		if st.Packets == 0 {
			st.First = now
		}
		st.Packets++
		st.Bytes += int64(n)
		st.Last = now
		s.mu.Unlock()
	}
}

// Stats returns a copy of the counters ordered by kind then id.
func (s *Sink) Stats() []TrackStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]TrackStats, 0, len(s.tracks))
	for _, st := range s.tracks {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].ID < out[j].ID
	})
	return out
}
