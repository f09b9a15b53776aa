// Package media provides local tracks for a call and counts what arrives from
// the remote side.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	pion "github.com/pion/webrtc/v4"
	pmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/BioHazard786/Warpcall/cli/internal/negotiation"
)

const (
	streamID      = "warpcall"
	opusFrame     = 20 * time.Millisecond
	opusClockRate = 48000
)

// Opus TOC byte for a 20ms silent frame.
var silenceFrame = []byte{0xf8, 0xff, 0xfe}

var (
	ErrUnsupportedAudio = errors.New("only Ogg Opus audio files are supported")
	ErrUnsupportedVideo = errors.New("only VP8 ivf files are supported")
)

// Source produces an Opus audio track and, when a file is given, a VP8 video
// track. Without an audio file the audio track carries silence.
type Source struct {
	AudioFile string
	VideoFile string

	log zerolog.Logger
}

var _ negotiation.MediaSource = (*Source)(nil)

func NewSource(audioFile, videoFile string) *Source {
	return &Source{
		AudioFile: audioFile,
		VideoFile: videoFile,
		log:       log.With().Str("module", "media").Logger(),
	}
}

// Acquire opens the configured files and starts pumping samples. Nothing is
// left running when it fails.
func (s *Source) Acquire(ctx context.Context) (negotiation.MediaHandle, error) {
	audio, err := pion.NewTrackLocalStaticSample(
		pion.RTPCodecCapability{MimeType: pion.MimeTypeOpus, ClockRate: opusClockRate, Channels: 2},
		"audio", streamID)
	if err != nil {
		return nil, err
	}

	h := &Handle{tracks: []pion.TrackLocal{audio}}
	pumpCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	h.cancel = cancel

	var audioPump func()
	if s.AudioFile != "" {
		f, err := os.Open(s.AudioFile)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("open audio file: %w", err)
		}
		h.files = append(h.files, f)
		if _, _, err := oggreader.NewWith(f); err != nil {
			h.Release()
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedAudio, err)
		}
		audioPump = func() { s.pumpOgg(pumpCtx, f, audio) }
	} else {
		audioPump = func() { s.pumpSilence(pumpCtx, audio) }
	}

	var videoPump func()
	if s.VideoFile != "" {
		f, err := os.Open(s.VideoFile)
		if err != nil {
			h.Release()
			return nil, fmt.Errorf("open video file: %w", err)
		}
		h.files = append(h.files, f)

		_, header, err := ivfreader.NewWith(f)
		if err != nil {
			h.Release()
			return nil, fmt.Errorf("read video file: %w", err)
		}
		if header.FourCC != "VP80" {
			h.Release()
			return nil, fmt.Errorf("%w: got %q", ErrUnsupportedVideo, header.FourCC)
		}

		video, err := pion.NewTrackLocalStaticSample(
			pion.RTPCodecCapability{MimeType: pion.MimeTypeVP8}, "video", streamID)
		if err != nil {
			h.Release()
			return nil, err
		}
		h.tracks = append(h.tracks, video)

		interval := time.Duration(float64(header.TimebaseNumerator)/float64(header.TimebaseDenominator)*1000) * time.Millisecond
		videoPump = func() { s.pumpIVF(pumpCtx, f, video, interval) }
	}

	h.run(audioPump)
	if videoPump != nil {
		h.run(videoPump)
	}

	s.log.Debug().Int("tracks", len(h.tracks)).Msg("local media acquired")
	return h, nil
}

func (s *Source) pumpSilence(ctx context.Context, track *pion.TrackLocalStaticSample) {
	ticker := time.NewTicker(opusFrame)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := track.WriteSample(pmedia.Sample{Data: silenceFrame, Duration: opusFrame}); err != nil {
				s.log.Debug().Err(err).Msg("audio write failed")
			}
		}
	}
}

// pumpOgg plays the file in a loop. A file without a single page stops the
// pump instead of rewinding forever.
func (s *Source) pumpOgg(ctx context.Context, f *os.File, track *pion.TrackLocalStaticSample) {
	ticker := time.NewTicker(opusFrame)
	defer ticker.Stop()

	for {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			s.log.Warn().Err(err).Msg("rewind audio file")
			return
		}
		ogg, _, err := oggreader.NewWith(f)
		if err != nil {
			s.log.Warn().Err(err).Msg("audio file is not ogg")
			return
		}

		var lastGranule uint64
		pages := 0
		for {
			page, header, err := ogg.ParseNextPage()
			if err != nil {
				break
			}
			pages++
			samples := header.GranulePosition - lastGranule
			lastGranule = header.GranulePosition
			duration := time.Duration(float64(samples)/opusClockRate*1000) * time.Millisecond

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if err := track.WriteSample(pmedia.Sample{Data: page, Duration: duration}); err != nil {
				s.log.Debug().Err(err).Msg("audio write failed")
			}
		}
		if pages == 0 {
			s.log.Warn().Str("file", f.Name()).Msg("audio file has no pages, stopping audio")
			return
		}
	}
}

// pumpIVF plays the file in a loop, stopping when a pass yields no frames.
func (s *Source) pumpIVF(ctx context.Context, f *os.File, track *pion.TrackLocalStaticSample, interval time.Duration) {
	if interval <= 0 {
		interval = 33 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			s.log.Warn().Err(err).Msg("rewind video file")
			return
		}
		ivf, _, err := ivfreader.NewWith(f)
		if err != nil {
			s.log.Warn().Err(err).Msg("video file is not ivf")
			return
		}

		frames := 0
		for {
			frame, _, err := ivf.ParseNextFrame()
			if err != nil {
				break
			}
			frames++

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if err := track.WriteSample(pmedia.Sample{Data: frame, Duration: interval}); err != nil {
				s.log.Debug().Err(err).Msg("video write failed")
			}
		}
		if frames == 0 {
			s.log.Warn().Str("file", f.Name()).Msg("video file has no frames, stopping video")
			return
		}
	}
}

// Handle owns the tracks and pumps of one acquisition.
type Handle struct {
	tracks []pion.TrackLocal
	files  []*os.File
	cancel context.CancelFunc
	wg     sync.WaitGroup
	live   atomic.Int32
	once   sync.Once
}

var _ negotiation.MediaHandle = (*Handle)(nil)

func (h *Handle) run(fn func()) {
	h.wg.Add(1)
	h.live.Add(1)
	go func() {
		defer h.wg.Done()
		defer h.live.Add(-1)
		fn()
	}()
}

func (h *Handle) Tracks() []pion.TrackLocal { return h.tracks }

// Release stops the pumps and closes the files. It is safe to call twice.
func (h *Handle) Release() {
	h.once.Do(func() {
		h.cancel()
		h.wg.Wait()
		for _, f := range h.files {
			f.Close()
		}
	})
}
