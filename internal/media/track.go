// Package media owns local capture devices and the tracks handed to peer
// connections.
package media

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog/log"
)

// Kind is the media kind of a track.
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

const streamID = "meet"

var (
	ErrDeviceUnavailable = errors.New("device unavailable")
	ErrUnknownCodec      = errors.New("unknown codec")
)

// Track is a local track that can be attached to any number of peer
// connections.
type Track interface {
	ID() string
	Kind() Kind
	Enabled() bool
	SetEnabled(enabled bool)
	// Local is the pion track written to peer connections.
	Local() webrtc.TrackLocal
	// Done is closed when the track stops, either because Stop was called or
	// because its device went away.
	Done() <-chan struct{}
	Stop()
}

// Sampler produces the next encoded sample of a track. Returning an error ends
// the track.
type Sampler interface {
	NextSample() (media.Sample, error)
}

// SamplerFunc adapts a function to Sampler.
type SamplerFunc func() (media.Sample, error)

func (f SamplerFunc) NextSample() (media.Sample, error) { return f() }

// TrackOptions configures NewTrack.
type TrackOptions struct {
	Kind     Kind
	MimeType string
	Sampler  Sampler
	Interval time.Duration
	// Inert tracks ignore the enabled flag and always emit what the sampler
	// yields (placeholder silence or nothing).
	Inert bool
	// Still is an optional preview frame for video tracks.
	Still image.Image
	// Closer releases the underlying device.
	Closer func() error
}

type sampleTrack struct {
	id      string
	kind    Kind
	local   *webrtc.TrackLocalStaticSample
	enabled atomic.Bool
	inert   bool
	still   image.Image

	closer   func() error
	done     chan struct{}
	stopOnce sync.Once
}

// NewTrack builds a track backed by a pion sample track. When opts.Sampler is
// set, a pump goroutine writes one sample per interval until the sampler
// fails or the track is stopped.
func NewTrack(opts TrackOptions) (Track, error) {
	mime := opts.MimeType
	if mime == "" {
		switch opts.Kind {
		case KindAudio:
			mime = webrtc.MimeTypeOpus
		case KindVideo:
			mime = webrtc.MimeTypeH264
		default:
			return nil, fmt.Errorf("%w: kind %q", ErrUnknownCodec, opts.Kind)
		}
	}

	id := uuid.NewString()
	local, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: mime}, id, streamID)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s track: %w", opts.Kind, err)
	}

	t := &sampleTrack{
		id:     id,
		kind:   opts.Kind,
		local:  local,
		inert:  opts.Inert,
		still:  opts.Still,
		closer: opts.Closer,
		done:   make(chan struct{}),
	}
	t.enabled.Store(!opts.Inert)

	if opts.Sampler != nil {
		interval := opts.Interval
		if interval <= 0 {
			interval = 20 * time.Millisecond
		}
		go t.pump(opts.Sampler, interval)
	}
	return t, nil
}

func (t *sampleTrack) ID() string               { return t.id }
func (t *sampleTrack) Kind() Kind               { return t.kind }
func (t *sampleTrack) Enabled() bool            { return t.enabled.Load() }
func (t *sampleTrack) SetEnabled(enabled bool)  { t.enabled.Store(enabled) }
func (t *sampleTrack) Local() webrtc.TrackLocal { return t.local }
func (t *sampleTrack) Done() <-chan struct{}    { return t.done }

func (t *sampleTrack) Stop() {
	t.stopOnce.Do(func() {
		close(t.done)
		if t.closer != nil {
			if err := t.closer(); err != nil {
				log.Debug().Err(err).Str("track", t.id).Msg("Failed to release device")
			}
		}
	})
}

func (t *sampleTrack) pump(s Sampler, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			sample, err := s.NextSample()
			if err != nil {
				log.Debug().Err(err).Str("track", t.id).Str("kind", string(t.kind)).Msg("Track source ended")
				t.Stop()
				return
			}
			if !t.inert && !t.Enabled() {
				continue
			}
			if err := t.local.WriteSample(sample); err != nil {
				log.Debug().Err(err).Str("track", t.id).Msg("Failed to write sample")
			}
		}
	}
}

// Still returns the preview frame of a video track, if it carries one.
func Still(t Track) (image.Image, bool) {
	st, ok := t.(*sampleTrack)
	if !ok || st.still == nil {
		return nil, false
	}
	return st.still, true
}

// Inert reports whether t is a placeholder whose output never changes.
func Inert(t Track) bool {
	st, ok := t.(*sampleTrack)
	return ok && st.inert
}
