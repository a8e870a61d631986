package media

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Active names the source currently backing the local video.
type Active int

const (
	ActiveCamera Active = iota
	ActiveScreen
	ActivePlaceholder
)

func (a Active) String() string {
	switch a {
	case ActiveCamera:
		return "camera"
	case ActiveScreen:
		return "screen"
	case ActivePlaceholder:
		return "placeholder"
	default:
		return fmt.Sprintf("Active(%d)", int(a))
	}
}

// State is the local media state shown to the user and announced to peers.
type State struct {
	VideoEnabled  bool
	AudioEnabled  bool
	ScreenSharing bool
	Active        Active
}

// Tracks is what every peer connection should currently be sending. A nil
// field means nothing is sent for that kind.
type Tracks struct {
	Audio Track
	Video Track
}

// Get returns the track of kind k.
func (t Tracks) Get(k Kind) Track {
	if k == KindAudio {
		return t.Audio
	}
	return t.Video
}

// Empty reports whether no track is present.
func (t Tracks) Empty() bool {
	return t.Audio == nil && t.Video == nil
}

// Source owns every device handle. Switching between camera, screen and
// placeholder always stops the previous source before opening the next.
type Source struct {
	mu      sync.Mutex
	devices Devices
	log     zerolog.Logger
	state   State

	camera, mic, screen Track
	phAudio, phVideo    Track
	closed              bool
}

func NewSource(devices Devices, logger zerolog.Logger) *Source {
	return &Source{
		devices: devices,
		log:     logger.With().Str("component", "media").Logger(),
		state:   State{Active: ActiveCamera},
	}
}

// Start acquires the requested devices for a new call. Devices that cannot be
// opened are left off and reported in the returned error; when nothing could
// be acquired the placeholder pair is used.
func (s *Source) Start(video, audio bool) (Tracks, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if video {
		if err := s.openCamera(); err != nil {
			errs = append(errs, err)
		}
	}
	if audio {
		if err := s.openMic(); err != nil {
			errs = append(errs, err)
		}
	}

	if s.camera == nil && s.mic == nil {
		if err := s.usePlaceholder(); err != nil {
			errs = append(errs, err)
		}
	}
	return s.tracks(), errors.Join(errs...)
}

// CurrentTracks reflects camera, screen or placeholder.
func (s *Source) CurrentTracks() Tracks {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracks()
}

func (s *Source) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// EnsureTracks returns the current tracks, switching to the placeholder pair
// when nothing is active.
func (s *Source) EnsureTracks() (Tracks, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t := s.tracks(); !t.Empty() {
		return t, nil
	}
	if err := s.usePlaceholder(); err != nil {
		return Tracks{}, err
	}
	return s.tracks(), nil
}

// SetVideo turns the camera on or off. While sharing the screen only the
// preference is recorded. On failure the state is left as it was.
func (s *Source) SetVideo(on bool) (Tracks, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || on == s.state.VideoEnabled {
		return s.tracks(), nil
	}
	if s.state.ScreenSharing {
		s.state.VideoEnabled = on
		return s.tracks(), nil
	}

	if !on {
		stop(&s.camera)
		s.state.VideoEnabled = false
		return s.tracks(), nil
	}

	wasPlaceholder := s.state.Active == ActivePlaceholder
	stop(&s.phVideo)
	if err := s.openCamera(); err != nil {
		if wasPlaceholder {
			s.restorePlaceholder()
		}
		return s.tracks(), err
	}
	s.leavePlaceholder()
	return s.tracks(), nil
}

// SetAudio turns the microphone on or off.
func (s *Source) SetAudio(on bool) (Tracks, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || on == s.state.AudioEnabled {
		return s.tracks(), nil
	}

	if !on {
		stop(&s.mic)
		s.state.AudioEnabled = false
		return s.tracks(), nil
	}

	wasPlaceholder := s.state.Active == ActivePlaceholder
	stop(&s.phAudio)
	if err := s.openMic(); err != nil {
		if wasPlaceholder {
			s.restorePlaceholder()
		}
		return s.tracks(), err
	}
	s.leavePlaceholder()
	return s.tracks(), nil
}

// StartScreenShare replaces the camera (or placeholder) video with the screen.
// If the screen cannot be opened the previous video source is restored.
func (s *Source) StartScreenShare() (Tracks, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.state.ScreenSharing {
		return s.tracks(), nil
	}

	prev := s.state.Active
	stop(&s.camera)
	stop(&s.phVideo)

	track, err := s.devices.OpenScreen()
	if err != nil {
		err = fmt.Errorf("screen share: %w", err)
		switch {
		case prev == ActivePlaceholder:
			s.restorePlaceholder()
		case s.state.VideoEnabled:
			s.state.VideoEnabled = false
			if cerr := s.openCamera(); cerr != nil {
				err = errors.Join(err, cerr)
			}
		}
		return s.tracks(), err
	}

	s.screen = track
	s.state.ScreenSharing = true
	stop(&s.phAudio)
	s.state.Active = ActiveScreen
	return s.tracks(), nil
}

// StopScreenShare falls back to the camera when video or audio is enabled and
// to the placeholder otherwise.
func (s *Source) StopScreenShare() (Tracks, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || !s.state.ScreenSharing {
		return s.tracks(), nil
	}
	err := s.fallbackFromScreen()
	return s.tracks(), err
}

// TrackEnded handles a track that stopped on its own. A lost screen falls back
// like StopScreenShare; a lost camera or microphone switches everything to the
// placeholder. Tracks no longer owned by the source are ignored and changed is
// false.
func (s *Source) TrackEnded(t Track) (tracks Tracks, changed bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || t == nil {
		return s.tracks(), false, nil
	}

	switch t {
	case s.screen:
		s.log.Warn().Msg("Screen share ended")
		err = s.fallbackFromScreen()
		return s.tracks(), true, err
	case s.camera, s.mic:
		s.log.Warn().Str("kind", string(t.Kind())).Msg("Capture device lost, switching to placeholder")
		err = s.usePlaceholder()
		return s.tracks(), true, err
	default:
		return s.tracks(), false, nil
	}
}

// Close stops every track.
func (s *Source) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopAll()
	s.closed = true
}

func (s *Source) tracks() Tracks {
	var t Tracks
	switch {
	case s.screen != nil:
		t.Video = s.screen
	case s.camera != nil:
		t.Video = s.camera
	case s.phVideo != nil:
		t.Video = s.phVideo
	}
	switch {
	case s.mic != nil:
		t.Audio = s.mic
	case s.phAudio != nil:
		t.Audio = s.phAudio
	}
	return t
}

func (s *Source) openCamera() error {
	track, err := s.devices.OpenCamera()
	if err != nil {
		return fmt.Errorf("camera: %w", err)
	}
	s.camera = track
	s.state.VideoEnabled = true
	return nil
}

func (s *Source) openMic() error {
	track, err := s.devices.OpenMicrophone()
	if err != nil {
		return fmt.Errorf("microphone: %w", err)
	}
	s.mic = track
	s.state.AudioEnabled = true
	return nil
}

func (s *Source) fallbackFromScreen() error {
	stop(&s.screen)
	s.state.ScreenSharing = false
	s.state.Active = ActiveCamera

	if !s.state.VideoEnabled && !s.state.AudioEnabled {
		return s.usePlaceholder()
	}
	if s.state.VideoEnabled {
		s.state.VideoEnabled = false
		if err := s.openCamera(); err != nil {
			if s.mic == nil {
				return errors.Join(err, s.usePlaceholder())
			}
			return err
		}
	}
	return nil
}

func (s *Source) usePlaceholder() error {
	s.stopAll()
	s.state = State{Active: ActivePlaceholder}

	audio, video, err := GeneratePlaceholder()
	if err != nil {
		return err
	}
	s.phAudio, s.phVideo = audio, video
	return nil
}

// restorePlaceholder refills whichever placeholder track was stopped for a
// switch that did not go through.
func (s *Source) restorePlaceholder() {
	audio, video, err := GeneratePlaceholder()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to regenerate placeholder")
		return
	}
	if s.phAudio == nil && s.mic == nil {
		s.phAudio = audio
	} else {
		audio.Stop()
	}
	if s.phVideo == nil && s.camera == nil && s.screen == nil {
		s.phVideo = video
	} else {
		video.Stop()
	}
}

func (s *Source) leavePlaceholder() {
	stop(&s.phAudio)
	stop(&s.phVideo)
	if s.state.Active == ActivePlaceholder {
		s.state.Active = ActiveCamera
	}
}

func (s *Source) stopAll() {
	stop(&s.camera)
	stop(&s.mic)
	stop(&s.screen)
	stop(&s.phAudio)
	stop(&s.phVideo)
}

func stop(t *Track) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}
