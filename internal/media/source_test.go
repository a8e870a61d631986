package media_test

import (
	"errors"
	"testing"

	"github.com/jayramgit94/Zoom/internal/media"
	"github.com/jayramgit94/Zoom/internal/media/mediatest"
	"github.com/rs/zerolog"
)

func newSource(t *testing.T, devices *mediatest.Devices) *media.Source {
	t.Helper()
	src := media.NewSource(devices, zerolog.Nop())
	t.Cleanup(src.Close)
	return src
}

func TestStartAcquiresDevices(t *testing.T) {
	devices := &mediatest.Devices{}
	src := newSource(t, devices)

	tracks, err := src.Start(true, true)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if tracks.Video != devices.Last("camera") || tracks.Audio != devices.Last("microphone") {
		t.Error("Expected camera and microphone tracks")
	}
	want := media.State{VideoEnabled: true, AudioEnabled: true, Active: media.ActiveCamera}
	if got := src.State(); got != want {
		t.Errorf("State = %+v, want %+v", got, want)
	}
}

func TestStartFallsBackToPlaceholder(t *testing.T) {
	devices := &mediatest.Devices{FailCamera: true, FailMicrophone: true}
	src := newSource(t, devices)

	tracks, err := src.Start(true, true)
	if !errors.Is(err, media.ErrDeviceUnavailable) {
		t.Errorf("Expected ErrDeviceUnavailable, got %v", err)
	}
	if tracks.Audio == nil || tracks.Video == nil {
		t.Fatal("Expected a placeholder pair")
	}
	if !media.Inert(tracks.Audio) || !media.Inert(tracks.Video) {
		t.Error("Fallback tracks should be placeholders")
	}
	if src.State().Active != media.ActivePlaceholder {
		t.Errorf("Active = %s, want placeholder", src.State().Active)
	}
}

func TestToggleVideo(t *testing.T) {
	devices := &mediatest.Devices{}
	src := newSource(t, devices)
	src.Start(true, true)

	tracks, err := src.SetVideo(false)
	if err != nil {
		t.Fatalf("SetVideo(false): %v", err)
	}
	if tracks.Video != nil {
		t.Error("Video should be nil after turning it off")
	}
	if devices.Open("camera") != 0 {
		t.Error("Camera handle should be released")
	}

	tracks, err = src.SetVideo(true)
	if err != nil {
		t.Fatalf("SetVideo(true): %v", err)
	}
	if tracks.Video == nil || !tracks.Video.Enabled() {
		t.Error("Expected an enabled camera track")
	}
	if devices.OpenCount["camera"] != 2 {
		t.Errorf("Camera opened %d times, want 2", devices.OpenCount["camera"])
	}
}

func TestToggleRevertsOnDeviceError(t *testing.T) {
	devices := &mediatest.Devices{}
	src := newSource(t, devices)
	src.Start(false, true)
	before := src.CurrentTracks()

	devices.SetFail("camera", true)
	tracks, err := src.SetVideo(true)
	if !errors.Is(err, media.ErrDeviceUnavailable) {
		t.Fatalf("Expected ErrDeviceUnavailable, got %v", err)
	}
	if src.State().VideoEnabled {
		t.Error("VideoEnabled should revert to false")
	}
	if tracks != before {
		t.Error("Tracks should be unchanged after a failed toggle")
	}
}

func TestPlaceholderRestoredWhenLeavingFails(t *testing.T) {
	devices := &mediatest.Devices{FailCamera: true, FailMicrophone: true}
	src := newSource(t, devices)
	src.Start(true, true)

	tracks, err := src.SetVideo(true)
	if err == nil {
		t.Fatal("Expected camera error")
	}
	if tracks.Video == nil || !media.Inert(tracks.Video) {
		t.Error("Placeholder video should be restored after a failed switch")
	}
	if src.State().Active != media.ActivePlaceholder {
		t.Errorf("Active = %s, want placeholder", src.State().Active)
	}
}

func TestScreenShareReleasesCameraFirst(t *testing.T) {
	devices := &mediatest.Devices{}
	src := newSource(t, devices)
	src.Start(true, true)

	tracks, err := src.StartScreenShare()
	if err != nil {
		t.Fatalf("StartScreenShare: %v", err)
	}
	if tracks.Video != devices.Last("screen") {
		t.Error("Video should come from the screen")
	}
	if devices.Open("camera") != 0 {
		t.Error("Camera should be released while sharing")
	}

	tracks, err = src.StopScreenShare()
	if err != nil {
		t.Fatalf("StopScreenShare: %v", err)
	}
	if tracks.Video != devices.Last("camera") {
		t.Error("Video should fall back to the camera")
	}
	if devices.MaxVideoHandles() != 1 {
		t.Errorf("Camera and screen were held together (%d handles)", devices.MaxVideoHandles())
	}
	if s := src.State(); s.ScreenSharing || s.Active != media.ActiveCamera {
		t.Errorf("Unexpected state %+v", s)
	}
}

func TestScreenEndedFallsBackToPlaceholder(t *testing.T) {
	devices := &mediatest.Devices{}
	src := newSource(t, devices)
	src.Start(false, false)
	src.SetAudio(true)
	src.SetAudio(false)

	if _, err := src.StartScreenShare(); err != nil {
		t.Fatalf("StartScreenShare: %v", err)
	}
	screen := devices.Last("screen")
	screen.Stop()

	tracks, changed, err := src.TrackEnded(screen)
	if err != nil || !changed {
		t.Fatalf("TrackEnded = %v, %v", changed, err)
	}
	if !media.Inert(tracks.Video) || !media.Inert(tracks.Audio) {
		t.Error("With nothing enabled the screen should fall back to the placeholder")
	}
}

func TestDeviceLostSwitchesToPlaceholder(t *testing.T) {
	devices := &mediatest.Devices{}
	src := newSource(t, devices)
	src.Start(true, true)

	camera := devices.Last("camera")
	camera.Stop()

	tracks, changed, err := src.TrackEnded(camera)
	if err != nil || !changed {
		t.Fatalf("TrackEnded = %v, %v", changed, err)
	}
	if devices.Open("microphone") != 0 {
		t.Error("All devices should be released on device loss")
	}
	if tracks.Audio.Enabled() || tracks.Video.Enabled() {
		t.Error("Placeholder tracks must be disabled")
	}
	if want := (media.State{Active: media.ActivePlaceholder}); src.State() != want {
		t.Errorf("State = %+v, want %+v", src.State(), want)
	}

	if _, changed, _ := src.TrackEnded(camera); changed {
		t.Error("A stale track must be ignored")
	}
}

func TestEnsureTracks(t *testing.T) {
	devices := &mediatest.Devices{}
	src := newSource(t, devices)
	src.Start(false, true)
	src.SetAudio(false)

	if !src.CurrentTracks().Empty() {
		t.Fatal("Expected no tracks")
	}
	tracks, err := src.EnsureTracks()
	if err != nil {
		t.Fatalf("EnsureTracks: %v", err)
	}
	if tracks.Empty() || !media.Inert(tracks.Audio) {
		t.Error("EnsureTracks should fill in the placeholder pair")
	}
}

func stopped(tr media.Track) bool {
	if tr == nil {
		return false
	}
	select {
	case <-tr.Done():
		return true
	default:
		return false
	}
}

func TestSwitchesReturnLiveTracks(t *testing.T) {
	devices := &mediatest.Devices{}
	src := newSource(t, devices)
	src.Start(true, true)

	check := func(step string, tracks media.Tracks) {
		t.Helper()
		if stopped(tracks.Video) || stopped(tracks.Audio) {
			t.Errorf("%s: returned a stopped track", step)
		}
		if tracks != src.CurrentTracks() {
			t.Errorf("%s: returned tracks differ from the current ones", step)
		}
	}

	src.StartScreenShare()
	tracks, err := src.StopScreenShare()
	if err != nil {
		t.Fatalf("StopScreenShare: %v", err)
	}
	check("stop screen share", tracks)

	src.StartScreenShare()
	screen := devices.Last("screen")
	screen.Stop()
	tracks, _, err = src.TrackEnded(screen)
	if err != nil {
		t.Fatalf("TrackEnded(screen): %v", err)
	}
	if tracks.Video != devices.Last("camera") {
		t.Error("Ended screen should fall back to a fresh camera track")
	}
	check("screen ended", tracks)

	camera := devices.Last("camera")
	camera.Stop()
	tracks, _, err = src.TrackEnded(camera)
	if err != nil {
		t.Fatalf("TrackEnded(camera): %v", err)
	}
	check("camera lost", tracks)
}
