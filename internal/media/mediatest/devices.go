// Package mediatest provides in-memory capture devices for tests.
package mediatest

import (
	"fmt"
	"sync"

	"github.com/jayramgit94/Zoom/internal/media"
)

// Devices is a media.Devices whose tracks carry no samples. It records every
// open and close so tests can check device exclusivity.
type Devices struct {
	mu sync.Mutex

	FailCamera     bool
	FailMicrophone bool
	FailScreen     bool

	open      map[string]int
	maxVideo  int
	last      map[string]media.Track
	OpenCount map[string]int
}

func (d *Devices) OpenCamera() (media.Track, error) {
	return d.openDevice("camera", media.KindVideo)
}

func (d *Devices) OpenMicrophone() (media.Track, error) {
	return d.openDevice("microphone", media.KindAudio)
}

func (d *Devices) OpenScreen() (media.Track, error) {
	return d.openDevice("screen", media.KindVideo)
}

// SetFail changes the failure flag of a device under the lock.
func (d *Devices) SetFail(name string, fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch name {
	case "camera":
		d.FailCamera = fail
	case "microphone":
		d.FailMicrophone = fail
	case "screen":
		d.FailScreen = fail
	}
}

// Last returns the most recently opened track of the named device.
func (d *Devices) Last(name string) media.Track {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last[name]
}

// Open returns how many handles of the named device are currently held.
func (d *Devices) Open(name string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open[name]
}

// MaxVideoHandles is the largest number of camera and screen handles ever
// held at the same time.
func (d *Devices) MaxVideoHandles() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxVideo
}

func (d *Devices) openDevice(name string, kind media.Kind) (media.Track, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	fail := map[string]bool{
		"camera":     d.FailCamera,
		"microphone": d.FailMicrophone,
		"screen":     d.FailScreen,
	}[name]
	if fail {
		return nil, fmt.Errorf("%s: %w", name, media.ErrDeviceUnavailable)
	}
	if d.open == nil {
		d.open = make(map[string]int)
		d.last = make(map[string]media.Track)
		d.OpenCount = make(map[string]int)
	}

	track, err := media.NewTrack(media.TrackOptions{
		Kind: kind,
		Closer: func() error {
			d.mu.Lock()
			d.open[name]--
			d.mu.Unlock()
			return nil
		},
	})
	if err != nil {
		return nil, err
	}

	d.open[name]++
	d.OpenCount[name]++
	d.last[name] = track
	if v := d.open["camera"] + d.open["screen"]; v > d.maxVideo {
		d.maxVideo = v
	}
	return track, nil
}
