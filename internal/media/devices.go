package media

import (
	"fmt"
	"os"
	"time"

	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/h264reader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
)

// Devices opens capture devices. Each call returns a new track that owns the
// device handle until it is stopped.
type Devices interface {
	OpenCamera() (Track, error)
	OpenMicrophone() (Track, error)
	OpenScreen() (Track, error)
}

const videoFrame = 33 * time.Millisecond

// FileDevices serves H.264 Annex-B files as camera and screen and an Ogg/Opus
// file as microphone. Reaching the end of a file ends the track the same way
// an unplugged device would.
type FileDevices struct {
	CameraPath     string
	MicrophonePath string
	ScreenPath     string
}

func (d FileDevices) OpenCamera() (Track, error) {
	return openH264(d.CameraPath, "camera")
}

func (d FileDevices) OpenScreen() (Track, error) {
	return openH264(d.ScreenPath, "screen")
}

func (d FileDevices) OpenMicrophone() (Track, error) {
	if d.MicrophonePath == "" {
		return nil, fmt.Errorf("microphone: %w", ErrDeviceUnavailable)
	}

	file, err := os.Open(d.MicrophonePath)
	if err != nil {
		return nil, fmt.Errorf("microphone: %w: %v", ErrDeviceUnavailable, err)
	}

	reader, _, err := oggreader.NewWith(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("microphone: failed to read ogg header: %w", err)
	}

	var lastGranule uint64
	sampler := SamplerFunc(func() (media.Sample, error) {
		page, header, err := reader.ParseNextPage()
		if err != nil {
			return media.Sample{}, err
		}
		samples := header.GranulePosition - lastGranule
		lastGranule = header.GranulePosition
		return media.Sample{
			Data:     page,
			Duration: time.Duration(samples) * time.Second / 48000,
		}, nil
	})

	return NewTrack(TrackOptions{
		Kind:     KindAudio,
		Sampler:  sampler,
		Interval: opusFrame,
		Closer:   file.Close,
	})
}

func openH264(path, name string) (Track, error) {
	if path == "" {
		return nil, fmt.Errorf("%s: %w", name, ErrDeviceUnavailable)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", name, ErrDeviceUnavailable, err)
	}

	reader, err := h264reader.NewReader(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%s: failed to create H264 reader: %w", name, err)
	}

	sampler := SamplerFunc(func() (media.Sample, error) {
		nal, err := reader.NextNAL()
		if err != nil {
			return media.Sample{}, err
		}
		return media.Sample{Data: nal.Data, Duration: videoFrame}, nil
	})

	return NewTrack(TrackOptions{
		Kind:     KindVideo,
		Sampler:  sampler,
		Interval: videoFrame,
		Closer:   file.Close,
	})
}
