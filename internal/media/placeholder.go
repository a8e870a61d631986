package media

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"time"

	"github.com/pion/webrtc/v4/pkg/media"
)

const (
	placeholderWidth  = 640
	placeholderHeight = 480
	opusFrame         = 20 * time.Millisecond
)

// opusSilence is a single 20ms Opus frame of digital silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

var placeholderColor = color.RGBA{A: 0xff}

// GeneratePlaceholder returns a fresh pair of inert tracks: silent audio and a
// single-colour video frame. Both start disabled and enabling them changes
// nothing that is sent. Each call returns new, independent tracks.
func GeneratePlaceholder() (audio, video Track, err error) {
	audio, err = NewTrack(TrackOptions{
		Kind:     KindAudio,
		Sampler:  SamplerFunc(silence),
		Interval: opusFrame,
		Inert:    true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("placeholder audio: %w", err)
	}

	video, err = NewTrack(TrackOptions{
		Kind:  KindVideo,
		Inert: true,
		Still: blankFrame(),
	})
	if err != nil {
		audio.Stop()
		return nil, nil, fmt.Errorf("placeholder video: %w", err)
	}
	return audio, video, nil
}

func silence() (media.Sample, error) {
	data := make([]byte, len(opusSilence))
	copy(data, opusSilence)
	return media.Sample{Data: data, Duration: opusFrame}, nil
}

func blankFrame() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, placeholderWidth, placeholderHeight))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: placeholderColor}, image.Point{}, draw.Src)
	return img
}
