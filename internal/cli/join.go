package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jayramgit94/Zoom/internal/config"
	"github.com/jayramgit94/Zoom/internal/history"
	"github.com/jayramgit94/Zoom/internal/media"
	"github.com/jayramgit94/Zoom/internal/mesh"
	"github.com/jayramgit94/Zoom/internal/signaling"
	"github.com/jayramgit94/Zoom/internal/ui"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	flagSTUN     string
	flagTURN     string
	flagTURNUser string
	flagTURNPass string
	flagRelay    bool
	flagCamera   string
	flagMic      string
	flagScreen   string
	flagNoVideo  bool
	flagNoAudio  bool
)

var joinCmd = &cobra.Command{
	Use:     "join <room-key|link>",
	Aliases: []string{"j"},
	Short:   "Join a call",
	Long: `Join the call identified by a room key or a meeting link.

Camera, screen and microphone are read from files: H.264 Annex-B for video and
Ogg/Opus for audio. Without a camera or microphone you join with a black,
silent placeholder and can still receive everyone else.

Examples:
  meet join standup
  meet join https://meet.example.com/room/standup
  meet join standup --camera cam.h264 --mic mic.ogg --screen slides.h264
  meet join standup --relay --turn turn:turn.example.com:3478`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomKey, err := parseRoomKey(args[0])
		if err != nil {
			return err
		}
		return joinCall(cmd.Context(), roomKey)
	},
}

func joinCall(parent context.Context, roomKey string) error {
	cfg, err := loadConfig(config.Options{
		STUNServer: flagSTUN,
		TURNServer: flagTURN,
		TURNUser:   flagTURNUser,
		TURNPass:   flagTURNPass,
		ForceRelay: flagRelay,
	})
	if err != nil {
		return err
	}

	l, closeLog, err := setupLogging()
	if err != nil {
		return err
	}
	defer closeLog()
	l = l.With().Str("room", roomKey).Logger()

	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	src := media.NewSource(media.FileDevices{
		CameraPath:     flagCamera,
		MicrophonePath: flagMic,
		ScreenPath:     flagScreen,
	}, l)
	defer src.Close()

	if _, err := src.Start(!flagNoVideo, !flagNoAudio); err != nil {
		l.Warn().Err(err).Msg("Some devices are unavailable")
		if src.State().Active == media.ActivePlaceholder {
			ui.PrintWarning(placeholderNotice(src.CurrentTracks()))
		}
	}

	stopSpinner := ui.RunConnectionSpinner("Connecting to relay...")
	client := signaling.NewClient(cfg.WebSocketURL, l)
	err = client.Connect(ctx)
	stopSpinner()
	if err != nil {
		return err
	}
	defer client.Close()

	coord := mesh.NewCoordinator(mesh.Config{
		Source:      src,
		NewPeer:     mesh.NewPionFactory(mesh.ICEConfigFrom(cfg), l),
		Signaler:    client,
		DisplayName: cfg.DisplayName,
		Logger:      l,
	})

	callCtx, stopCall := context.WithCancel(ctx)
	defer stopCall()

	go signaling.NewHandler(client, coord, l).Run(callCtx)

	runErr := make(chan error, 1)
	go func() { runErr <- coord.Run(callCtx) }()

	if err := client.Join(roomKey); err != nil {
		return fmt.Errorf("join room: %w", err)
	}
	go recordMeeting(cfg, roomKey, l)

	ui.RenderRoomInfo(roomKey, cfg.APIURL("/room/"+roomKey))
	uiErr := ui.RunCall(roomKey, coord, coord.Events())

	// Run has returned once the event feed is closed.
	if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) {
		l.Debug().Err(err).Msg("Coordinator stopped")
	}
	if uiErr != nil {
		return uiErr
	}
	ui.PrintSuccess("Left " + roomKey)
	return nil
}

func placeholderNotice(tracks media.Tracks) string {
	msg := "No camera or microphone, joining with a placeholder"
	if frame, ok := media.Still(tracks.Video); ok {
		b := frame.Bounds()
		msg += fmt.Sprintf(" (%dx%d blank frame)", b.Dx(), b.Dy())
	}
	return msg
}

// recordMeeting adds the call to the user's history when a token is set.
func recordMeeting(cfg *config.Config, roomKey string, l zerolog.Logger) {
	if cfg.Token == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := history.NewClient(cfg.APIURL("/api/v1/meetings"), cfg.Token)
	if err := c.Record(ctx, roomKey, time.Now()); err != nil {
		l.Warn().Err(err).Msg("Failed to record meeting")
	}
}

func init() {
	rootCmd.AddCommand(joinCmd)

	f := joinCmd.Flags()
	f.StringVarP(&flagSTUN, "stun", "s", "", "Custom STUN server")
	f.StringVarP(&flagTURN, "turn", "t", "", "Custom TURN server")
	f.StringVarP(&flagTURNUser, "turn-user", "u", "", "TURN username")
	f.StringVarP(&flagTURNPass, "turn-pass", "p", "", "TURN password")
	f.BoolVarP(&flagRelay, "relay", "r", false, "Force relay mode")
	f.StringVar(&flagCamera, "camera", "", "H.264 Annex-B file used as camera")
	f.StringVar(&flagMic, "mic", "", "Ogg/Opus file used as microphone")
	f.StringVar(&flagScreen, "screen", "", "H.264 Annex-B file used for screen sharing")
	f.BoolVar(&flagNoVideo, "no-video", false, "Join with the camera off")
	f.BoolVar(&flagNoAudio, "no-audio", false, "Join muted")
}
