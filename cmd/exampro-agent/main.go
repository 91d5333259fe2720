// exampro-agent is the headless proctoring client: it joins an exam's
// proctoring room over the signaling relay and exchanges audio/video with
// the other side of the call.
//
// As a participant it transmits a camera feed (raw Annex-B H264 read from
// --video-source, e.g. piped from ffmpeg) and answers inbound calls from
// invigilators. As an invigilator it transmits nothing, calls a selected
// participant, and writes the received video to stdout for playback:
//
//	exampro-agent --role invigilator --call <connection-id> | ffplay -f h264 -
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lenconda/exampro-agent/internal/api"
	"github.com/lenconda/exampro-agent/internal/config"
	"github.com/lenconda/exampro-agent/internal/domain"
	"github.com/lenconda/exampro-agent/internal/media"
	"github.com/lenconda/exampro-agent/internal/recorder"
	sigclient "github.com/lenconda/exampro-agent/internal/signal"
	"github.com/lenconda/exampro-agent/internal/webrtc"
)

var opts struct {
	config.Options
	VideoSource string
	FrameRate   int
	Call        string
}

var rootCmd = &cobra.Command{
	Use:   "exampro-agent",
	Short: "Headless peer-to-peer video proctoring client for the exam platform",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&opts.APIURL, "api-url", "", "exam API base URL (env EXAMPRO_API_URL)")
	flags.StringVar(&opts.Token, "token", "", "bearer token for the exam API (env EXAMPRO_TOKEN)")
	flags.StringVar(&opts.ExamID, "exam", "", "exam id, also the room token source (env EXAMPRO_EXAM_ID)")
	flags.StringVar(&opts.RelayURL, "relay", "", "signaling relay URL override (env EXAMPRO_RELAY_URL)")
	flags.StringVar(&opts.Role, "role", "", "participant or invigilator (env EXAMPRO_ROLE)")
	flags.StringVar(&opts.Identity, "identity", "", "participant identity override (env EXAMPRO_IDENTITY)")
	flags.StringVar(&opts.VideoSource, "video-source", "", "Annex-B H264 file for the camera feed, '-' for stdin")
	flags.IntVar(&opts.FrameRate, "frame-rate", 30, "frame rate of the H264 video source")
	flags.StringVar(&opts.Call, "call", "", "connection id to call once the room is joined")
}

func main() {
	log.SetOutput(os.Stderr)
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("[main] %v", err)
	}
}

func run() error {
	cfg, err := config.Load(opts.Options)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	ossignal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("[main] received %s, shutting down", sig)
		cancel()
	}()

	apiClient := api.NewClient(cfg.APIURL, cfg.Token)
	log.Printf("[main] fetching room ticket for exam %s", cfg.ExamID)
	ticket, err := apiClient.FetchRoomTicket(cfg.ExamID)
	if err != nil {
		return fmt.Errorf("fetch room ticket: %w", err)
	}
	log.Printf("[main] room %q as %s (%s)", ticket.Room, ticket.Identity, ticket.Role)

	relayURL := cfg.RelayURL
	if relayURL == "" {
		relayURL = ticket.RelayURL
	}
	if relayURL == "" {
		return fmt.Errorf("no relay URL in configuration or room ticket")
	}

	iceServers := ticket.ICEServers
	if len(iceServers) == 0 {
		iceServers = cfg.ICEServers()
	}

	role := ticket.Role
	if cfg.Role != "" {
		role = cfg.Role
	}
	identity := ticket.Identity
	if cfg.Identity != "" {
		identity = cfg.Identity
	}

	dialer := sigclient.NewDialer(relayURL)
	defer dialer.Close()

	var videoOut io.Writer
	if role == domain.RoleInvigilator {
		videoOut = os.Stdout
	}

	rec := recorder.New(recorder.Config{
		Channels: func(namespace string) (domain.Channel, error) {
			return dialer.Channel(namespace)
		},
		NewPeer: func() (domain.Peer, error) {
			return webrtc.NewPeer(iceServers)
		},
		Room:     ticket.Room,
		Identity: identity,
		Role:     role,
		VideoOut: videoOut,
	})
	if err := rec.Start(); err != nil {
		return fmt.Errorf("start recorder: %w", err)
	}
	defer rec.Close()

	if role == domain.RoleParticipant && opts.VideoSource != "" {
		src, err := openVideoSource(opts.VideoSource)
		if err != nil {
			return err
		}
		go func() {
			defer src.Close()
			if err := media.PumpH264(ctx, rec.CameraStream(), src, opts.FrameRate); err != nil {
				log.Printf("[main] video source: %v", err)
			}
		}()
	}

	if opts.Call != "" {
		// Give the relay a moment to ack the join before calling out.
		go func() {
			select {
			case <-ctx.Done():
				return
			case <-time.After(2 * time.Second):
			}
			for _, kind := range []media.Kind{media.KindCamera, media.KindDesktop} {
				if err := rec.Call(kind, opts.Call); err != nil {
					log.Printf("[main] call %s on %s: %v", opts.Call, kind, err)
				}
			}
		}()
	}

	<-ctx.Done()
	log.Printf("[main] done")
	return nil
}

func openVideoSource(path string) (io.ReadCloser, error) {
	if path == "-" {
		return os.Stdin, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open video source: %w", err)
	}
	return f, nil
}
