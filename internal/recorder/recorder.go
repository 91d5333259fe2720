// Package recorder owns one peer connection session per logical media
// channel (camera, desktop) and wires media acquisition, room presence, and
// screen sharing together. It is the headless counterpart of the view
// component that renders local and remote video.
package recorder

import (
	"fmt"
	"io"
	"log"

	pion "github.com/pion/webrtc/v4"

	"github.com/lenconda/exampro-agent/internal/domain"
	"github.com/lenconda/exampro-agent/internal/media"
	"github.com/lenconda/exampro-agent/internal/presence"
	"github.com/lenconda/exampro-agent/internal/screenshare"
	"github.com/lenconda/exampro-agent/internal/session"
	"github.com/lenconda/exampro-agent/internal/webrtc"
)

// Config carries the collaborators the recorder composes. Channels and
// NewPeer are factories so each media channel gets its own namespace and
// connection.
type Config struct {
	Channels func(namespace string) (domain.Channel, error)
	NewPeer  func() (domain.Peer, error)

	Room     string
	Identity string
	Role     domain.Role

	// ConfirmIncoming gates answering a second inbound call (glare).
	ConfirmIncoming func(from string) bool

	// VideoOut receives inbound video as Annex-B H264. Nil discards it.
	VideoOut io.Writer
}

// Recorder drives the proctoring media channels for one exam room.
type Recorder struct {
	cfg      Config
	acquirer *media.Acquirer
	tracker  *presence.Tracker

	sessions map[media.Kind]*session.Session
	streams  map[media.Kind]*media.Stream
	share    *screenshare.Coordinator
}

// New creates an unstarted recorder.
func New(cfg Config) *Recorder {
	return &Recorder{
		cfg:      cfg,
		acquirer: media.NewAcquirer(cfg.Role),
		tracker:  presence.NewTracker(),
		sessions: make(map[media.Kind]*session.Session),
		streams:  make(map[media.Kind]*media.Stream),
	}
}

// Start opens both media channels, attaches local media, and joins the room
// on each. Room membership is tracked on the camera channel.
func (r *Recorder) Start() error {
	for _, kind := range []media.Kind{media.KindCamera, media.KindDesktop} {
		if err := r.openChannel(kind); err != nil {
			r.Close()
			return fmt.Errorf("open %s channel: %w", kind, err)
		}
	}

	camera := r.sessions[media.KindCamera]
	if err := camera.OnUpdateUserList(func(users []domain.RoomMember) {
		members := r.tracker.Update(users)
		log.Printf("[recorder] room %s: %d selectable member(s)", r.cfg.Room, len(members))
	}); err != nil {
		return err
	}
	if err := camera.OnRemoveUser(r.tracker.Remove); err != nil {
		return err
	}

	r.share = screenshare.New(camera, r.acquirer.Acquire, r.streams[media.KindCamera], nil)
	return nil
}

func (r *Recorder) openChannel(kind media.Kind) error {
	ch, err := r.cfg.Channels(string(kind))
	if err != nil {
		return err
	}
	peer, err := r.cfg.NewPeer()
	if err != nil {
		return err
	}

	sess := session.New(session.Config{
		Channel:         ch,
		Peer:            peer,
		Identity:        r.cfg.Identity,
		Role:            r.cfg.Role,
		ConfirmIncoming: r.cfg.ConfirmIncoming,
	})

	stream, err := r.acquirer.Acquire(kind)
	if err != nil {
		sess.Close()
		return err
	}
	for _, track := range stream.Tracks() {
		if _, err := sess.AddTrack(track); err != nil {
			sess.Close()
			return err
		}
	}

	sess.OnTrack(r.handleTrack)
	sess.OnCallEstablished(func(peerID string) {
		log.Printf("[recorder] %s: call established with %s", kind, peerID)
	})
	sess.OnDisconnected(func() {
		log.Printf("[recorder] %s: peer disconnected", kind)
	})
	sess.OnCallRejected(func(socket string) {
		log.Printf("[recorder] %s: call rejected by %s", kind, socket)
	})

	sess.JoinRoom(r.cfg.Room)

	r.sessions[kind] = sess
	r.streams[kind] = stream
	return nil
}

func (r *Recorder) handleTrack(track *pion.TrackRemote) {
	if track.Kind() == pion.RTPCodecTypeVideo && r.cfg.VideoOut != nil {
		go webrtc.CopyVideo(track, r.cfg.VideoOut)
		return
	}
	go webrtc.DrainAudio(track)
}

// Call initiates the offer exchange on one media channel with a remote
// connection id selected from the presence roster.
func (r *Recorder) Call(kind media.Kind, target string) error {
	sess, ok := r.sessions[kind]
	if !ok {
		return fmt.Errorf("recorder: no %s session", kind)
	}
	return sess.CallUser(target)
}

// Participants returns the current role-filtered room roster.
func (r *Recorder) Participants() []domain.RoomMember {
	return r.tracker.Members()
}

// Session exposes one channel's session to the owning UI.
func (r *Recorder) Session(kind media.Kind) *session.Session {
	return r.sessions[kind]
}

// CameraStream exposes the camera stream so a capture source can feed it.
func (r *Recorder) CameraStream() *media.Stream {
	return r.streams[media.KindCamera]
}

// ShareScreen switches the camera channel's video track to a screen capture.
func (r *Recorder) ShareScreen() error {
	return r.share.Share()
}

// CancelScreenShare reverts the camera channel's video track.
func (r *Recorder) CancelScreenShare() error {
	return r.share.Cancel()
}

// Close tears down every session and stops local capture.
func (r *Recorder) Close() {
	for kind, sess := range r.sessions {
		sess.Close()
		delete(r.sessions, kind)
	}
	for kind, stream := range r.streams {
		stream.Stop()
		delete(r.streams, kind)
	}
}
