// Package screenshare swaps a session's active outbound video track between
// the camera and a screen capture without renegotiating the connection.
package screenshare

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/lenconda/exampro-agent/internal/domain"
	"github.com/lenconda/exampro-agent/internal/media"
)

// ErrNoVideoSender indicates the coordinator was invoked before any video
// track was attached to the session. This is a call-sequencing logic error,
// not a recoverable runtime state.
var ErrNoVideoSender = errors.New("screenshare: no active video sender")

// SenderRegistry looks up the session's active sender for a track kind.
// Satisfied by *session.Session.
type SenderRegistry interface {
	Sender(kind string) (domain.Sender, bool)
}

// AcquireFunc obtains a stream for a channel kind. Satisfied by
// (*media.Acquirer).Acquire.
type AcquireFunc func(kind media.Kind) (*media.Stream, error)

// Coordinator replaces the outbound video track for one session. The audio
// track is never touched, and at most one video track is transmitted at a
// time.
type Coordinator struct {
	senders SenderRegistry
	acquire AcquireFunc
	camera  *media.Stream

	// preview observes which stream the local preview should render.
	preview func(*media.Stream)

	mu     sync.Mutex
	screen *media.Stream
}

// New creates a coordinator for a session whose camera stream is already
// attached. The preview hook may be nil.
func New(senders SenderRegistry, acquire AcquireFunc, camera *media.Stream, preview func(*media.Stream)) *Coordinator {
	return &Coordinator{
		senders: senders,
		acquire: acquire,
		camera:  camera,
		preview: preview,
	}
}

// Share switches the outbound video track to a screen capture, reusing a
// still-active capture from a previous share. Ending the capture from
// outside (the OS-level stop control) reverts to the camera automatically.
func (c *Coordinator) Share() error {
	c.mu.Lock()
	screen := c.screen
	c.mu.Unlock()

	fresh := false
	if screen == nil || screen.Ended() {
		acquired, err := c.acquire(media.KindDesktop)
		if err != nil {
			return fmt.Errorf("acquire screen capture: %w", err)
		}
		screen = acquired
		fresh = true

		screen.OnEnded(func() {
			if err := c.Cancel(); err != nil && !errors.Is(err, errNotSharing) {
				log.Printf("[screenshare] revert after capture end: %v", err)
			}
		})
	}

	sender, ok := c.senders.Sender("video")
	if !ok {
		// Never transmitted, so release the capture before failing.
		if fresh {
			screen.Stop()
		}
		return ErrNoVideoSender
	}
	if err := sender.ReplaceTrack(screen.VideoTrack()); err != nil {
		if fresh {
			screen.Stop()
		}
		return fmt.Errorf("replace video track: %w", err)
	}

	c.mu.Lock()
	c.screen = screen
	c.mu.Unlock()

	if c.preview != nil {
		c.preview(screen)
	}
	log.Printf("[screenshare] sharing %s", screen.ID())
	return nil
}

var errNotSharing = errors.New("screenshare: not sharing")

// Cancel restores the camera video track, stops every track of the screen
// capture (releasing the OS-level capture), and clears the stored capture.
func (c *Coordinator) Cancel() error {
	c.mu.Lock()
	screen := c.screen
	c.screen = nil
	c.mu.Unlock()

	if screen == nil {
		return errNotSharing
	}

	sender, ok := c.senders.Sender("video")
	if !ok {
		return ErrNoVideoSender
	}
	if err := sender.ReplaceTrack(c.camera.VideoTrack()); err != nil {
		return fmt.Errorf("restore camera track: %w", err)
	}

	screen.Stop()

	if c.preview != nil {
		c.preview(c.camera)
	}
	log.Printf("[screenshare] reverted to %s", c.camera.ID())
	return nil
}

// Sharing reports whether a screen capture is currently transmitted.
func (c *Coordinator) Sharing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.screen != nil
}
