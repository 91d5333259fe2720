// Package media acquires local outbound media streams for a session:
// camera (microphone + video) or desktop (screen capture), with an empty
// placeholder for invigilators, who only receive.
package media

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	pion "github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"

	"github.com/lenconda/exampro-agent/internal/domain"
)

// Kind selects the logical media channel a stream serves.
type Kind string

const (
	KindCamera  Kind = "camera"
	KindDesktop Kind = "desktop"
)

// Constraints describe the requested capture geometry.
type Constraints struct {
	Width     int
	Height    int
	FrameRate int
}

// DefaultCameraConstraints is 16:9 at an HD-or-better floor.
var DefaultCameraConstraints = Constraints{Width: 1280, Height: 720, FrameRate: 30}

// ErrEnded is returned on writes to a stream whose capture has stopped.
var ErrEnded = errors.New("media: stream ended")

// Stream is a set of outbound sample tracks for one session. Either track
// may be absent: desktop streams carry video only, invigilator streams
// carry nothing.
type Stream struct {
	id    string
	audio *pion.TrackLocalStaticSample
	video *pion.TrackLocalStaticSample

	mu      sync.Mutex
	ended   bool
	onEnded []func()
}

// ID reports the stream identifier shared by all its tracks.
func (s *Stream) ID() string {
	return s.id
}

// Tracks returns every track of the stream, audio first.
func (s *Stream) Tracks() []pion.TrackLocal {
	var tracks []pion.TrackLocal
	if s.audio != nil {
		tracks = append(tracks, s.audio)
	}
	if s.video != nil {
		tracks = append(tracks, s.video)
	}
	return tracks
}

// VideoTrack returns the video track, or nil if the stream has none.
func (s *Stream) VideoTrack() pion.TrackLocal {
	if s.video == nil {
		return nil
	}
	return s.video
}

// AudioTrack returns the audio track, or nil if the stream has none.
func (s *Stream) AudioTrack() pion.TrackLocal {
	if s.audio == nil {
		return nil
	}
	return s.audio
}

// WriteVideo feeds one video sample into the stream.
func (s *Stream) WriteVideo(sample pionmedia.Sample) error {
	if s.video == nil {
		return fmt.Errorf("media: stream %s has no video track", s.id)
	}
	if s.Ended() {
		return ErrEnded
	}
	return s.video.WriteSample(sample)
}

// WriteAudio feeds one audio sample into the stream.
func (s *Stream) WriteAudio(sample pionmedia.Sample) error {
	if s.audio == nil {
		return fmt.Errorf("media: stream %s has no audio track", s.id)
	}
	if s.Ended() {
		return ErrEnded
	}
	return s.audio.WriteSample(sample)
}

// OnEnded registers a callback fired once when the stream's capture stops,
// e.g. when the user ends a screen share from outside the application.
func (s *Stream) OnEnded(fn func()) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		fn()
		return
	}
	s.onEnded = append(s.onEnded, fn)
	s.mu.Unlock()
}

// Stop marks every track of the stream as ended and releases the capture.
// Stopping twice is a no-op.
func (s *Stream) Stop() {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	callbacks := s.onEnded
	s.onEnded = nil
	s.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}

// Ended reports whether the stream's capture has stopped.
func (s *Stream) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// Acquirer builds outbound streams appropriate to the local role.
type Acquirer struct {
	role domain.Role
}

// NewAcquirer creates an acquirer for the given local role.
func NewAcquirer(role domain.Role) *Acquirer {
	return &Acquirer{role: role}
}

// Acquire obtains a local stream for the requested channel kind. When the
// local role is invigilator no outbound media exists at all: an empty
// placeholder stream keeps the session logic uniform across roles. Failures
// are terminal for the channel; no retry is attempted.
func (a *Acquirer) Acquire(kind Kind) (*Stream, error) {
	id := fmt.Sprintf("%s-%s", kind, uuid.NewString())

	if a.role == domain.RoleInvigilator {
		return &Stream{id: id}, nil
	}

	switch kind {
	case KindCamera:
		audio, err := pion.NewTrackLocalStaticSample(pion.RTPCodecCapability{
			MimeType:  pion.MimeTypePCMU,
			ClockRate: 8000,
			Channels:  1,
		}, "audio", id)
		if err != nil {
			return nil, fmt.Errorf("create audio track: %w", err)
		}
		video, err := newVideoTrack(id)
		if err != nil {
			return nil, err
		}
		return &Stream{id: id, audio: audio, video: video}, nil

	case KindDesktop:
		video, err := newVideoTrack(id)
		if err != nil {
			return nil, err
		}
		return &Stream{id: id, video: video}, nil

	default:
		return nil, fmt.Errorf("media: unknown channel kind %q", kind)
	}
}

func newVideoTrack(streamID string) (*pion.TrackLocalStaticSample, error) {
	video, err := pion.NewTrackLocalStaticSample(pion.RTPCodecCapability{
		MimeType:    pion.MimeTypeH264,
		ClockRate:   90000,
		SDPFmtpLine: "level-asymmetry-allowed=1;packetization-mode=0;profile-level-id=64001f",
	}, "video", streamID)
	if err != nil {
		return nil, fmt.Errorf("create video track: %w", err)
	}
	return video, nil
}
