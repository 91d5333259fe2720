package media

import (
	"context"
	"errors"
	"io"
	"time"

	pionmedia "github.com/pion/webrtc/v4/pkg/media"
)

const readChunk = 4096

// AnnexBReader splits a raw Annex-B H264 byte stream (e.g. piped from
// ffmpeg) into NAL units. Both 3- and 4-byte start codes are accepted.
type AnnexBReader struct {
	r   io.Reader
	buf []byte
	eof bool
}

// NewAnnexBReader wraps r for NAL unit extraction.
func NewAnnexBReader(r io.Reader) *AnnexBReader {
	return &AnnexBReader{r: r}
}

// NextNALU returns the next NAL unit with its start code stripped. Returns
// io.EOF once the stream is exhausted.
func (a *AnnexBReader) NextNALU() ([]byte, error) {
	for {
		// Strip the leading start code once it is complete in the buffer.
		if i, n := findStartCode(a.buf); i == 0 && n > 0 {
			a.buf = a.buf[n:]
		}

		// A following start code terminates the current unit.
		if i, _ := findStartCode(a.buf); i > 0 {
			nalu := a.buf[:i]
			a.buf = a.buf[i:]
			return nalu, nil
		}

		if a.eof {
			if len(a.buf) > 0 {
				nalu := a.buf
				a.buf = nil
				return nalu, nil
			}
			return nil, io.EOF
		}

		chunk := make([]byte, readChunk)
		n, err := a.r.Read(chunk)
		a.buf = append(a.buf, chunk[:n]...)
		if err != nil {
			if errors.Is(err, io.EOF) {
				a.eof = true
				continue
			}
			return nil, err
		}
	}
}

// findStartCode locates the first Annex-B start code in b, returning its
// offset and length, or (-1, 0) when none is complete yet.
func findStartCode(b []byte) (int, int) {
	for i := 0; i+3 <= len(b); i++ {
		if b[i] != 0 || b[i+1] != 0 {
			continue
		}
		if b[i+2] == 1 {
			return i, 3
		}
		if b[i+2] == 0 && i+4 <= len(b) && b[i+3] == 1 {
			return i, 4
		}
	}
	return -1, 0
}

// PumpH264 feeds NAL units from r into the stream's video track until the
// source is exhausted or ctx is cancelled. Parameter sets and other non-VCL
// units carry zero duration so they ride along with the next picture. The
// stream is stopped when the source ends.
func PumpH264(ctx context.Context, dst *Stream, r io.Reader, frameRate int) error {
	if frameRate <= 0 {
		frameRate = DefaultCameraConstraints.FrameRate
	}
	frameDuration := time.Second / time.Duration(frameRate)
	reader := NewAnnexBReader(r)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		nalu, err := reader.NextNALU()
		if err != nil {
			if errors.Is(err, io.EOF) {
				dst.Stop()
				return nil
			}
			return err
		}
		if len(nalu) == 0 {
			continue
		}

		duration := time.Duration(0)
		if naluType := nalu[0] & 0x1f; naluType >= 1 && naluType <= 5 {
			duration = frameDuration
		}

		if err := dst.WriteVideo(pionmedia.Sample{Data: nalu, Duration: duration}); err != nil {
			if errors.Is(err, ErrEnded) {
				return nil
			}
			return err
		}
	}
}
