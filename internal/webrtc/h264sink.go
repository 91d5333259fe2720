package webrtc

import (
	"io"
	"log"

	pion "github.com/pion/webrtc/v4"
)

var startCode = []byte{0x00, 0x00, 0x00, 0x01}

// H264Sink reassembles the NAL units of an inbound H264 RTP stream and
// writes them to w as an Annex-B byte stream. One sink per track: the FU-A
// reassembly buffer is per-stream state.
type H264Sink struct {
	w      io.Writer
	fuaBuf []byte
}

// NewH264Sink creates a sink writing Annex-B framed NAL units to w.
func NewH264Sink(w io.Writer) *H264Sink {
	return &H264Sink{w: w}
}

// WriteRTPPayload consumes one RTP H264 payload. Single NAL, STAP-A, and
// FU-A packetizations are handled; other types are dropped.
func (s *H264Sink) WriteRTPPayload(payload []byte) error {
	for _, nalu := range s.depacketize(payload) {
		if len(nalu) == 0 {
			continue
		}
		if _, err := s.w.Write(startCode); err != nil {
			return err
		}
		if _, err := s.w.Write(nalu); err != nil {
			return err
		}
	}
	return nil
}

func (s *H264Sink) depacketize(payload []byte) [][]byte {
	if len(payload) < 1 {
		return nil
	}

	switch naluType := payload[0] & 0x1f; {
	case naluType >= 1 && naluType <= 23:
		return [][]byte{payload}
	case naluType == 24:
		return s.splitSTAPA(payload)
	case naluType == 28:
		return s.reassembleFUA(payload)
	default:
		return nil
	}
}

// splitSTAPA unpacks the length-prefixed NAL units of a STAP-A aggregate.
func (s *H264Sink) splitSTAPA(payload []byte) [][]byte {
	var nalus [][]byte
	offset := 1 // aggregate header byte

	for offset+2 <= len(payload) {
		size := int(payload[offset])<<8 | int(payload[offset+1])
		offset += 2
		if offset+size > len(payload) {
			break
		}
		nalus = append(nalus, payload[offset:offset+size])
		offset += size
	}
	return nalus
}

// reassembleFUA accumulates FU-A fragments, emitting the reconstructed NAL
// unit when the end fragment arrives.
func (s *H264Sink) reassembleFUA(payload []byte) [][]byte {
	if len(payload) < 2 {
		return nil
	}

	fnri := payload[0] & 0xe0
	fuHeader := payload[1]
	start := fuHeader&0x80 != 0
	end := fuHeader&0x40 != 0
	naluType := fuHeader & 0x1f

	if start {
		// NAL header is rebuilt from the FU indicator's F+NRI bits and the
		// FU header's type.
		s.fuaBuf = append([]byte{fnri | naluType}, payload[2:]...)
	} else {
		s.fuaBuf = append(s.fuaBuf, payload[2:]...)
	}

	if end {
		nalu := s.fuaBuf
		s.fuaBuf = nil
		return [][]byte{nalu}
	}
	return nil
}

// CopyVideo drains an inbound video track into w as Annex-B H264 until the
// track ends. Intended to run on its own goroutine.
func CopyVideo(track *pion.TrackRemote, w io.Writer) {
	sink := NewH264Sink(w)
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			log.Printf("[webrtc] video track read: %v", err)
			return
		}
		if err := sink.WriteRTPPayload(pkt.Payload); err != nil {
			log.Printf("[webrtc] video sink write: %v", err)
			return
		}
	}
}

// DrainAudio discards an inbound audio track's RTP so it does not back up.
// Intended to run on its own goroutine.
func DrainAudio(track *pion.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := track.Read(buf); err != nil {
			return
		}
	}
}
