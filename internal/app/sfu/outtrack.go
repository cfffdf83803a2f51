package sfu

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/rtp"
)

type TrackState int32

const (
	TrackStateOk TrackState = iota
	TrackStateMuted
	TrackStateDelete
)

// RTPWriter is the sending side of a consumer, usually a
// *webrtc.TrackLocalStaticRTP.
type RTPWriter interface {
	WriteRTP(p *rtp.Packet) error
}

// OutTrack represents a single outgoing track to a consumer.
// Sequence numbers and timestamps are rewritten so the consumer sees one
// continuous stream when it is moved between layers.
type OutTrack struct {
	Track RTPWriter
	// ClockRate converts wall time to RTP time across a rebase. Zero advances
	// the timestamp by one tick.
	ClockRate uint32
	state     atomic.Int32 // Zero by default (TrackStateOk)

	mu        sync.Mutex
	started   bool
	rebase    bool
	seqOffset uint16
	tsOffset  uint32
	lastSeq   uint16
	lastTS    uint32
	lastWrite time.Time
}

func NewOutTrack(track RTPWriter) *OutTrack {
	return &OutTrack{Track: track}
}

// NewMutedOutTrack creates an out-track that forwards nothing until MarkOk.
func NewMutedOutTrack(track RTPWriter) *OutTrack {
	ot := &OutTrack{Track: track}
	ot.MarkMuted()
	return ot
}

func (ot *OutTrack) GetState() TrackState {
	return TrackState(ot.state.Load())
}

func (ot *OutTrack) MarkOk() {
	ot.state.CompareAndSwap(int32(TrackStateMuted), int32(TrackStateOk))
}

func (ot *OutTrack) MarkMuted() {
	ot.state.CompareAndSwap(int32(TrackStateOk), int32(TrackStateMuted))
}

func (ot *OutTrack) MarkDelete() {
	ot.state.Store(int32(TrackStateDelete))
}

// Rebase makes the next written packet continue the sequence and timestamp
// of the last one, whatever source it comes from.
func (ot *OutTrack) Rebase() {
	ot.mu.Lock()
	ot.rebase = ot.started
	ot.mu.Unlock()
}

// WriteRTP writes a copy of pkt with the track's offsets applied. pkt itself
// is shared between subscribers and never modified.
func (ot *OutTrack) WriteRTP(pkt *rtp.Packet) error {
	out := *pkt

	ot.mu.Lock()
	now := time.Now()
	if ot.rebase {
		ot.rebase = false
		ot.seqOffset = ot.lastSeq + 1 - pkt.SequenceNumber
		ot.tsOffset = ot.lastTS + ot.elapsed(now) - pkt.Timestamp
	}
	out.SequenceNumber = pkt.SequenceNumber + ot.seqOffset
	out.Timestamp = pkt.Timestamp + ot.tsOffset
	ot.started = true
	ot.lastSeq = out.SequenceNumber
	ot.lastTS = out.Timestamp
	ot.lastWrite = now
	ot.mu.Unlock()

	return ot.Track.WriteRTP(&out)
}

func (ot *OutTrack) elapsed(now time.Time) uint32 {
	if ot.ClockRate == 0 || ot.lastWrite.IsZero() {
		return 1
	}
	ticks := uint32(now.Sub(ot.lastWrite).Seconds() * float64(ot.ClockRate))
	if ticks == 0 {
		return 1
	}
	return ticks
}
