package protocol

import (
	"sync"
	"time"
)

const (
	statsWindow      = time.Second
	statsBucketCount = 30
)

// Direction of a recorded datagram.
type Direction uint8

const (
	// Inbound counts datagrams read from the socket.
	Inbound Direction = iota
	// Outbound counts datagrams written to the socket.
	Outbound
)

// NetStats is a sample of recent traffic.
type NetStats struct {
	AcceptedRatio  float32
	BytesInPerSec  float32
	BytesOutPerSec float32
}

type statBucket struct {
	tested   int
	accepted int
	in       int
	out      int
	span     time.Duration
}

// Stats keeps a rolling window of sequence-test and bandwidth counters in
// fixed time buckets. It is safe for concurrent use.
type Stats struct {
	mu       sync.Mutex
	now      func() time.Time
	buckets  [statsBucketCount]statBucket
	index    int
	lastTurn time.Time
}

// NewStats creates a Stats using the wall clock.
func NewStats() *Stats {
	return NewStatsWithClock(time.Now)
}

// NewStatsWithClock creates a Stats with an injected clock, for tests.
func NewStatsWithClock(now func() time.Time) *Stats {
	return &Stats{now: now}
}

// Accept runs AcceptSequence and records the outcome.
func (s *Stats) Accept(prev, next uint16) bool {
	ok := AcceptSequence(prev, next)
	s.RecordSequenceTest(ok)
	return ok
}

// RecordSequenceTest counts one sequence test.
func (s *Stats) RecordSequenceTest(accepted bool) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.bucketLocked()
	b.tested++
	if accepted {
		b.accepted++
	}
}

// RecordPacket counts the bytes of one datagram.
func (s *Stats) RecordPacket(dir Direction, size int) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.bucketLocked()
	switch dir {
	case Inbound:
		b.in += size
	case Outbound:
		b.out += size
	}
}

// Sample sums every non-empty bucket in the window.
func (s *Stats) Sample() NetStats {
	if s == nil {
		return NetStats{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bucketLocked()

	var tested, accepted, in, out int
	var span time.Duration
	for i := range s.buckets {
		b := &s.buckets[i]
		if b.tested == 0 && b.in == 0 && b.out == 0 {
			continue
		}
		tested += b.tested
		accepted += b.accepted
		in += b.in
		out += b.out
		span += b.span
	}

	var st NetStats
	if tested > 0 {
		st.AcceptedRatio = float32(accepted) / float32(tested)
	}
	secs := float32(span.Seconds())
	if secs == 0 {
		secs = 1
	}
	st.BytesInPerSec = float32(in) / secs
	st.BytesOutPerSec = float32(out) / secs
	return st
}

// bucketLocked returns the bucket for the current instant, rotating (and
// clearing) buckets as time passes. Caller must hold s.mu.
func (s *Stats) bucketLocked() *statBucket {
	now := s.now()
	if s.lastTurn.IsZero() {
		s.lastTurn = now
	}
	bucketSpan := statsWindow / statsBucketCount
	elapsed := now.Sub(s.lastTurn)
	b := &s.buckets[s.index]
	if elapsed > bucketSpan {
		b.span = elapsed
		skip := int(elapsed / bucketSpan)
		if skip > statsBucketCount {
			skip = statsBucketCount
		}
		s.lastTurn = now
		for i := 0; i < skip; i++ {
			s.index = (s.index + 1) % statsBucketCount
			s.buckets[s.index] = statBucket{}
		}
		b = &s.buckets[s.index]
	}
	return b
}
