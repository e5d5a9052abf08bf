// SPDX-License-Identifier: MIT
/*
Package udp streams pitch detections to external visualizers.

Packet Structure (BigEndian), 28 bytes:

	+-----------------------------------------------------------------------+
	| Field           | Type    | Size | Description                        |
	|-----------------|---------|------|------------------------------------|
	| Sequence        | uint32  | 4    | Monotonically increasing           |
	| Timestamp       | int64   | 8    | Detection time, ns since epoch     |
	| FrequencyHz     | float32 | 4    | Estimated fundamental              |
	| Confidence      | float32 | 4    | Detector confidence [0, 1]         |
	| DeviationCents  | float32 | 4    | Offset from the matched note center|
	| NoteIndex       | int16   | 2    | Matched note in the table, -1 none |
	| InBand          | uint8   | 1    | 1 if inside the matched band       |
	| State           | uint8   | 1    | Session state                      |
	+-----------------------------------------------------------------------+
*/
package udp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"pitchcoach/internal/log"
	"pitchcoach/internal/notes"
	"pitchcoach/internal/session"
)

// PacketSize is the encoded size of a Packet.
const PacketSize = 28

// Packet is one detection on the wire.
type Packet struct {
	Sequence       uint32
	Timestamp      int64
	FrequencyHz    float32
	Confidence     float32
	DeviationCents float32
	NoteIndex      int16
	InBand         uint8
	State          uint8
}

// MarshalBinary encodes the packet big-endian.
func (p Packet) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(PacketSize)
	if err := binary.Write(&buf, binary.BigEndian, p); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a packet produced by MarshalBinary.
func (p *Packet) UnmarshalBinary(data []byte) error {
	if len(data) != PacketSize {
		return fmt.Errorf("packet is %d bytes, want %d", len(data), PacketSize)
	}
	return binary.Read(bytes.NewReader(data), binary.BigEndian, p)
}

// Sender is the sink for encoded packets. *UDPSender implements it.
type Sender interface {
	Send(data []byte) error
}

// DetectionPublisher observes session snapshots and, at most once per
// interval, sends the newest unsent detection. It runs in a separate
// goroutine managed by Start and Stop.
type DetectionPublisher struct {
	sender   Sender
	table    *notes.Table
	interval time.Duration

	ticker   *time.Ticker   // Ticker that triggers packet sending.
	doneChan chan struct{}  // Channel used to signal the publisher goroutine to stop.
	stopOnce sync.Once      // Ensures the stop logic runs only once per Start/Stop cycle.
	wg       sync.WaitGroup // Waits for the publisher goroutine to finish during Stop.
	mu       sync.Mutex     // Protects ticker and doneChan during Start/Stop.

	latestMu sync.Mutex
	latest   *Packet // Newest detection not yet sent.
	lastAt   time.Time

	sequenceNum  uint32
	packetBuffer *bytes.Buffer // Reusable buffer for constructing the binary packet.
}

var _ session.Observer = (*DetectionPublisher)(nil)

// NewDetectionPublisher creates a publisher. If interval is invalid (<= 0),
// it defaults to 16ms (~60Hz).
func NewDetectionPublisher(interval time.Duration, sender Sender, table *notes.Table) (*DetectionPublisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("DetectionPublisher: sender cannot be nil")
	}
	if table == nil {
		return nil, fmt.Errorf("DetectionPublisher: note table cannot be nil")
	}
	if interval <= 0 {
		interval = 16 * time.Millisecond
		log.Warnf("DetectionPublisher: Invalid interval provided, defaulting to %s", interval)
	}

	return &DetectionPublisher{
		sender:       sender,
		table:        table,
		interval:     interval,
		packetBuffer: new(bytes.Buffer),
	}, nil
}

// Observe records the snapshot's detection if it is new.
func (p *DetectionPublisher) Observe(s session.Snapshot) {
	d := s.LastDetection
	if d == nil {
		return
	}

	p.latestMu.Lock()
	defer p.latestMu.Unlock()
	if d.At.Equal(p.lastAt) {
		return
	}
	p.lastAt = d.At

	var inBand uint8
	if d.InBand {
		inBand = 1
	}
	p.latest = &Packet{
		Timestamp:      d.At.UnixNano(),
		FrequencyHz:    float32(d.FrequencyHz),
		Confidence:     float32(d.Confidence),
		DeviationCents: float32(d.DeviationCents),
		NoteIndex:      int16(p.table.IndexOf(d.MatchedNoteID)),
		InBand:         inBand,
		State:          uint8(s.State),
	}
}

// Start begins the periodic publishing process.
// It is safe to call Start multiple times; subsequent calls are no-ops if already started.
func (p *DetectionPublisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		log.Warnf("DetectionPublisher: Start called but already running.")
		return
	}

	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}

	// Local copies keep the goroutine off p.ticker/p.doneChan.
	ticker := p.ticker
	doneChan := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		log.Debugf("DetectionPublisher: Publisher goroutine started (Interval: %s)", p.interval)
		for {
			select {
			case <-ticker.C:
				p.flush()
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop signals the publisher goroutine to terminate and waits for it to exit.
// It is safe to call Stop multiple times.
func (p *DetectionPublisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}

	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})
	p.mu.Unlock()

	p.wg.Wait()
	log.Debugf("DetectionPublisher: Publisher goroutine finished.")
	return nil
}

// flush sends the pending detection, if any.
func (p *DetectionPublisher) flush() {
	p.latestMu.Lock()
	pkt := p.latest
	p.latest = nil
	p.latestMu.Unlock()

	if pkt == nil {
		return
	}

	p.sequenceNum++
	pkt.Sequence = p.sequenceNum

	p.packetBuffer.Reset()
	if err := binary.Write(p.packetBuffer, binary.BigEndian, pkt); err != nil {
		log.Errorf("DetectionPublisher: Error packing data into binary buffer: %v", err)
		return
	}

	if err := p.sender.Send(p.packetBuffer.Bytes()); err == nil {
		log.Debugf("DetectionPublisher: Sent packet %d (%d bytes)", p.sequenceNum, p.packetBuffer.Len())
	}
}

// Close implements io.Closer by stopping the publisher goroutine.
func (p *DetectionPublisher) Close() error {
	return p.Stop()
}

var _ interface{ Close() error } = (*DetectionPublisher)(nil)
