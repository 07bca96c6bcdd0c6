// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"doppler/internal/analysis"
	"doppler/internal/sonar"
)

// DefaultInterval is used when a non-positive interval is configured.
const DefaultInterval = 50 * time.Millisecond

// headerSize is the fixed part of a packet before the peak window values.
const headerSize = 4 + 8 + 1 + 1 + 1 + 4 + 4 + 4 + 2

// MaxPacketSize keeps a datagram inside one Ethernet frame (1500 byte MTU
// less IPv4 and UDP headers).
const MaxPacketSize = 1472

// MaxPeakValues is the most peak window values a packet carries. Longer
// windows are reduced by taking the maximum of adjacent groups of bins.
const MaxPeakValues = (MaxPacketSize - headerSize) / 4

// ErrShortPacket is returned by ParsePacket for truncated input.
var ErrShortPacket = errors.New("packet too short")

// SnapshotSource provides the latest published analysis state.
type SnapshotSource interface {
	Snapshot() sonar.Snapshot
}

// Packet is the decoded form of one datagram.
type Packet struct {
	Sequence   uint32
	Timestamp  int64
	Mode       sonar.Mode
	Gesture    analysis.Gesture
	Phase      analysis.Phase
	TargetHz   float32
	FirstHz    float32
	SecondHz   float32
	PeakWindow []float32
}

/*
UDP Packet Structure (BigEndian)

+-----------------------------------------------------------------------------+
| Field             | Data Type      | Size (Bytes) | Description             |
|-------------------|----------------|--------------|-------------------------|
| Sequence Number   | uint32         | 4            | Monotonically increasing|
| Timestamp         | int64          | 8            | Nanoseconds since epoch |
| Mode              | uint8          | 1            | 0 gesture, 1 tone       |
| Gesture           | uint8          | 1            | 0 neutral, 1 toward,    |
|                   |                |              | 2 away                  |
| Phase             | uint8          | 1            | 0 calibrating, 1 detect |
| Target            | float32        | 4            | Target frequency in Hz  |
| First Tone        | float32        | 4            | Hz, -1 when absent      |
| Second Tone       | float32        | 4            | Hz, -1 when absent      |
| Value Count       | uint16         | 2            | N <= MaxPeakValues      |
| Peak Window       | []float32      | N * 4        | dB around the peak bin, |
|                   |                |              | max-pooled when longer  |
+-----------------------------------------------------------------------------+
*/

// UDPPublisher periodically fetches the latest snapshot, packs it into the
// binary format above, and sends it with a UDPSender. A snapshot that has
// not changed since the previous tick is not resent.
type UDPPublisher struct {
	sender   *UDPSender
	source   SnapshotSource
	interval time.Duration

	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex // Protects ticker and doneChan during Start/Stop.

	sequenceNum  uint32
	lastSnapshot uint64
	packetBuffer *bytes.Buffer
	f32Buffer    []float32
}

// NewUDPPublisher creates a publisher for source.
func NewUDPPublisher(interval time.Duration, sender *UDPSender, source SnapshotSource) (*UDPPublisher, error) {
	if sender == nil {
		return nil, errors.New("UDP sender cannot be nil")
	}
	if source == nil {
		return nil, errors.New("snapshot source cannot be nil")
	}
	if interval <= 0 {
		interval = DefaultInterval
		logger.Warnf("invalid publish interval, defaulting to %s", interval)
	}

	return &UDPPublisher{
		sender:       sender,
		source:       source,
		interval:     interval,
		packetBuffer: new(bytes.Buffer),
	}, nil
}

// Start begins publishing. Calling Start on a running publisher is a no-op.
func (p *UDPPublisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		logger.Warnf("publisher already running")
		return
	}
	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}
	ticker, doneChan := p.ticker, p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		logger.Infof("publishing every %s to %s", p.interval, p.sender.Target())
		for {
			select {
			case <-ticker.C:
				p.publish()
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop halts publishing and waits for the goroutine to exit. It is safe to
// call Stop multiple times.
func (p *UDPPublisher) Stop() error {
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
	logger.Debugf("publisher stopped after %d packets", p.sequenceNum)
	return nil
}

// Close stops the publisher and closes its sender.
func (p *UDPPublisher) Close() error {
	return errors.Join(p.Stop(), p.sender.Close())
}

func (p *UDPPublisher) publish() {
	snap := p.source.Snapshot()
	if snap.Sequence == p.lastSnapshot {
		return
	}
	p.lastSnapshot = snap.Sequence
	p.sequenceNum++

	if err := p.encode(p.sequenceNum, snap); err != nil {
		logger.Errorf("error packing snapshot %d: %v", snap.Sequence, err)
		return
	}
	if err := p.sender.Send(p.packetBuffer.Bytes()); err == nil {
		logger.Debugf("sent packet %d (%d bytes)", p.sequenceNum, p.packetBuffer.Len())
	}
}

// encode packs snap into packetBuffer.
func (p *UDPPublisher) encode(seq uint32, snap sonar.Snapshot) error {
	p.f32Buffer = poolPeakWindow(p.f32Buffer, snap.PeakWindow, MaxPeakValues)

	header := struct {
		Sequence  uint32
		Timestamp int64
		Mode      uint8
		Gesture   uint8
		Phase     uint8
		Target    float32
		First     float32
		Second    float32
		Count     uint16
	}{
		Sequence:  seq,
		Timestamp: snap.Time.UnixNano(),
		Mode:      uint8(snap.Mode),
		Gesture:   uint8(snap.Gesture),
		Phase:     uint8(snap.Phase),
		Target:    float32(snap.TargetFrequency),
		First:     float32(snap.Frequencies.First),
		Second:    float32(snap.Frequencies.Second),
		Count:     uint16(len(p.f32Buffer)),
	}

	p.packetBuffer.Reset()
	if err := binary.Write(p.packetBuffer, binary.BigEndian, header); err != nil {
		return err
	}
	return binary.Write(p.packetBuffer, binary.BigEndian, p.f32Buffer)
}

// poolPeakWindow converts window into dst. When window has more than limit
// values, each output value is the maximum of a group of ceil(len/limit)
// adjacent bins, so the peak survives the reduction.
func poolPeakWindow(dst []float32, window []float64, limit int) []float32 {
	stride := 1
	if len(window) > limit {
		stride = (len(window) + limit - 1) / limit
	}
	n := (len(window) + stride - 1) / stride
	if cap(dst) < n {
		dst = make([]float32, n)
	}
	dst = dst[:n]
	for i := range dst {
		group := window[i*stride : min((i+1)*stride, len(window))]
		best := group[0]
		for _, v := range group[1:] {
			best = math.Max(best, v)
		}
		dst[i] = float32(best)
	}
	return dst
}

// ParsePacket decodes a datagram produced by UDPPublisher.
func ParsePacket(b []byte) (Packet, error) {
	if len(b) < headerSize {
		return Packet{}, ErrShortPacket
	}
	be := binary.BigEndian
	pkt := Packet{
		Sequence:  be.Uint32(b[0:]),
		Timestamp: int64(be.Uint64(b[4:])),
		Mode:      sonar.Mode(b[12]),
		Gesture:   analysis.Gesture(b[13]),
		Phase:     analysis.Phase(b[14]),
		TargetHz:  math.Float32frombits(be.Uint32(b[15:])),
		FirstHz:   math.Float32frombits(be.Uint32(b[19:])),
		SecondHz:  math.Float32frombits(be.Uint32(b[23:])),
	}
	n := int(be.Uint16(b[27:]))
	body := b[headerSize:]
	if len(body) < n*4 {
		return Packet{}, fmt.Errorf("%w: want %d values, have %d bytes", ErrShortPacket, n, len(body))
	}
	pkt.PeakWindow = make([]float32, n)
	for i := range pkt.PeakWindow {
		pkt.PeakWindow[i] = math.Float32frombits(be.Uint32(body[i*4:]))
	}
	return pkt, nil
}

var _ interface{ Close() error } = (*UDPPublisher)(nil)
