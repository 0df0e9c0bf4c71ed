// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	applog "tvroute/internal/log"
)

// Sender is the datagram sink a Publisher writes to.
type Sender interface {
	Send(packet []byte) error
	Close() error
}

// Publisher queues values and sends each one as a framed JSON datagram from
// its own goroutine, so Send never blocks on the network.
type Publisher struct {
	sender Sender
	queue  chan any

	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	sequenceNum  uint32
	packetBuffer *bytes.Buffer
}

// NewPublisher wraps sender with a queue of the given length.
func NewPublisher(sender Sender, queueLen int) (*Publisher, error) {
	if sender == nil {
		return nil, errors.New("UDPPublisher: UDP sender cannot be nil")
	}
	if queueLen <= 0 {
		queueLen = 64
	}
	p := &Publisher{
		sender:       sender,
		queue:        make(chan any, queueLen),
		doneChan:     make(chan struct{}),
		packetBuffer: new(bytes.Buffer),
	}
	p.wg.Add(1)
	go p.run()
	return p, nil
}

/*
Packet Structure (BigEndian)

+-----------------------------------------------------------------------------+
| Field             | Data Type      | Size (Bytes) | Description             |
|-------------------|----------------|--------------|-------------------------|
| Sequence Number   | uint32         | 4            | Monotonically increasing|
| Timestamp         | int64          | 8            | Nanoseconds since epoch |
| Payload Length    | uint16         | 2            | Number of bytes (N)     |
| Payload           | []byte         | N            | JSON encoded value      |
+-----------------------------------------------------------------------------+
*/

// HeaderSize is the fixed size of the packet header.
const HeaderSize = 4 + 8 + 2

// Packet is a decoded datagram.
type Packet struct {
	Sequence  uint32
	Timestamp time.Time
	Payload   []byte
}

// Decode parses a datagram produced by a Publisher.
func Decode(b []byte) (Packet, error) {
	if len(b) < HeaderSize {
		return Packet{}, fmt.Errorf("packet too short: %d bytes", len(b))
	}
	n := int(binary.BigEndian.Uint16(b[12:14]))
	if len(b) != HeaderSize+n {
		return Packet{}, fmt.Errorf("payload length %d does not match packet size %d", n, len(b))
	}
	return Packet{
		Sequence:  binary.BigEndian.Uint32(b[0:4]),
		Timestamp: time.Unix(0, int64(binary.BigEndian.Uint64(b[4:12]))),
		Payload:   append([]byte(nil), b[HeaderSize:]...),
	}, nil
}

func (p *Publisher) run() {
	defer p.wg.Done()
	for {
		select {
		case data := <-p.queue:
			p.buildAndSendPacket(data)
		case <-p.doneChan:
			return
		}
	}
}

func (p *Publisher) buildAndSendPacket(data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		applog.Errorf("UDPPublisher: Error encoding %T: %v", data, err)
		return
	}
	if len(payload) > math.MaxUint16 {
		applog.Errorf("UDPPublisher: Payload of %d bytes does not fit a packet", len(payload))
		return
	}

	p.sequenceNum++
	p.packetBuffer.Reset()
	var header [HeaderSize]byte
	binary.BigEndian.PutUint32(header[0:4], p.sequenceNum)
	binary.BigEndian.PutUint64(header[4:12], uint64(time.Now().UnixNano()))
	binary.BigEndian.PutUint16(header[12:14], uint16(len(payload)))
	p.packetBuffer.Write(header[:])
	p.packetBuffer.Write(payload)

	if err := p.sender.Send(p.packetBuffer.Bytes()); err != nil {
		applog.Warnf("UDPPublisher: Error sending packet %d: %v", p.sequenceNum, err)
		return
	}
	applog.Debugf("UDPPublisher: Sent packet %d (%d bytes)", p.sequenceNum, p.packetBuffer.Len())
}

// Send queues data. A full queue drops it.
func (p *Publisher) Send(data any) error {
	select {
	case <-p.doneChan:
		return errors.New("UDPPublisher: closed")
	default:
	}
	select {
	case p.queue <- data:
	default:
		applog.Debugf("UDPPublisher: queue full, dropping %T", data)
	}
	return nil
}

// Close stops the publisher goroutine and closes the sender. Queued values
// that were not sent yet are dropped.
func (p *Publisher) Close() error {
	var err error
	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.wg.Wait()
		err = p.sender.Close()
	})
	return err
}
