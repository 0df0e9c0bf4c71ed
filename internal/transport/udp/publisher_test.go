// SPDX-License-Identifier: MIT
package udp

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSender struct {
	mu      sync.Mutex
	packets [][]byte
	closed  bool
	err     error
}

func (c *captureSender) Send(packet []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.packets = append(c.packets, append([]byte(nil), packet...))
	return c.err
}

func (c *captureSender) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *captureSender) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.packets)
}

func TestPublisherFramesPackets(t *testing.T) {
	sender := &captureSender{}
	p, err := NewPublisher(sender, 8)
	require.NoError(t, err)

	require.NoError(t, p.Send(map[string]string{"type": "patch-created"}))
	require.NoError(t, p.Send(map[string]string{"type": "patch-released"}))
	require.Eventually(t, func() bool { return sender.count() == 2 }, time.Second, time.Millisecond)
	require.NoError(t, p.Close())
	assert.True(t, sender.closed)

	first, err := Decode(sender.packets[0])
	require.NoError(t, err)
	second, err := Decode(sender.packets[1])
	require.NoError(t, err)
	assert.Equal(t, uint32(1), first.Sequence)
	assert.Equal(t, uint32(2), second.Sequence)
	assert.JSONEq(t, `{"type":"patch-created"}`, string(first.Payload))
	assert.WithinDuration(t, time.Now(), first.Timestamp, 5*time.Second)

	assert.Error(t, p.Send("late"))
	assert.NoError(t, p.Close())
}

func TestPublisherSkipsBadValues(t *testing.T) {
	sender := &captureSender{err: errors.New("unreachable")}
	p, err := NewPublisher(sender, 0)
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Send(func() {}))
	require.NoError(t, p.Send("ok"))
	require.Eventually(t, func() bool { return sender.count() == 1 }, time.Second, time.Millisecond)
}

func TestNewPublisherRequiresSender(t *testing.T) {
	_, err := NewPublisher(nil, 1)
	assert.Error(t, err)
}

func TestDecodeRejectsMalformed(t *testing.T) {
	_, err := Decode([]byte{1, 2, 3})
	assert.Error(t, err)

	pkt := make([]byte, HeaderSize+1)
	pkt[13] = 5
	_, err = Decode(pkt)
	assert.Error(t, err)
}

func TestUDPSenderLoopback(t *testing.T) {
	ln, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer ln.Close()

	s, err := NewUDPSender(ln.LocalAddr().String())
	require.NoError(t, err)
	p, err := NewPublisher(s, 4)
	require.NoError(t, err)
	require.NoError(t, p.Send("hello"))

	require.NoError(t, ln.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 1024)
	n, err := ln.Read(buf)
	require.NoError(t, err)
	pkt, err := Decode(buf[:n])
	require.NoError(t, err)
	assert.Equal(t, `"hello"`, string(pkt.Payload))

	require.NoError(t, p.Close())
	assert.Error(t, s.Send([]byte("x")), "sender is closed with the publisher")
}
