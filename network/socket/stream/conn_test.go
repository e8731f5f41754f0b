// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package stream

import (
	"bytes"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tcpPair(t *testing.T) (net.Conn, net.Conn) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := l.Accept()
		if err == nil {
			accepted <- c
		}
		close(accepted)
	}()

	client, err := net.Dial("tcp", l.Addr().String())
	require.NoError(t, err)
	server := <-accepted
	require.NotNil(t, server)
	return client, server
}

func TestConn_ReadWouldBlock(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	conn := NewConn(a, Backoff(time.Millisecond))
	buf := make([]byte, 16)

	start := time.Now()
	n, err := conn.Read(buf)
	assert.Equal(t, 0, n)
	assert.Equal(t, ErrWouldBlock, err)
	assert.True(t, IsWouldBlock(err))
	assert.True(t, time.Since(start) < 500*time.Millisecond)

	go b.Write([]byte("hello"))
	for {
		n, err = conn.Read(buf)
		if err == ErrWouldBlock {
			continue
		}
		break
	}
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
	assert.Equal(t, int64(5), conn.Flow().GetSample().InBytes)
}

func TestConn_WriteWouldBlock(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	conn := NewConn(a, Backoff(time.Millisecond))
	n, err := conn.Write([]byte("nobody reads"))
	assert.Equal(t, 0, n)
	assert.Equal(t, ErrWouldBlock, err)
}

func TestConn_SenderRetries(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	conn := NewConn(a, Backoff(time.Millisecond))
	payload := bytes.Repeat([]byte{0xAB}, 4096)

	got := make(chan []byte, 1)
	go func() {
		time.Sleep(20 * time.Millisecond) // 让发送端先经历若干次超时
		buf := make([]byte, len(payload))
		io.ReadFull(b, buf)
		got <- buf
	}()

	w := conn.Sender(func() bool { return true })
	n, err := w.Write(payload)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)
	assert.Equal(t, payload, <-got)
	assert.Equal(t, int64(len(payload)), conn.Flow().GetSample().OutBytes)
}

func TestConn_SenderStopped(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	conn := NewConn(a, Backoff(time.Millisecond))
	var running int32 = 1
	time.AfterFunc(10*time.Millisecond, func() { atomic.StoreInt32(&running, 0) })

	w := conn.Sender(func() bool { return atomic.LoadInt32(&running) == 1 })
	start := time.Now()
	_, err := w.Write([]byte("blocked forever"))
	assert.Equal(t, ErrStopped, err)
	assert.True(t, time.Since(start) < time.Second)
}

func TestConn_PeerClose(t *testing.T) {
	client, server := tcpPair(t)
	defer client.Close()

	conn := NewConn(server, Backoff(time.Millisecond), SocketBuffer(16*1024))
	defer conn.Close()
	client.Close()

	buf := make([]byte, 8)
	var err error
	for i := 0; i < 1000; i++ {
		_, err = conn.Read(buf)
		if err != ErrWouldBlock {
			break
		}
	}
	assert.Equal(t, io.EOF, err)
}

func TestConn_SendError(t *testing.T) {
	a, b := net.Pipe()
	b.Close()
	defer a.Close()

	conn := NewConn(a)
	w := conn.Sender(func() bool { return true })
	_, err := w.Write([]byte{1})
	assert.Error(t, err)
	assert.False(t, IsWouldBlock(err))
	assert.NotEqual(t, ErrStopped, err)
}

func TestOptions(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	conn := NewConn(a, Backoff(0), NoDelay(false))
	assert.Equal(t, minBackoff, conn.Backoff())
	assert.False(t, conn.noDelay)
	assert.Equal(t, defaultBackoff, NewConn(a).Backoff())
}
