// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package avwire

import (
	"bytes"
	"errors"
	"io"
	"math/rand"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errAgain = errors.New("would block")

// stutterReader 每隔一次读取返回临时错误，且每次最多给出 chunk 字节
type stutterReader struct {
	r     io.Reader
	chunk int
	calls int
}

func (s *stutterReader) Read(p []byte) (int, error) {
	s.calls++
	if s.calls%2 == 1 {
		return 0, errAgain
	}
	if len(p) > s.chunk {
		p = p[:s.chunk]
	}
	return s.r.Read(p)
}

func payloadOf(size int) []byte {
	p := make([]byte, size)
	rand.New(rand.NewSource(int64(size))).Read(p)
	return p
}

func TestVideo_RoundTrip(t *testing.T) {
	sizes := []int{0, 1, 3, 4, 5, 100, 1000, 65535, 65536, 1 << 20}
	for _, size := range sizes {
		payload := payloadOf(size)

		var wire bytes.Buffer
		require.NoError(t, WriteVideoFrame(&wire, payload))
		assert.Equal(t, AppendVideoFrame(nil, payload), wire.Bytes())
		assert.Equal(t, HeaderSize+size, wire.Len())

		d := NewVideoDeframer(1 << 20)
		f, err := d.ReadFrame(&wire)
		require.NoError(t, err, "size %d", size)
		assert.Equal(t, size, f.Len())
		assert.True(t, bytes.Equal(payload, f.Bytes()), "size %d", size)

		_, err = d.ReadFrame(&wire)
		assert.Equal(t, io.EOF, err)
	}
}

func TestVideo_OneByteDelivery(t *testing.T) {
	var wire []byte
	payloads := [][]byte{payloadOf(300), payloadOf(0), payloadOf(7), payloadOf(4096)}
	for _, p := range payloads {
		wire = AppendVideoFrame(wire, p)
	}

	r := iotest.OneByteReader(bytes.NewReader(wire))
	d := NewVideoDeframer(0)
	for _, p := range payloads {
		f, err := d.ReadFrame(r)
		require.NoError(t, err)
		assert.Equal(t, p, f.Bytes())
	}
	_, err := d.ReadFrame(r)
	assert.Equal(t, io.EOF, err)
}

func TestVideo_ResumeAfterWouldBlock(t *testing.T) {
	payload := payloadOf(2000)
	wire := AppendVideoFrame(nil, payload)
	r := &stutterReader{r: bytes.NewReader(wire), chunk: 3}
	d := NewVideoDeframer(0)

	var got []byte
	retries := 0
	for got == nil {
		f, err := d.ReadFrame(r)
		if err == errAgain {
			retries++
			continue
		}
		require.NoError(t, err)
		got = f.Bytes()
	}
	assert.Equal(t, payload, got)
	assert.True(t, retries > 600)
	assert.Equal(t, 0, d.Pending())
}

func TestVideo_TooLarge(t *testing.T) {
	wire := AppendVideoFrame(nil, payloadOf(1025))
	d := NewVideoDeframer(1024)
	_, err := d.ReadFrame(bytes.NewReader(wire))
	assert.True(t, errors.Is(err, ErrFrameTooLarge))
	assert.Equal(t, 0, d.Pending())
}

func TestVideo_UnexpectedEOF(t *testing.T) {
	wire := AppendVideoFrame(nil, payloadOf(100))

	d := NewVideoDeframer(0)
	_, err := d.ReadFrame(bytes.NewReader(wire[:2]))
	assert.Equal(t, io.ErrUnexpectedEOF, err)

	d = NewVideoDeframer(0)
	_, err = d.ReadFrame(bytes.NewReader(wire[:50]))
	assert.Equal(t, io.ErrUnexpectedEOF, err)
	assert.Equal(t, 0, d.Pending())
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) { return 0, nil }

func TestVideo_NoProgress(t *testing.T) {
	d := NewVideoDeframer(0)
	_, err := d.ReadFrame(zeroReader{})
	assert.Equal(t, io.ErrNoProgress, err)
}

type failWriter struct{ n int }

func (w *failWriter) Write(p []byte) (int, error) {
	w.n++
	return 0, errors.New("broken pipe")
}

func TestWriteVideoFrame_Error(t *testing.T) {
	w := &failWriter{}
	assert.Error(t, WriteVideoFrame(w, []byte{1, 2, 3}))
	assert.Equal(t, 1, w.n, "payload must not be written after a failed header")
}
