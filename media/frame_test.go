// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrame(t *testing.T) {
	t.Run("pooled", func(t *testing.T) {
		f := NewFrame(1764)
		assert.Equal(t, 1764, f.Len())
		assert.Equal(t, 2048, cap(f.Bytes()))
		f.Release()
		assert.Nil(t, f.Bytes())
		assert.Equal(t, 0, f.Len())
		f.Release() // 重复释放
	})

	t.Run("large", func(t *testing.T) {
		f := NewFrame(1<<20 + 1)
		assert.Equal(t, -1, f.class)
		assert.Equal(t, 1<<20+1, f.Len())
		f.Release()
	})

	t.Run("wrap", func(t *testing.T) {
		p := []byte{1, 2, 3}
		f := WrapFrame(p)
		assert.Equal(t, p, f.Bytes())
		f.Release()
		assert.Nil(t, f.Bytes())
	})

	t.Run("copy", func(t *testing.T) {
		p := []byte{1, 2, 3}
		f := CopyFrame(p)
		p[0] = 9
		assert.Equal(t, []byte{1, 2, 3}, f.Bytes())
	})

	t.Run("zero", func(t *testing.T) {
		f := NewFrame(0)
		assert.Equal(t, 0, f.Len())
		assert.NotNil(t, f.Bytes())
	})
}

func TestSizeClass(t *testing.T) {
	assert.Equal(t, 0, sizeClass(1))
	assert.Equal(t, 0, sizeClass(512))
	assert.Equal(t, 1, sizeClass(513))
	assert.Equal(t, 2, sizeClass(1764))
	assert.Equal(t, maxClass-minClass, sizeClass(1<<20))
	assert.Equal(t, -1, sizeClass(1<<20+1))
}
