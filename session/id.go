// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package session

import (
	"encoding/base64"
	"encoding/binary"
	"sync/atomic"
	"time"
)

// next 以时间为种子，避免进程重启后 ID 重复
var next = uint64(
	time.Now().Sub(time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)).Seconds(),
)

// NewID 生成进程内唯一的会话标识（varint 的 Base64 形式）
func NewID() string {
	buf := [binary.MaxVarintLen64]byte{}
	l := binary.PutUvarint(buf[:], atomic.AddUint64(&next, 1))
	return base64.RawURLEncoding.EncodeToString(buf[:l])
}
