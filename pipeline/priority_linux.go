// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build linux

package pipeline

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// elevate 把当前 goroutine 绑定到 OS 线程，并按优先级调整线程 nice 值。
// 线程不解绑，goroutine 退出时线程随之销毁，调整不会泄漏到其它 goroutine。
// 普通用户无权降低 nice 值时返回 EPERM，调用者可忽略。
func elevate(priority int) error {
	if priority <= 0 {
		return nil
	}
	runtime.LockOSThread()
	return unix.Setpriority(unix.PRIO_PROCESS, unix.Gettid(), niceOf(priority))
}
