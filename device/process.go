// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package device

import (
	"bytes"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/cnotch/xlog"
)

// process 外部采集/播放进程，通过标准输入输出交换原始媒体数据。
// 管道由本端创建并持有，Wait 不会关闭仍在读写的一端。
type process struct {
	name      string
	cmd       *exec.Cmd
	stdin     *os.File // 写入子进程标准输入
	stdout    *os.File // 读取子进程标准输出
	closeOnce sync.Once
}

func startProcess(program string, args []string, env []string, wantIn, wantOut bool) (_ *process, err error) {
	cmd := exec.Command(program, args...)
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}
	p := &process{name: program, cmd: cmd}
	cmd.Stderr = &stderrLogger{name: program, logger: xlog.L()}

	// 子进程一侧的管道端，启动后本端关闭
	var childEnds []*os.File
	defer func() {
		for _, f := range childEnds {
			f.Close()
		}
		if err != nil {
			p.closePipes()
		}
	}()

	if wantIn {
		r, w, perr := os.Pipe()
		if perr != nil {
			return nil, perr
		}
		cmd.Stdin, p.stdin = r, w
		childEnds = append(childEnds, r)
	}
	if wantOut {
		r, w, perr := os.Pipe()
		if perr != nil {
			return nil, perr
		}
		cmd.Stdout, p.stdout = w, r
		childEnds = append(childEnds, w)
	}
	if err = cmd.Start(); err != nil {
		return nil, err
	}

	xlog.L().Debugf("started %s %s (pid %d)", program, strings.Join(args, " "), cmd.Process.Pid)
	return p, nil
}

// Close 关闭标准输入、结束进程并回收；
// 阻塞中的读写因管道关闭或进程退出而返回
func (p *process) Close() error {
	p.closeOnce.Do(func() {
		if p.stdin != nil {
			p.stdin.Close()
		}
		if p.cmd.Process != nil {
			p.cmd.Process.Kill()
		}
		p.cmd.Wait()
		if p.stdout != nil {
			p.stdout.Close()
		}
	})
	return nil
}

func (p *process) closePipes() {
	if p.stdin != nil {
		p.stdin.Close()
	}
	if p.stdout != nil {
		p.stdout.Close()
	}
}

// stderrLogger 把外部进程的错误输出逐行写入日志
type stderrLogger struct {
	name   string
	logger *xlog.Logger
}

func (l *stderrLogger) Write(p []byte) (int, error) {
	for _, line := range bytes.Split(bytes.TrimSpace(p), []byte{'\n'}) {
		if len(line) > 0 {
			l.logger.Warnf("%s: %s", l.name, line)
		}
	}
	return len(p), nil
}

// DetectProgram 判断命令行程序是否存在，存在时记录其版本信息
func DetectProgram(l *xlog.Logger, program string, versionArgs ...string) bool {
	out, err := exec.Command(program, versionArgs...).CombinedOutput()
	if err != nil && len(out) == 0 {
		return false
	}

	first := string(out)
	if i := strings.IndexAny(first, "\r\n"); i > 0 {
		first = first[:i]
	}
	l.Infof("detect %s", strings.TrimSpace(first))
	return true
}
