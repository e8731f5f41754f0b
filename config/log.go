// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"flag"
	"os"

	"github.com/cnotch/xlog"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// 默认值
const (
	defaultLogMaxSize    = 20 // M
	defaultLogMaxDays    = 7
	defaultLogMaxBackups = 14
	defaultStageWarns    = 1
)

// LogConfig 日志配置
type LogConfig struct {
	Level xlog.Level `json:"level"` // 输出级别

	// ToFile 控制台之外，再以 JSON 格式写入滚动日志文件，
	// 会话、阶段等字段可直接检索
	ToFile     bool   `json:"tofile"`
	Filename   string `json:"filename"`
	MaxSize    int    `json:"maxsize"` // 单个文件上限，M
	MaxDays    int    `json:"maxdays"`
	MaxBackups int    `json:"maxbackups"` // 旧文件需同时满足 MaxDays 和 MaxBackups 才保留
	Compress   bool   `json:"compress"`

	// StageWarns 每个流水线阶段每秒最多输出的丢帧/播放失败告警
	StageWarns int `json:"stagewarns"`
}

func (c *LogConfig) initFlags() {
	flag.Var(&c.Level, "log-level",
		"Set the log level (debug shows session state transitions)")
	flag.BoolVar(&c.ToFile, "log-tofile", false,
		"Also write JSON logs to a rotated file")
	flag.StringVar(&c.Filename, "log-filename",
		"./logs/"+Name+".log", "Set the rotated log file")
	flag.IntVar(&c.MaxSize, "log-maxsize", defaultLogMaxSize,
		"Set the size in megabytes at which the log file is rotated")
	flag.IntVar(&c.MaxDays, "log-maxdays", defaultLogMaxDays,
		"Set the maximum days of old log files to retain")
	flag.IntVar(&c.MaxBackups, "log-maxbackups", defaultLogMaxBackups,
		"Set the maximum number of old log files to retain")
	flag.BoolVar(&c.Compress, "log-compress", false,
		"Compress rotated log files with gzip")
	flag.IntVar(&c.StageWarns, "log-stagewarns", defaultStageWarns,
		"Set the maximum warnings per second each pipeline stage may log")
}

func (c *LogConfig) fileWriter() *lumberjack.Logger {
	filename := c.Filename
	if filename == "" {
		filename = "./logs/" + Name + ".log"
	}
	return &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    orDefault(c.MaxSize, defaultLogMaxSize),
		MaxBackups: orDefault(c.MaxBackups, defaultLogMaxBackups),
		MaxAge:     orDefault(c.MaxDays, defaultLogMaxDays),
		LocalTime:  true,
		Compress:   c.Compress,
	}
}

// newLogger 控制台输出；ToFile 时同时输出到滚动文件
func (c *LogConfig) newLogger() *xlog.Logger {
	core := xlog.NewCore(xlog.NewConsoleEncoder(xlog.LstdFlags|xlog.Lmicroseconds|xlog.Lshortfile),
		xlog.Lock(os.Stderr), c.Level)
	if c.ToFile {
		core = xlog.NewTee(core,
			xlog.NewCore(xlog.NewJSONEncoder(xlog.Llongfile), c.fileWriter(), c.Level))
	}
	return xlog.New(core, xlog.AddCaller())
}

// 初始化根日志
func (c *LogConfig) initLogger() {
	xlog.ReplaceGlobal(c.newLogger())
}

// stageWarns 阶段告警频率
func (c *LogConfig) stageWarns() int {
	return orDefault(c.StageWarns, defaultStageWarns)
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
