// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"context"

	"github.com/cnotch/avchat/config"
	"github.com/cnotch/avchat/device"
	"github.com/cnotch/avchat/service"
	"github.com/cnotch/scheduler"
	"github.com/cnotch/xlog"
)

func main() {
	// 初始化配置
	config.InitConfig()
	// 初始化全局计划任务
	scheduler.SetPanicHandler(func(job *scheduler.ManagedJob, r interface{}) {
		xlog.Errorf("scheduler task panic. tag: %v, recover: %v", job.Tag, r)
	})

	// 初始化各类设备提供者
	devices, err := device.LoadSet(config.LoadAudioInProvider, config.LoadAudioOutProvider,
		config.LoadVideoInProvider, config.LoadVideoOutProvider)
	if err != nil {
		xlog.L().Panic(err.Error())
	}

	// 外部采集/播放程序
	for program, arg := range map[string]string{
		"rec": "--version", "play": "--version", "ffmpeg": "-version", "ffplay": "-version"} {
		if !device.DetectProgram(xlog.L(), program, arg) {
			xlog.L().Warnf("%s not found, the matching device provider is unavailable", program)
		}
	}

	// Start new service
	svc, err := service.NewService(context.Background(), xlog.L(), devices, config.SessionOptions())
	if err != nil {
		xlog.L().Panic(err.Error())
	}

	// Listen and serve
	svc.Listen()
}
