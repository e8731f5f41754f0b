// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pipeline

// 各阶段的建议优先级：音频高于视频，采集/播放高于网络
const (
	PriorityAudioPlayback = 22
	PriorityAudioCapture  = 20
	PriorityAudioNet      = 18
	PriorityVideoCapture  = 4
	PriorityVideoTransmit = 3
	PriorityVideoReceive  = 2
	PriorityVideoPlayback = 1
)

// niceOf 优先级映射到 nice 值 [-11, 0]
func niceOf(priority int) int {
	if priority <= 0 {
		return 0
	}
	if priority > 22 {
		priority = 22
	}
	return -priority / 2
}
