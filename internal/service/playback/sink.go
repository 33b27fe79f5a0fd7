package playback

import (
	"context"
	"errors"

	"github.com/zhouzirui/codementor/backend/internal/audio"
)

// ErrSourceStopped 音源已停止时 Source.Stop 返回该错误
var ErrSourceStopped = errors.New("audio source already stopped")

// Sink 所有音源共用的唯一音频输出
type Sink interface {
	// Suspended 报告输出是否被宿主挂起
	Suspended() bool
	// Resume 将挂起的输出恢复为运行状态
	Resume(ctx context.Context) error
	// CreateSource 为 buf 分配可播放的音源
	CreateSource(buf *audio.Buffer) Source
}

// Source 挂在 Sink 上的一段可播放缓冲
type Source interface {
	// Connect 将音源接入其 sink
	Connect() error
	// OnEnded 注册自然结束回调，传 nil 清除。
	// 回调不得在 Start 或 Stop 内部被调用
	OnEnded(fn func())
	// Start 开始播放
	Start() error
	// Stop 停止播放，不触发完成回调
	Stop() error
}
