package playback

import "sync"

// Attempt 一次 PlaySpeech 或 StopSpeech 调用的完成信号。
// 调用完成时 Done 恰好关闭一次；被后续调用取代的调用永远不会完成
type Attempt struct {
	once     sync.Once
	done     chan struct{}
	callback func()
}

func newAttempt(callback func()) *Attempt {
	return &Attempt{done: make(chan struct{}), callback: callback}
}

// Done 返回在回调触发时关闭的通道
func (a *Attempt) Done() <-chan struct{} {
	return a.done
}

// Completed 报告回调是否已触发
func (a *Attempt) Completed() bool {
	select {
	case <-a.done:
		return true
	default:
		return false
	}
}

func (a *Attempt) complete() {
	a.once.Do(func() {
		close(a.done)
		if a.callback != nil {
			a.callback()
		}
	})
}
