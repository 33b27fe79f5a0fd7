package playback

import "time"

// Clock 调度延迟动作，测试中替换为手动时钟
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer 可取消的定时动作
type Timer interface {
	// Stop 取消动作，可重复调用
	Stop() bool
}

type systemClock struct{}

// SystemClock 返回基于 time.AfterFunc 的 Clock
func SystemClock() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
