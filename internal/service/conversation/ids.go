package conversation

import "time"

// idSource 以毫秒时间戳生成消息ID，冲突时递增，
// 保证同一视图内ID严格递增
type idSource struct {
	now  func() time.Time
	last int64
}

func (s *idSource) next() int64 {
	id := s.now().UnixMilli()
	if id <= s.last {
		id = s.last + 1
	}
	s.last = id
	return id
}

// displayTime 渲染消息旁显示的 HH:MM 时间
func displayTime(t time.Time) string {
	return t.Format("15:04")
}
