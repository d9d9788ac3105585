package progress

import (
	"sync"

	"github-trending-digest/internal/domain"
)

// 阶段 key
const (
	StepIdle      = "idle"
	StepScraping  = "scraping"
	StepDedup     = "dedup"
	StepEnriching = "enriching"
	StepAnalyzing = "analyzing"
	StepReport    = "report"
	StepEmail     = "email"
	StepDone      = "done"
	StepError     = "error"
)

type stage struct {
	percentage int
	label      string
}

var stages = map[string]stage{
	StepScraping:  {10, "正在抓取 GitHub Trending"},
	StepDedup:     {20, "正在去重"},
	StepEnriching: {45, "正在获取项目详情"},
	StepAnalyzing: {70, "AI 正在分析"},
	StepReport:    {85, "正在生成日报"},
	StepEmail:     {92, "正在发送邮件"},
	StepDone:      {100, "完成"},
}

const idleMessage = "等待中"

// Tracker 流水线进度，只有流水线 goroutine 写，HTTP handler 读
type Tracker struct {
	mu       sync.RWMutex
	state    domain.Progress
	observer func(domain.Progress)
}

func NewTracker() *Tracker {
	return &Tracker{state: idle()}
}

func idle() domain.Progress {
	return domain.Progress{Percentage: 0, Step: StepIdle, Message: idleMessage}
}

// OnChange 注册状态变化回调，每次变化后同步调用
func (t *Tracker) OnChange(fn func(domain.Progress)) {
	t.mu.Lock()
	t.observer = fn
	t.mu.Unlock()
}

func (t *Tracker) Reset() {
	t.set(func(domain.Progress) (domain.Progress, bool) { return idle(), true })
}

// SetStep 切换到指定阶段，detail 为空时使用默认文案；未知 key 忽略
// error 阶段保留当前百分比，其它阶段的百分比不会回退
func (t *Tracker) SetStep(key, detail string) {
	t.set(func(cur domain.Progress) (domain.Progress, bool) {
		if key == StepError {
			return domain.Progress{Percentage: cur.Percentage, Step: StepError, Message: detail}, true
		}
		st, ok := stages[key]
		if !ok {
			return cur, false
		}
		msg := st.label
		if detail != "" {
			msg = detail
		}
		pct := st.percentage
		if pct < cur.Percentage {
			pct = cur.Percentage
		}
		return domain.Progress{Percentage: pct, Step: key, Message: msg}, true
	})
}

// Fail 是 SetStep(StepError, msg) 的简写
func (t *Tracker) Fail(msg string) {
	t.SetStep(StepError, msg)
}

func (t *Tracker) Snapshot() domain.Progress {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

func (t *Tracker) set(next func(domain.Progress) (domain.Progress, bool)) {
	t.mu.Lock()
	state, changed := next(t.state)
	if changed {
		t.state = state
	}
	observer := t.observer
	t.mu.Unlock()

	if changed && observer != nil {
		observer(state)
	}
}
