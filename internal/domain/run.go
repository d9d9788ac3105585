package domain

import "time"

// RunStatus 一次流水线执行的结果类型
type RunStatus string

const (
	RunNoData     RunStatus = "no_data"
	RunAllDeduped RunStatus = "all_deduped"
	RunSuccess    RunStatus = "success"
	RunError      RunStatus = "error"
)

// RunResult 流水线执行结果，成功时才会填充统计字段
type RunResult struct {
	RunID         string    `json:"run_id,omitempty"`
	Status        RunStatus `json:"status"`
	Total         int       `json:"total,omitempty"`
	Skipped       int       `json:"skipped,omitempty"`
	Pushed        int       `json:"pushed,omitempty"`
	EmailSent     bool      `json:"email,omitempty"`
	UsersNotified int       `json:"users_notified,omitempty"`
	Message       string    `json:"message,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
}

// Progress 给前端轮询的进度快照
type Progress struct {
	Percentage int    `json:"percentage"`
	Step       string `json:"step"`
	Message    string `json:"message"`
}

// TriggerStatus 手动触发的同步返回值
type TriggerStatus string

const (
	TriggerStarted        TriggerStatus = "triggered"
	TriggerAlreadyRunning TriggerStatus = "already_running"
	TriggerLimitReached   TriggerStatus = "limit_reached"
)

// PipelineStatus /api/status 的返回结构
type PipelineStatus struct {
	Running     bool       `json:"running"`
	LastResult  *RunResult `json:"last_result"`
	Progress    Progress   `json:"progress"`
	TodayPushed bool       `json:"today_pushed"`
}
