package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github-trending-digest/internal/common"
	"github-trending-digest/internal/domain"
	"github-trending-digest/internal/port"
	"github-trending-digest/pkg/logger"
)

// BatchSize 每次请求 LLM 的项目数
const BatchSize = 6

const fallbackSummaryLimit = 50

// Classifier 实现了 port.Classifier 接口
type Classifier struct {
	llm        port.LLMProvider
	batchSize  int
	timeout    time.Duration
	maxRetries int
	retryDelay time.Duration
}

func NewClassifier(llm port.LLMProvider) *Classifier {
	return &Classifier{
		llm:        llm,
		batchSize:  BatchSize,
		timeout:    90 * time.Second,
		maxRetries: 1,
		retryDelay: 2 * time.Second,
	}
}

// batchResult 单个批次的结果；err 不为空时 records 全部是降级记录
type batchResult struct {
	records []*domain.AnalyzedRepo
	err     error
}

// llmItem LLM 返回的单个项目
type llmItem struct {
	Name     string   `json:"name"`
	Category string   `json:"category"`
	Summary  string   `json:"summary_zh"`
	Detail   string   `json:"detail_zh"`
	TechTags []string `json:"tech_tags"`
}

// Classify 按批次分类，返回顺序与输入一致，数量总是相等
func (c *Classifier) Classify(ctx context.Context, repos []*domain.TrendingRepo, directions []domain.Direction) []*domain.AnalyzedRepo {
	out := make([]*domain.AnalyzedRepo, 0, len(repos))
	system := buildSystemPrompt(directions)
	degraded := 0

	for start := 0; start < len(repos); start += c.batchSize {
		end := min(start+c.batchSize, len(repos))
		res := c.classifyBatch(ctx, system, repos[start:end])
		if res.err != nil {
			logger.Error().Err(res.err).Str("stage", "analyzing").Int("batch", start/c.batchSize).Int("count", end-start).Msg("❌ AI 分析失败，使用降级记录")
		}
		for _, r := range res.records {
			if r.Degraded {
				degraded++
			}
		}
		out = append(out, res.records...)
	}

	logger.Info().Str("stage", "analyzing").Int("count", len(out)).Int("degraded", degraded).Msg("✅ AI 分析完成")
	return out
}

func (c *Classifier) classifyBatch(ctx context.Context, system string, batch []*domain.TrendingRepo) batchResult {
	if c.llm == nil {
		return fallbackBatch(batch, common.NewError(common.ErrCodeAIProcessing, "未配置 LLM"))
	}

	user := buildUserPrompt(batch)
	var raw string
	err := common.Do(ctx, func() error {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		var callErr error
		raw, callErr = c.llm.Complete(callCtx, system, user)
		return callErr
	},
		common.WithMaxRetries(c.maxRetries),
		common.WithInitialDelay(c.retryDelay),
	)
	if err != nil {
		return fallbackBatch(batch, err)
	}

	items, err := parseItems(raw)
	if err != nil {
		return fallbackBatch(batch, err)
	}

	byName := make(map[string]llmItem, len(items))
	for _, it := range items {
		key := strings.ToLower(strings.TrimSpace(it.Name))
		if _, dup := byName[key]; !dup {
			byName[key] = it
		}
	}

	records := make([]*domain.AnalyzedRepo, 0, len(batch))
	missing := 0
	for _, repo := range batch {
		it, ok := byName[strings.ToLower(repo.Name)]
		if !ok {
			missing++
			records = append(records, DegradedRecord(repo))
			continue
		}
		records = append(records, &domain.AnalyzedRepo{
			Repo:     repo,
			Category: domain.NormalizeCategory(strings.TrimSpace(it.Category)),
			Summary:  strings.TrimSpace(it.Summary),
			Detail:   strings.TrimSpace(it.Detail),
			TechTags: cleanTags(it.TechTags),
		})
	}
	if missing > 0 {
		logger.Warn().Str("stage", "analyzing").Int("missing", missing).Msg("⚠️ AI 返回结果缺少部分项目，已降级")
	}
	return batchResult{records: records}
}

func fallbackBatch(batch []*domain.TrendingRepo, err error) batchResult {
	records := make([]*domain.AnalyzedRepo, 0, len(batch))
	for _, repo := range batch {
		records = append(records, DegradedRecord(repo))
	}
	return batchResult{records: records, err: err}
}

// DegradedRecord 不经过 LLM 的兜底记录：分类“其他”，摘要为截断的原始描述，没有标签
func DegradedRecord(repo *domain.TrendingRepo) *domain.AnalyzedRepo {
	summary := ""
	if repo != nil {
		summary = truncateRunes(strings.TrimSpace(repo.Description), fallbackSummaryLimit)
	}
	return &domain.AnalyzedRepo{
		Repo:     repo,
		Category: domain.CategoryOther,
		Summary:  summary,
		TechTags: []string{},
		Degraded: true,
	}
}

// parseItems 兼容三种返回: 纯数组、{"projects": [...]}、{"results": [...]}
// 外面包了 markdown 代码块或多余文字也能解析
func parseItems(raw string) ([]llmItem, error) {
	clean, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}

	if strings.HasPrefix(clean, "[") {
		var items []llmItem
		if err := json.Unmarshal([]byte(clean), &items); err != nil {
			return nil, common.WrapError(common.ErrCodeAIProcessing, "JSON 解析失败", err)
		}
		return items, nil
	}

	var wrapped struct {
		Projects []llmItem `json:"projects"`
		Results  []llmItem `json:"results"`
	}
	if err := json.Unmarshal([]byte(clean), &wrapped); err != nil {
		return nil, common.WrapError(common.ErrCodeAIProcessing, "JSON 解析失败", err)
	}
	if wrapped.Projects != nil {
		return wrapped.Projects, nil
	}
	if wrapped.Results != nil {
		return wrapped.Results, nil
	}

	// 只返回了一个项目对象
	var single llmItem
	if err := json.Unmarshal([]byte(clean), &single); err == nil && single.Name != "" {
		return []llmItem{single}, nil
	}
	return nil, common.NewError(common.ErrCodeAIProcessing, "AI 返回的 JSON 中没有项目列表")
}

// extractJSON 找到第一个 [ 或 { 到与之对应的最后一个 ] 或 }
// 即使 AI 返回 "```json [...] ```" 也能抠出中间的部分
func extractJSON(raw string) (string, error) {
	start := strings.IndexAny(raw, "[{")
	if start == -1 {
		return "", common.NewError(common.ErrCodeAIProcessing, fmt.Sprintf("无法提取 JSON, AI 原文: %s", truncateRunes(raw, 200)))
	}

	closer := "}"
	if raw[start] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(raw, closer)
	if end <= start {
		return "", common.NewError(common.ErrCodeAIProcessing, fmt.Sprintf("JSON 不完整, AI 原文: %s", truncateRunes(raw, 200)))
	}
	return raw[start : end+1], nil
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		key := strings.ToLower(t)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
