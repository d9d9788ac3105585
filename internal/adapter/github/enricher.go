package github

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/go-github/v53/github"
	"golang.org/x/oauth2"

	"github-trending-digest/internal/common"
	"github-trending-digest/internal/domain"
	"github-trending-digest/pkg/logger"
)

const readmeLimit = 2000

// Enricher 实现了 port.Enricher 接口，补充 topics 和 README 摘要
type Enricher struct {
	client     *github.Client
	workers    int
	timeout    time.Duration
	retryDelay time.Duration
}

// NewEnricher 初始化 GitHub 客户端
// token 为空时匿名访问，限制 60 次/小时
func NewEnricher(token string) *Enricher {
	var client *github.Client

	if token == "" {
		client = github.NewClient(nil)
	} else {
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: token},
		)
		client = github.NewClient(oauth2.NewClient(context.Background(), ts))
	}

	return NewEnricherWithClient(client)
}

func NewEnricherWithClient(client *github.Client) *Enricher {
	return &Enricher{
		client:     client,
		workers:    3,
		timeout:    15 * time.Second,
		retryDelay: 500 * time.Millisecond,
	}
}

// SetWorkers 设置并发数
func (e *Enricher) SetWorkers(n int) {
	if n > 0 {
		e.workers = n
	}
}

// EnrichRepos 并发补充详情，顺序与输入一致
// 单个项目失败只记录日志，项目本身保留
func (e *Enricher) EnrichRepos(ctx context.Context, repos []*domain.TrendingRepo) []*domain.TrendingRepo {
	if len(repos) == 0 {
		return nil
	}
	logger.Info().Str("stage", "enriching").Int("count", len(repos)).Int("workers", e.workers).Msg("🔍 开始获取项目详情")

	jobs := make(chan *domain.TrendingRepo, len(repos))
	var failed int
	var mu sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for repo := range jobs {
				if ctx.Err() != nil {
					continue
				}
				if err := e.enrichOne(ctx, repo); err != nil {
					mu.Lock()
					failed++
					mu.Unlock()
					logger.Warn().Err(err).Int("worker", workerID).Str("repo", repo.Name).Msg("⚠️ 获取详情失败，保留原始数据")
				}
			}
		}(i + 1)
	}

	for _, repo := range repos {
		jobs <- repo
	}
	close(jobs)
	wg.Wait()

	out := make([]*domain.TrendingRepo, 0, len(repos))
	for _, r := range repos {
		if r != nil {
			out = append(out, r)
		}
	}

	logger.Info().Str("stage", "enriching").Int("count", len(out)).Int("failed", failed).Msg("✅ 项目详情获取完成")
	return out
}

func (e *Enricher) enrichOne(ctx context.Context, repo *domain.TrendingRepo) error {
	if repo == nil {
		return nil
	}
	owner, name, ok := strings.Cut(repo.Name, "/")
	if !ok || owner == "" || name == "" {
		return common.NewError(common.ErrCodeInvalidInput, "非法的仓库名: "+repo.Name)
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var info *github.Repository
	err := e.withRetry(reqCtx, func() error {
		var apiErr error
		info, _, apiErr = e.client.Repositories.Get(reqCtx, owner, name)
		return classify(apiErr)
	})
	if err != nil {
		return common.WrapError(common.ErrCodeGitHubAPI, "获取仓库信息失败", err)
	}

	repo.Topics = info.Topics
	if repo.Description == "" {
		repo.Description = info.GetDescription()
	}
	if repo.Language == "" {
		repo.Language = info.GetLanguage()
	}

	var readme *github.RepositoryContent
	err = e.withRetry(reqCtx, func() error {
		var apiErr error
		readme, _, apiErr = e.client.Repositories.GetReadme(reqCtx, owner, name, nil)
		return classify(apiErr)
	})
	if err != nil {
		// 没有 README 很常见，不算失败
		if isNotFound(err) {
			return nil
		}
		return common.WrapError(common.ErrCodeGitHubAPI, "获取 README 失败", err)
	}

	content, err := readme.GetContent()
	if err != nil {
		return common.WrapError(common.ErrCodeGitHubAPI, "解码 README 失败", err)
	}
	repo.ReadmeSnippet = truncateRunes(content, readmeLimit)
	return nil
}

func (e *Enricher) withRetry(ctx context.Context, fn common.RetryableFunc) error {
	return common.Do(ctx, fn,
		common.WithMaxRetries(2),
		common.WithInitialDelay(e.retryDelay),
	)
}

// classify 4xx 和限流错误不重试
func classify(err error) error {
	if err == nil {
		return nil
	}
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return common.Permanent(err)
	}
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return common.Permanent(err)
	}
	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		if code := respErr.Response.StatusCode; code >= 400 && code < 500 {
			return common.Permanent(err)
		}
	}
	return err
}

func isNotFound(err error) bool {
	var respErr *github.ErrorResponse
	return errors.As(err, &respErr) && respErr.Response != nil && respErr.Response.StatusCode == http.StatusNotFound
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
