package trending

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github-trending-digest/internal/common"
	"github-trending-digest/internal/domain"
	"github-trending-digest/pkg/logger"
)

const (
	defaultBaseURL   = "https://github.com/trending"
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/120.0.0.0 Safari/537.36"
)

var errRateLimited = errors.New("trending: rate limited (429)")

// Options 抓取参数，零值字段使用默认值
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	// 每次请求之间的随机间隔 [MinDelay, MaxDelay]
	MinDelay time.Duration
	MaxDelay time.Duration
	// 429 时的线性退避: RetryDelay * attempt，最多 MaxRetries 次
	MaxRetries int
	RetryDelay time.Duration
	// 全局请求速率上限
	RequestsPerSecond float64
}

// Scraper 实现了 port.Scraper 接口
type Scraper struct {
	client     *http.Client
	baseURL    string
	limiter    *rate.Limiter
	minDelay   time.Duration
	maxDelay   time.Duration
	maxRetries int
	retryDelay time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
}

func NewScraper(opts Options) *Scraper {
	s := &Scraper{
		client:     opts.HTTPClient,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		minDelay:   opts.MinDelay,
		maxDelay:   opts.MaxDelay,
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
		sleep:      sleepCtx,
	}
	if s.client == nil {
		s.client = &http.Client{Timeout: 30 * time.Second}
	}
	if s.baseURL == "" {
		s.baseURL = defaultBaseURL
	}
	if s.maxDelay < s.minDelay {
		s.maxDelay = s.minDelay
	}
	if s.maxRetries < 0 {
		s.maxRetries = 0
	}
	if s.retryDelay <= 0 {
		s.retryDelay = 5 * time.Second
	}
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	s.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	return s
}

// FetchTrendingMulti 依次抓取 daily / weekly / monthly 三个维度
// 只有所有 URL 都失败时才返回错误
func (s *Scraper) FetchTrendingMulti(ctx context.Context, languages []string) (map[domain.Dimension][]*domain.TrendingRepo, error) {
	result := make(map[domain.Dimension][]*domain.TrendingRepo, len(domain.Dimensions))
	var attempted, failed int

	for i, dim := range domain.Dimensions {
		if i > 0 {
			if err := s.pause(ctx); err != nil {
				return nil, err
			}
		}

		repos, a, f, err := s.fetchDimension(ctx, languages, dim)
		if err != nil {
			return nil, err
		}
		attempted += a
		failed += f
		result[dim] = repos
		logger.Info().Str("stage", "scraping").Str("dimension", string(dim)).Int("count", len(repos)).Msg("📡 趋势榜抓取完成")
	}

	if attempted > 0 && failed == attempted {
		return nil, common.NewError(common.ErrCodeScrape, fmt.Sprintf("全部 %d 个趋势页抓取失败", attempted))
	}
	return result, nil
}

// FetchTrending 抓取单个维度，返回按 slug 去重后的列表 (保持首次出现的顺序)
func (s *Scraper) FetchTrending(ctx context.Context, languages []string, dim domain.Dimension) ([]*domain.TrendingRepo, error) {
	repos, attempted, failed, err := s.fetchDimension(ctx, languages, dim)
	if err != nil {
		return nil, err
	}
	if failed == attempted {
		return nil, common.NewError(common.ErrCodeScrape, fmt.Sprintf("%s 趋势页全部抓取失败", dim))
	}
	return repos, nil
}

func (s *Scraper) fetchDimension(ctx context.Context, languages []string, dim domain.Dimension) ([]*domain.TrendingRepo, int, int, error) {
	urls := s.urls(languages, dim)
	seen := make(map[string]struct{})
	var repos []*domain.TrendingRepo
	failed := 0

	for i, u := range urls {
		if i > 0 {
			if err := s.pause(ctx); err != nil {
				return nil, 0, 0, err
			}
		}

		page, err := s.fetchPage(ctx, u)
		if err != nil {
			if ctx.Err() != nil {
				return nil, 0, 0, ctx.Err()
			}
			failed++
			logger.Warn().Err(err).Str("url", u).Msg("⚠️ 趋势页抓取失败，跳过")
			continue
		}

		for _, r := range page {
			if _, ok := seen[r.Name]; ok {
				continue
			}
			seen[r.Name] = struct{}{}
			repos = append(repos, r)
		}
	}
	return repos, len(urls), failed, nil
}

func (s *Scraper) urls(languages []string, dim domain.Dimension) []string {
	urls := []string{fmt.Sprintf("%s?since=%s", s.baseURL, dim)}
	for _, lang := range languages {
		lang = strings.TrimSpace(lang)
		if lang == "" {
			continue
		}
		urls = append(urls, fmt.Sprintf("%s/%s?since=%s", s.baseURL, lang, dim))
	}
	return urls
}

// fetchPage 429 线性退避重试，其它错误直接放弃该 URL
func (s *Scraper) fetchPage(ctx context.Context, url string) ([]*domain.TrendingRepo, error) {
	var repos []*domain.TrendingRepo
	err := common.Do(ctx, func() error {
		if err := s.limiter.Wait(ctx); err != nil {
			return common.Permanent(err)
		}
		var fetchErr error
		repos, fetchErr = s.get(ctx, url)
		return fetchErr
	},
		common.WithMaxRetries(s.maxRetries),
		common.WithInitialDelay(s.retryDelay),
		common.WithMaxDelay(s.retryDelay*time.Duration(s.maxRetries+1)),
		common.WithLinearBackoff(),
		common.WithOnRetry(func(attempt int, err error) {
			logger.Warn().Str("url", url).Int("attempt", attempt).Msg("⏳ 被限流，退避后重试")
		}),
	)
	return repos, err
}

func (s *Scraper) get(ctx context.Context, url string) ([]*domain.TrendingRepo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, common.Permanent(err)
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, common.Permanent(common.WrapError(common.ErrCodeScrape, "请求趋势页失败", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, errRateLimited
	case resp.StatusCode != http.StatusOK:
		return nil, common.Permanent(common.NewError(common.ErrCodeScrape, fmt.Sprintf("趋势页返回 HTTP %d", resp.StatusCode)))
	}

	repos, err := ParseTrendingPage(resp.Body)
	if err != nil {
		return nil, common.Permanent(err)
	}
	return repos, nil
}

// pause 请求之间的随机间隔，同时受 limiter 约束
func (s *Scraper) pause(ctx context.Context) error {
	d := s.minDelay
	if span := s.maxDelay - s.minDelay; span > 0 {
		d += time.Duration(rand.Int63n(int64(span) + 1))
	}
	if d <= 0 {
		return ctx.Err()
	}
	return s.sleep(ctx, d)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ParseTrendingPage 解析 github.com/trending 的 HTML
func ParseTrendingPage(r io.Reader) ([]*domain.TrendingRepo, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, common.WrapError(common.ErrCodeScrape, "解析趋势页失败", err)
	}

	var repos []*domain.TrendingRepo
	doc.Find("article.Box-row").Each(func(_ int, article *goquery.Selection) {
		href, ok := article.Find("h2 a").First().Attr("href")
		if !ok {
			return
		}
		name := strings.Trim(strings.TrimSpace(href), "/")
		if name == "" {
			return
		}

		repo := &domain.TrendingRepo{
			Name:        name,
			URL:         "https://github.com/" + name,
			Description: strings.Join(strings.Fields(article.Find("p").First().Text()), " "),
			Language:    strings.TrimSpace(article.Find("[itemprop='programmingLanguage']").First().Text()),
		}

		links := article.Find("a.Link--muted")
		if links.Length() > 0 {
			repo.Stars = parseCount(links.Eq(0).Text())
		}
		if links.Length() > 1 {
			repo.Forks = parseCount(links.Eq(1).Text())
		}

		// "1,234 stars today" / "5,678 stars this week"
		if delta := strings.Fields(article.Find("span.d-inline-block.float-sm-right").First().Text()); len(delta) > 0 {
			repo.StarsDelta = parseCount(delta[0])
		}

		repos = append(repos, repo)
	})
	return repos, nil
}

func parseCount(text string) int {
	text = strings.ReplaceAll(strings.TrimSpace(text), ",", "")
	n, err := strconv.Atoi(text)
	if err != nil {
		return 0
	}
	return n
}
