package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github-trending-digest/internal/adapter/analyzer"
	"github-trending-digest/internal/adapter/gemini"
	"github-trending-digest/internal/adapter/github"
	"github-trending-digest/internal/adapter/openai"
	"github-trending-digest/internal/adapter/report"
	"github-trending-digest/internal/adapter/trending"
	"github-trending-digest/internal/api"
	"github-trending-digest/internal/config"
	"github-trending-digest/internal/domain"
	"github-trending-digest/internal/matcher"
	"github-trending-digest/internal/port"
	"github-trending-digest/pkg/logger"
)

// 调试模式：抓取 → 补充 → 分析 → 个性化，只打印不落库、不发邮件
func main() {
	configPath := flag.String("config", "config.yaml", "配置文件路径")
	langs := flag.String("lang", "", "逗号分隔的语言，留空使用配置")
	dim := flag.String("dim", "daily", "维度: daily, weekly, monthly")
	limit := flag.Int("limit", 3, "只分析前 N 个项目")
	tags := flag.String("tags", "", "临时方向的标签，逗号分隔；留空使用默认方向")
	htmlOut := flag.String("html", "", "把渲染结果写到该文件")
	tokenUser := flag.Uint("token-user", 0, "只签发一个 JWT 给该用户 ID 然后退出")
	tokenRole := flag.String("token-role", domain.RoleUser, "签发 JWT 的角色")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ 加载配置失败: %v\n", err)
		os.Exit(1)
	}
	logger.Init("debug")

	if *tokenUser != 0 {
		tok, err := api.GenerateToken(cfg.Auth.JWTSecret, *tokenUser, "debug", *tokenRole, api.TokenTTL)
		if err != nil {
			logger.Fatal().Err(err).Msg("❌ 签发 token 失败")
		}
		fmt.Println(tok)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	languages := cfg.Trending.Languages
	if *langs != "" {
		languages = splitList(*langs)
	}

	fmt.Printf("🔍 调试模式：%s 榜单，语言 %v\n", *dim, languages)

	// 1. 抓取
	scraper := trending.NewScraper(trending.Options{
		MinDelay:   cfg.Trending.MinDelay,
		MaxDelay:   cfg.Trending.MaxDelay,
		MaxRetries: cfg.Trending.MaxRetries,
	})
	repos, err := scraper.FetchTrending(ctx, languages, domain.Dimension(*dim))
	if err != nil {
		logger.Fatal().Err(err).Msg("❌ 抓取失败")
	}
	fmt.Printf("✅ 抓取到 %d 个项目\n", len(repos))
	if len(repos) == 0 {
		return
	}
	if len(repos) > *limit {
		repos = repos[:*limit]
	}

	// 2. 补充
	repos = github.NewEnricher(cfg.GitHub.Token).EnrichRepos(ctx, repos)

	// 3. 分析
	llm, err := newLLM(ctx, cfg.LLM)
	if err != nil {
		logger.Fatal().Err(err).Msg("❌ AI 初始化失败")
	}
	directions := domain.DefaultDirections()
	if *tags != "" {
		directions = []domain.Direction{{Name: "调试方向", Enabled: true, Tags: splitList(*tags)}}
	}
	analyzed := analyzer.NewClassifier(llm).Classify(ctx, repos, directions)

	// 4. 个性化
	view := matcher.Personalize(analyzed, directions, nil)
	for i, p := range view {
		fmt.Printf("  #%d %s (+%d ⭐)\n", i+1, p.Repo.Name, p.Repo.StarsDelta)
		fmt.Printf("    分类: %s  降级: %v\n", p.Category, p.Degraded)
		fmt.Printf("    摘要: %s\n", p.Summary)
		fmt.Printf("    标签: %v  topics: %v\n", p.TechTags, p.Repo.Topics)
		fmt.Printf("    相关度: %d %s\n", p.RelevanceScore, p.RelevanceReason)
		fmt.Println()
	}

	if *htmlOut != "" {
		html, err := report.NewRenderer(cfg.Location()).Generate(
			map[domain.Dimension][]domain.PersonalizedRepo{domain.Dimension(*dim): view}, len(view), 0)
		if err != nil {
			logger.Fatal().Err(err).Msg("❌ 渲染失败")
		}
		if err := os.WriteFile(*htmlOut, []byte(html), 0o644); err != nil {
			logger.Fatal().Err(err).Msg("❌ 写文件失败")
		}
		fmt.Printf("📝 已写入 %s\n", *htmlOut)
	}
}

func newLLM(ctx context.Context, cfg config.LLMConfig) (port.LLMProvider, error) {
	if cfg.Provider == "gemini" {
		return gemini.NewProvider(ctx, cfg.APIKey, cfg.Model)
	}
	return openai.NewProvider(cfg.APIKey, cfg.BaseURL, cfg.Model)
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
