package report

import (
	"bytes"
	"embed"
	"encoding/json"
	"html/template"
	"sort"
	"time"

	"github-trending-digest/internal/common"
	"github-trending-digest/internal/domain"
)

//go:embed templates/report.html
var templateFS embed.FS

// HottestLimit “最热项目”区块的数量
const HottestLimit = 10

type entry struct {
	Item       domain.PersonalizedRepo
	TotalStars bool
}

var reportTemplate = template.Must(template.New("report.html").Funcs(template.FuncMap{
	"entry": func(item domain.PersonalizedRepo, totalStars bool) entry {
		return entry{Item: item, TotalStars: totalStars}
	},
}).ParseFS(templateFS, "templates/report.html"))

var sectionTitles = map[domain.Dimension]string{
	domain.Daily:   "⚡ 今日最热",
	domain.Weekly:  "📈 本周飙升",
	domain.Monthly: "📅 本月飙升",
}

type section struct {
	Title      string
	Items      []domain.PersonalizedRepo
	TotalStars bool
}

type reportData struct {
	ReportDate string
	Total      int
	Skipped    int
	Pushed     int
	Sections   []section
}

// Renderer 实现了 port.Renderer 接口
type Renderer struct {
	nowFunc  func() time.Time
	location *time.Location
}

func NewRenderer(loc *time.Location) *Renderer {
	if loc == nil {
		loc = time.Local
	}
	return &Renderer{nowFunc: time.Now, location: loc}
}

// Generate 先渲染按总 star 数排序的最热 10 个，各维度区块再排除这些项目
func (r *Renderer) Generate(byDim map[domain.Dimension][]domain.PersonalizedRepo, totalScraped, skipped int) (string, error) {
	hottest := Hottest(byDim, HottestLimit)
	inHottest := make(map[string]struct{}, len(hottest))
	for _, h := range hottest {
		inHottest[h.Repo.Name] = struct{}{}
	}

	data := reportData{
		ReportDate: r.nowFunc().In(r.location).Format("2006-01-02"),
		Total:      totalScraped,
		Skipped:    skipped,
	}
	if len(hottest) > 0 {
		data.Sections = append(data.Sections, section{Title: "🔥 最热项目", Items: hottest, TotalStars: true})
	}

	for _, dim := range domain.Dimensions {
		items := byDim[dim]
		data.Pushed += len(items)

		var rest []domain.PersonalizedRepo
		for _, it := range items {
			if _, ok := inHottest[it.Repo.Name]; !ok {
				rest = append(rest, it)
			}
		}
		if len(rest) > 0 {
			data.Sections = append(data.Sections, section{Title: sectionTitles[dim], Items: rest})
		}
	}

	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return "", common.WrapError(common.ErrCodeInternal, "渲染日报失败", err)
	}
	return buf.String(), nil
}

// Hottest 跨维度按 slug 去重后按总 star 数降序取前 limit 个
func Hottest(byDim map[domain.Dimension][]domain.PersonalizedRepo, limit int) []domain.PersonalizedRepo {
	seen := make(map[string]struct{})
	var all []domain.PersonalizedRepo
	for _, dim := range domain.Dimensions {
		for _, it := range byDim[dim] {
			if it.AnalyzedRepo == nil || it.Repo == nil {
				continue
			}
			if _, ok := seen[it.Repo.Name]; ok {
				continue
			}
			seen[it.Repo.Name] = struct{}{}
			all = append(all, it)
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Repo.Stars > all[j].Repo.Stars
	})
	if len(all) > limit {
		all = all[:limit]
	}
	return all
}

// Item 日报 JSON 里的单个项目
type Item struct {
	Name            string   `json:"name"`
	URL             string   `json:"url"`
	Description     string   `json:"description"`
	Language        string   `json:"language"`
	Stars           int      `json:"stars"`
	StarsToday      int      `json:"stars_today"`
	Forks           int      `json:"forks"`
	Topics          []string `json:"topics"`
	Category        string   `json:"category"`
	Summary         string   `json:"summary_zh"`
	Detail          string   `json:"detail_zh"`
	TechTags        []string `json:"tech_tags"`
	RelevanceScore  int      `json:"relevance_score"`
	RelevanceReason string   `json:"relevance_reason"`
	Highlight       bool     `json:"highlight"`
	FinalScore      int      `json:"final_score"`
}

// EncodeJSON 日报 JSON，和 HTML 一起存档
func (r *Renderer) EncodeJSON(byDim map[domain.Dimension][]domain.PersonalizedRepo) (string, error) {
	return MarshalItems(byDim)
}

// MarshalItems 生成按维度分组的日报 JSON
func MarshalItems(byDim map[domain.Dimension][]domain.PersonalizedRepo) (string, error) {
	out := make(map[domain.Dimension][]Item, len(domain.Dimensions))
	for _, dim := range domain.Dimensions {
		items := make([]Item, 0, len(byDim[dim]))
		for _, p := range byDim[dim] {
			items = append(items, Item{
				Name:            p.Repo.Name,
				URL:             p.Repo.URL,
				Description:     p.Repo.Description,
				Language:        p.Repo.Language,
				Stars:           p.Repo.Stars,
				StarsToday:      p.Repo.StarsDelta,
				Forks:           p.Repo.Forks,
				Topics:          p.Repo.Topics,
				Category:        p.Category,
				Summary:         p.Summary,
				Detail:          p.Detail,
				TechTags:        p.TechTags,
				RelevanceScore:  p.RelevanceScore,
				RelevanceReason: p.RelevanceReason,
				Highlight:       p.Highlight,
				FinalScore:      p.FinalScore,
			})
		}
		out[dim] = items
	}

	b, err := json.Marshal(out)
	if err != nil {
		return "", common.WrapError(common.ErrCodeInternal, "序列化日报失败", err)
	}
	return string(b), nil
}

// UnmarshalItems 解析 MarshalItems 的结果，供报告详情接口使用
func UnmarshalItems(raw string) (map[domain.Dimension][]Item, error) {
	out := make(map[domain.Dimension][]Item)
	if raw == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, common.WrapError(common.ErrCodeInternal, "解析日报 JSON 失败", err)
	}
	return out, nil
}
