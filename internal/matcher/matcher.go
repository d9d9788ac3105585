package matcher

import (
	"sort"
	"strings"

	"github-trending-digest/internal/domain"
)

const (
	baseScore    = 4
	perDirection = 2
	maxScore     = 10
	noMatchScore = 1
	reasonLimit  = 3
	reasonPrefix = "匹配: "
)

// MatchFunc 判断用户标签与项目标签是否匹配，两边都已经是小写
type MatchFunc func(userTag, repoTag string) bool

// FuzzyMatch 相等或互为子串即匹配，"vue" 能匹配 "vue.js"，也会匹配 "vuex"
func FuzzyMatch(userTag, repoTag string) bool {
	if userTag == "" || repoTag == "" {
		return false
	}
	return userTag == repoTag || strings.Contains(repoTag, userTag) || strings.Contains(userTag, repoTag)
}

// Scorer 个性化评分策略
type Scorer interface {
	Score(repo *domain.AnalyzedRepo, directions []domain.Direction) domain.PersonalizedRepo
}

// TagMatchScorer 按命中的方向数量打分: min(10, 4+2k)，未命中为 1
type TagMatchScorer struct {
	Match MatchFunc
}

func (s TagMatchScorer) Score(repo *domain.AnalyzedRepo, directions []domain.Direction) domain.PersonalizedRepo {
	matched := s.MatchedDirections(TagSurface(repo), directions)

	out := domain.PersonalizedRepo{
		AnalyzedRepo:   repo,
		RelevanceScore: noMatchScore,
	}
	if repo.Repo != nil {
		out.FinalScore = repo.Repo.StarsDelta
	}
	if len(matched) == 0 {
		return out
	}

	out.Highlight = true
	out.RelevanceScore = min(maxScore, baseScore+perDirection*len(matched))
	names := matched
	if len(names) > reasonLimit {
		names = names[:reasonLimit]
	}
	out.RelevanceReason = reasonPrefix + strings.Join(names, ", ")
	return out
}

// MatchedDirections 返回命中的启用方向名，按字母序去重
func (s TagMatchScorer) MatchedDirections(surface []string, directions []domain.Direction) []string {
	match := s.Match
	if match == nil {
		match = FuzzyMatch
	}

	seen := make(map[string]struct{})
	for _, d := range directions {
		if !d.Enabled {
			continue
		}
		if _, ok := seen[d.Name]; ok {
			continue
		}
		if directionMatches(d, surface, match) {
			seen[d.Name] = struct{}{}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func directionMatches(d domain.Direction, surface []string, match MatchFunc) bool {
	for _, raw := range d.Tags {
		tag := normalize(raw)
		if tag == "" {
			continue
		}
		for _, repoTag := range surface {
			if match(tag, repoTag) {
				return true
			}
		}
	}
	return false
}

// TagSurface 项目的全部技术关键词: TechTags + Language + Topics，小写去重
func TagSurface(repo *domain.AnalyzedRepo) []string {
	if repo == nil {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	add := func(raw string) {
		tag := normalize(raw)
		if tag == "" {
			return
		}
		if _, ok := seen[tag]; ok {
			return
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}

	for _, t := range repo.TechTags {
		add(t)
	}
	if repo.Repo != nil {
		add(repo.Repo.Language)
		for _, t := range repo.Repo.Topics {
			add(t)
		}
	}
	return out
}

func normalize(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}

// Personalize 为一组分析结果生成某个用户视角下的新列表，按 FinalScore 降序稳定排序
// 输入不会被修改
func Personalize(list []*domain.AnalyzedRepo, directions []domain.Direction, scorer Scorer) []domain.PersonalizedRepo {
	if scorer == nil {
		scorer = TagMatchScorer{Match: FuzzyMatch}
	}

	out := make([]domain.PersonalizedRepo, 0, len(list))
	for _, a := range list {
		if a == nil {
			continue
		}
		out = append(out, scorer.Score(a, directions))
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FinalScore > out[j].FinalScore
	})
	return out
}
