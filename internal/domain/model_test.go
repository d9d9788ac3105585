package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeCategory(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"AI/LLM", CategoryAI},
		{"前端框架", CategoryFrontend},
		{"DevOps/工具", CategoryDevOps},
		{"编程语言/库", CategoryLanguage},
		{"其他", CategoryOther},
		{"", CategoryOther},
		{"Blockchain", CategoryOther},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeCategory(tt.in), tt.in)
	}
}

func TestPersonalizedRepo_SharesAnalysis(t *testing.T) {
	analyzed := &AnalyzedRepo{
		Repo:     &TrendingRepo{Name: "a/b", StarsDelta: 12},
		Category: CategoryAI,
		TechTags: []string{"llm"},
	}

	v1 := PersonalizedRepo{AnalyzedRepo: analyzed, RelevanceScore: 6, Highlight: true}
	v2 := PersonalizedRepo{AnalyzedRepo: analyzed, RelevanceScore: 1}

	// 两个视角互不影响，但共享同一份分析
	assert.Equal(t, 6, v1.RelevanceScore)
	assert.Equal(t, 1, v2.RelevanceScore)
	assert.Same(t, v1.AnalyzedRepo, v2.AnalyzedRepo)
	assert.Equal(t, "a/b", v2.Repo.Name)
}
