package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github-trending-digest/internal/domain"
	"github-trending-digest/internal/progress"
)

type pipelineFixture struct {
	scraper    *MockScraper
	enricher   *MockEnricher
	classifier *stubClassifier
	renderer   *fakeRenderer
	mailer     *MockMailer
	history    *MockHistory
	reports    *MockReports
	users      *MockUsers
	directions *MockDirections
	notifier   *MockNotifier
	tracker    *progress.Tracker
}

func newFixture() *pipelineFixture {
	return &pipelineFixture{
		scraper:    new(MockScraper),
		enricher:   new(MockEnricher),
		classifier: &stubClassifier{tags: map[string][]string{}},
		renderer:   &fakeRenderer{},
		mailer:     new(MockMailer),
		history:    new(MockHistory),
		reports:    new(MockReports),
		users:      new(MockUsers),
		directions: new(MockDirections),
		notifier:   new(MockNotifier),
		tracker:    progress.NewTracker(),
	}
}

func (f *pipelineFixture) service(opts Options) *PipelineService {
	s := NewPipelineService(Deps{
		Scraper:    f.scraper,
		Enricher:   f.enricher,
		Classifier: f.classifier,
		Renderer:   f.renderer,
		Mailer:     f.mailer,
		History:    f.history,
		Reports:    f.reports,
		Users:      f.users,
		Directions: f.directions,
		Notifier:   f.notifier,
		Tracker:    f.tracker,
	}, opts)
	s.newRunID = func() string { return "run-1" }
	return s
}

func repo(name string, delta int, lang string) *domain.TrendingRepo {
	return &domain.TrendingRepo{Name: name, URL: "https://github.com/" + name, Language: lang, StarsDelta: delta, Stars: delta * 10}
}

var aiDirections = []domain.Direction{{Name: "AI", Enabled: true, Tags: []string{"llm"}}}

func findItem(list []domain.PersonalizedRepo, name string) (domain.PersonalizedRepo, bool) {
	for _, p := range list {
		if p.Repo.Name == name {
			return p, true
		}
	}
	return domain.PersonalizedRepo{}, false
}

func TestRun_EndToEnd(t *testing.T) {
	f := newFixture()
	f.classifier.tags = map[string][]string{"a/one": {"llm"}, "b/two": {"vue"}}

	dailyOne := repo("a/one", 50, "Go")
	weeklyOne := repo("a/one", 300, "Go")
	byDim := map[domain.Dimension][]*domain.TrendingRepo{
		domain.Daily:  {dailyOne, repo("b/two", 10, ""), repo("old/repo", 99, "")},
		domain.Weekly: {weeklyOne, repo("c/three", 80, "")},
	}

	f.directions.On("GetTechStack", mock.Anything).Return(aiDirections, nil)
	f.scraper.On("FetchTrendingMulti", mock.Anything, []string{"go"}).Return(byDim, nil)
	f.history.On("IsRecentlyPushed", mock.Anything, "old/repo", 7).Return(true, nil)
	f.history.On("IsRecentlyPushed", mock.Anything, mock.Anything, 7).Return(false, nil)

	var enrichInput []*domain.TrendingRepo
	f.enricher.On("EnrichRepos", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { enrichInput = args.Get(1).([]*domain.TrendingRepo) }).
		Return([]*domain.TrendingRepo{dailyOne, byDim[domain.Daily][1], byDim[domain.Weekly][1]})

	f.reports.On("SaveReport", mock.Anything, "<html>1</html>", "{}", 3).Return(nil)
	f.history.On("MarkPushed", mock.Anything, []string{"a/one", "b/two", "c/three"}).Return(nil)

	f.users.On("GetUsersForEmail", mock.Anything).Return([]domain.EmailUser{
		{ID: 1, Emails: []string{"Alice@Example.com"}, Directions: []domain.Direction{{Name: "Frontend", Enabled: true, Tags: []string{"vue"}}}},
		{ID: 2, Emails: []string{"bob@example.com"}},
	}, nil)
	f.mailer.On("SendToUser", mock.Anything, "<html>2</html>", []string{"Alice@Example.com"}).Return(true, nil)
	f.mailer.On("SendToUser", mock.Anything, "<html>3</html>", []string{"bob@example.com"}).Return(false, errors.New("smtp down"))
	f.mailer.On("SendReport", mock.Anything, "<html>1</html>", []string{"ops@example.com"}).Return(true, nil)
	f.notifier.On("NotifyRun", mock.Anything, mock.MatchedBy(func(r domain.RunResult) bool {
		return r.Status == domain.RunSuccess && r.RunID == "run-1"
	})).Return(nil)

	result := f.service(Options{
		Languages:      []string{"go"},
		MaxProjects:    25,
		DedupDays:      7,
		FallbackEmails: []string{"alice@example.com", "ops@example.com"},
	}).Run(context.Background())

	assert.Equal(t, domain.RunSuccess, result.Status)
	assert.Equal(t, "run-1", result.RunID)
	assert.Equal(t, 5, result.Total)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 3, result.Pushed)
	assert.Equal(t, 1, result.UsersNotified)
	assert.True(t, result.EmailSent)
	assert.False(t, result.FinishedAt.Before(result.StartedAt))

	// 跨维度只补充、分析一次
	f.enricher.AssertNumberOfCalls(t, "EnrichRepos", 1)
	assert.Equal(t, []string{"a/one", "b/two", "c/three"}, slugsOf(enrichInput))
	assert.Equal(t, 1, f.classifier.calls)
	f.history.AssertNumberOfCalls(t, "IsRecentlyPushed", 4)

	require.Len(t, f.renderer.views, 3)

	// 默认视角: "llm" 命中 AI，分数 6
	defaultView := f.renderer.views[0]
	one, ok := findItem(defaultView[domain.Daily], "a/one")
	require.True(t, ok)
	assert.Equal(t, 6, one.RelevanceScore)
	assert.True(t, one.Highlight)
	assert.Equal(t, "匹配: AI", one.RelevanceReason)
	assert.Equal(t, 50, one.FinalScore)

	// 同一项目在周榜上使用周榜的 star 增量
	weekly, ok := findItem(defaultView[domain.Weekly], "a/one")
	require.True(t, ok)
	assert.Equal(t, 300, weekly.FinalScore)
	assert.Equal(t, 50, dailyOne.StarsDelta)

	two, _ := findItem(defaultView[domain.Daily], "b/two")
	assert.Equal(t, 1, two.RelevanceScore)
	assert.False(t, two.Highlight)

	// 用户 1 关注前端
	userView := f.renderer.views[1]
	two, _ = findItem(userView[domain.Daily], "b/two")
	assert.Equal(t, 6, two.RelevanceScore)
	one, _ = findItem(userView[domain.Daily], "a/one")
	assert.Equal(t, 1, one.RelevanceScore)

	// 用户 2 没有方向，使用默认方向
	one, _ = findItem(f.renderer.views[2][domain.Daily], "a/one")
	assert.Equal(t, 6, one.RelevanceScore)

	snap := f.tracker.Snapshot()
	assert.Equal(t, progress.StepDone, snap.Step)
	assert.Equal(t, 100, snap.Percentage)

	f.mailer.AssertExpectations(t)
	f.reports.AssertExpectations(t)
	f.history.AssertExpectations(t)
	f.notifier.AssertExpectations(t)
}

func TestRun_NoData(t *testing.T) {
	tests := []struct {
		name  string
		byDim map[domain.Dimension][]*domain.TrendingRepo
		err   error
	}{
		{"scrape error", nil, errors.New("all urls failed")},
		{"empty result", map[domain.Dimension][]*domain.TrendingRepo{domain.Daily: {}}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.directions.On("GetTechStack", mock.Anything).Return(aiDirections, nil)
			f.scraper.On("FetchTrendingMulti", mock.Anything, mock.Anything).Return(tt.byDim, tt.err)

			result := f.service(Options{DedupDays: 7}).Run(context.Background())

			assert.Equal(t, domain.RunNoData, result.Status)
			assert.Equal(t, progress.StepDone, f.tracker.Snapshot().Step)
			f.enricher.AssertNotCalled(t, "EnrichRepos", mock.Anything, mock.Anything)
			assert.Zero(t, f.classifier.calls)
		})
	}
}

func TestRun_AllDeduped(t *testing.T) {
	f := newFixture()
	f.directions.On("GetTechStack", mock.Anything).Return(aiDirections, nil)
	f.scraper.On("FetchTrendingMulti", mock.Anything, mock.Anything).Return(map[domain.Dimension][]*domain.TrendingRepo{
		domain.Daily:   {repo("a/one", 5, "")},
		domain.Monthly: {repo("a/one", 500, ""), repo("b/two", 50, "")},
	}, nil)
	f.history.On("IsRecentlyPushed", mock.Anything, mock.Anything, 7).Return(true, nil)

	result := f.service(Options{DedupDays: 7}).Run(context.Background())

	assert.Equal(t, domain.RunAllDeduped, result.Status)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 3, result.Skipped)
	f.history.AssertNotCalled(t, "MarkPushed", mock.Anything, mock.Anything)
	f.enricher.AssertNotCalled(t, "EnrichRepos", mock.Anything, mock.Anything)
}

func TestRun_TruncatesFailsOpenAndDropsUnenriched(t *testing.T) {
	f := newFixture()
	x1, x2, x3 := repo("x/1", 30, ""), repo("x/2", 20, ""), repo("x/3", 10, "")

	f.directions.On("GetTechStack", mock.Anything).Return([]domain.Direction(nil), errors.New("db locked"))
	f.scraper.On("FetchTrendingMulti", mock.Anything, mock.Anything).Return(map[domain.Dimension][]*domain.TrendingRepo{
		domain.Daily: {x1, x2, x3},
	}, nil)
	// 推送历史读失败时保留项目
	f.history.On("IsRecentlyPushed", mock.Anything, "x/1", 7).Return(false, errors.New("timeout"))
	f.history.On("IsRecentlyPushed", mock.Anything, mock.Anything, 7).Return(false, nil)
	f.enricher.On("EnrichRepos", mock.Anything, []*domain.TrendingRepo{x1, x2}).Return([]*domain.TrendingRepo{x2})
	f.reports.On("SaveReport", mock.Anything, mock.Anything, mock.Anything, 1).Return(errors.New("disk full"))
	f.history.On("MarkPushed", mock.Anything, []string{"x/2"}).Return(nil)
	f.users.On("GetUsersForEmail", mock.Anything).Return([]domain.EmailUser{}, nil)

	result := f.service(Options{MaxProjects: 2, DedupDays: 7}).Run(context.Background())

	assert.Equal(t, domain.RunSuccess, result.Status)
	assert.Equal(t, 1, result.Pushed)
	assert.False(t, result.EmailSent)
	require.Len(t, f.classifier.inputs, 1)
	assert.Equal(t, []string{"x/2"}, f.classifier.inputs[0])
	f.mailer.AssertNotCalled(t, "SendReport", mock.Anything, mock.Anything, mock.Anything)
	f.enricher.AssertExpectations(t)
	f.history.AssertExpectations(t)
}

func TestRun_RecoversFromPanic(t *testing.T) {
	f := newFixture()
	f.classifier.doPanic = true
	r := repo("a/one", 1, "")

	f.directions.On("GetTechStack", mock.Anything).Return(aiDirections, nil)
	f.scraper.On("FetchTrendingMulti", mock.Anything, mock.Anything).Return(map[domain.Dimension][]*domain.TrendingRepo{domain.Daily: {r}}, nil)
	f.history.On("IsRecentlyPushed", mock.Anything, mock.Anything, mock.Anything).Return(false, nil)
	f.enricher.On("EnrichRepos", mock.Anything, mock.Anything).Return([]*domain.TrendingRepo{r})

	svc := f.service(Options{DedupDays: 7})
	svc.nowFunc = func() time.Time { return time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC) }

	var result domain.RunResult
	assert.NotPanics(t, func() { result = svc.Run(context.Background()) })

	assert.Equal(t, domain.RunError, result.Status)
	assert.Contains(t, result.Message, "classifier exploded")
	assert.False(t, result.FinishedAt.IsZero())

	snap := f.tracker.Snapshot()
	assert.Equal(t, progress.StepError, snap.Step)
	assert.Equal(t, 70, snap.Percentage)
	f.history.AssertNotCalled(t, "MarkPushed", mock.Anything, mock.Anything)
}

func TestDistinctReposAndProject(t *testing.T) {
	shared := repo("a/one", 5, "Go")
	weekly := repo("a/one", 70, "Go")
	fresh := map[domain.Dimension][]*domain.TrendingRepo{
		domain.Daily:   {shared, repo("b/two", 1, "")},
		domain.Weekly:  {weekly},
		domain.Monthly: {repo("gone/repo", 3, "")},
	}

	distinct := distinctRepos(fresh)
	assert.Equal(t, []string{"a/one", "b/two", "gone/repo"}, slugsOf(distinct))

	analysis := &domain.AnalyzedRepo{Repo: shared, TechTags: []string{"go"}}
	out := project(fresh,
		map[string]*domain.TrendingRepo{"a/one": shared},
		map[string]*domain.AnalyzedRepo{"a/one": analysis},
	)

	require.Len(t, out[domain.Daily], 1)
	assert.Same(t, analysis, out[domain.Daily][0])
	require.Len(t, out[domain.Weekly], 1)
	assert.Equal(t, 70, out[domain.Weekly][0].Repo.StarsDelta)
	assert.Equal(t, analysis.TechTags, out[domain.Weekly][0].TechTags)
	assert.Empty(t, out[domain.Monthly])
	assert.Equal(t, 5, shared.StarsDelta)
}
