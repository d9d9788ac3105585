package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/stretchr/testify/mock"

	"github-trending-digest/internal/domain"
)

// Mock implementations for testing
type MockScraper struct {
	mock.Mock
}

func (m *MockScraper) FetchTrendingMulti(ctx context.Context, languages []string) (map[domain.Dimension][]*domain.TrendingRepo, error) {
	args := m.Called(ctx, languages)
	res, _ := args.Get(0).(map[domain.Dimension][]*domain.TrendingRepo)
	return res, args.Error(1)
}

type MockEnricher struct {
	mock.Mock
}

func (m *MockEnricher) EnrichRepos(ctx context.Context, repos []*domain.TrendingRepo) []*domain.TrendingRepo {
	args := m.Called(ctx, repos)
	return args.Get(0).([]*domain.TrendingRepo)
}

type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) SendToUser(ctx context.Context, html string, addrs []string) (bool, error) {
	args := m.Called(ctx, html, addrs)
	return args.Bool(0), args.Error(1)
}

func (m *MockMailer) SendReport(ctx context.Context, html string, addrs []string) (bool, error) {
	args := m.Called(ctx, html, addrs)
	return args.Bool(0), args.Error(1)
}

type MockHistory struct {
	mock.Mock
}

func (m *MockHistory) IsRecentlyPushed(ctx context.Context, slug string, windowDays int) (bool, error) {
	args := m.Called(ctx, slug, windowDays)
	return args.Bool(0), args.Error(1)
}

func (m *MockHistory) MarkPushed(ctx context.Context, slugs []string) error {
	args := m.Called(ctx, slugs)
	return args.Error(0)
}

func (m *MockHistory) CountPushedOn(ctx context.Context, date string) (int64, error) {
	args := m.Called(ctx, date)
	return args.Get(0).(int64), args.Error(1)
}

type MockReports struct {
	mock.Mock
}

func (m *MockReports) SaveReport(ctx context.Context, html, reportJSON string, projectCount int) error {
	args := m.Called(ctx, html, reportJSON, projectCount)
	return args.Error(0)
}

func (m *MockReports) ListReports(ctx context.Context, limit int) ([]domain.DailyReport, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]domain.DailyReport), args.Error(1)
}

func (m *MockReports) GetReport(ctx context.Context, id uint) (*domain.DailyReport, error) {
	args := m.Called(ctx, id)
	r, _ := args.Get(0).(*domain.DailyReport)
	return r, args.Error(1)
}

func (m *MockReports) LatestReport(ctx context.Context) (*domain.DailyReport, error) {
	args := m.Called(ctx)
	r, _ := args.Get(0).(*domain.DailyReport)
	return r, args.Error(1)
}

type MockUsers struct {
	mock.Mock
}

func (m *MockUsers) GetUsersForEmail(ctx context.Context) ([]domain.EmailUser, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.EmailUser), args.Error(1)
}

func (m *MockUsers) GetUserDirections(ctx context.Context, userID uint) ([]domain.Direction, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]domain.Direction), args.Error(1)
}

func (m *MockUsers) SetUserDirections(ctx context.Context, userID uint, directions []domain.Direction) error {
	args := m.Called(ctx, userID, directions)
	return args.Error(0)
}

type MockDirections struct {
	mock.Mock
}

func (m *MockDirections) GetTechStack(ctx context.Context) ([]domain.Direction, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.Direction), args.Error(1)
}

func (m *MockDirections) SetTechStack(ctx context.Context, directions []domain.Direction) error {
	args := m.Called(ctx, directions)
	return args.Error(0)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifyRun(ctx context.Context, result domain.RunResult) error {
	args := m.Called(ctx, result)
	return args.Error(0)
}

type MockCounter struct {
	mock.Mock
}

func (m *MockCounter) Count(ctx context.Context, userID uint, date string) (int, error) {
	args := m.Called(ctx, userID, date)
	return args.Int(0), args.Error(1)
}

func (m *MockCounter) Increment(ctx context.Context, userID uint, date string) error {
	args := m.Called(ctx, userID, date)
	return args.Error(0)
}

type MockMirror struct {
	mock.Mock
}

func (m *MockMirror) SaveProgress(ctx context.Context, p domain.Progress) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockMirror) SaveStatus(ctx context.Context, running bool, last *domain.RunResult) error {
	args := m.Called(ctx, running, last)
	return args.Error(0)
}

// stubClassifier 按 slug 返回预设的标签，可选地 panic
type stubClassifier struct {
	mu      sync.Mutex
	tags    map[string][]string
	calls   int
	inputs  [][]string
	doPanic bool
}

func (s *stubClassifier) Classify(_ context.Context, repos []*domain.TrendingRepo, _ []domain.Direction) []*domain.AnalyzedRepo {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.inputs = append(s.inputs, slugsOf(repos))
	if s.doPanic {
		panic("classifier exploded")
	}

	out := make([]*domain.AnalyzedRepo, 0, len(repos))
	for _, r := range repos {
		out = append(out, &domain.AnalyzedRepo{
			Repo:     r,
			Category: domain.CategoryOther,
			Summary:  r.Name,
			TechTags: s.tags[r.Name],
		})
	}
	return out
}

// fakeRenderer 记录每次渲染时的个性化视图
type fakeRenderer struct {
	mu    sync.Mutex
	views []map[domain.Dimension][]domain.PersonalizedRepo
	err   error
}

func (f *fakeRenderer) Generate(byDim map[domain.Dimension][]domain.PersonalizedRepo, totalScraped, skipped int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.views = append(f.views, byDim)
	return fmt.Sprintf("<html>%d</html>", len(f.views)), nil
}

func (f *fakeRenderer) EncodeJSON(map[domain.Dimension][]domain.PersonalizedRepo) (string, error) {
	return "{}", nil
}

func slugsOf(repos []*domain.TrendingRepo) []string {
	out := make([]string, 0, len(repos))
	for _, r := range repos {
		out = append(out, r.Name)
	}
	return out
}
