package trending

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github-trending-digest/internal/common"
	"github-trending-digest/internal/domain"
)

func loadFixture(t *testing.T) string {
	t.Helper()
	b, err := os.ReadFile("testdata/trending.html")
	require.NoError(t, err)
	return string(b)
}

func newTestScraper(url string) *Scraper {
	s := NewScraper(Options{
		BaseURL:           url,
		MaxRetries:        3,
		RetryDelay:        time.Millisecond,
		RequestsPerSecond: 1000,
	})
	return s
}

func TestParseTrendingPage(t *testing.T) {
	repos, err := ParseTrendingPage(strings.NewReader(loadFixture(t)))
	require.NoError(t, err)
	require.Len(t, repos, 2)

	first := repos[0]
	assert.Equal(t, "langchain-ai/langgraph", first.Name)
	assert.Equal(t, "https://github.com/langchain-ai/langgraph", first.URL)
	assert.Equal(t, "Build resilient language agents as graphs.", first.Description)
	assert.Equal(t, "Python", first.Language)
	assert.Equal(t, 12345, first.Stars)
	assert.Equal(t, 2001, first.Forks)
	assert.Equal(t, 1024, first.StarsDelta)

	second := repos[1]
	assert.Equal(t, "vuejs/core", second.Name)
	assert.Equal(t, "", second.Description)
	assert.Equal(t, 48000, second.Stars)
	assert.Equal(t, 0, second.Forks)
	assert.Equal(t, 0, second.StarsDelta)
}

func TestFetchTrendingMulti_MergesPerDimension(t *testing.T) {
	fixture := loadFixture(t)
	var mu sync.Mutex
	var requested []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requested = append(requested, r.URL.Path+"?"+r.URL.RawQuery)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(fixture))
	}))
	defer server.Close()

	got, err := newTestScraper(server.URL).FetchTrendingMulti(context.Background(), []string{"python", " ", "go"})
	require.NoError(t, err)

	// 同一维度内的重复项目只保留一个
	for _, dim := range domain.Dimensions {
		require.Len(t, got[dim], 2, dim)
	}
	assert.Equal(t, []string{
		"/?since=daily", "/python?since=daily", "/go?since=daily",
		"/?since=weekly", "/python?since=weekly", "/go?since=weekly",
		"/?since=monthly", "/python?since=monthly", "/go?since=monthly",
	}, requested)
}

func TestFetchTrending_RetriesOn429(t *testing.T) {
	fixture := loadFixture(t)
	var calls int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(fixture))
	}))
	defer server.Close()

	repos, err := newTestScraper(server.URL).FetchTrending(context.Background(), nil, domain.Daily)
	require.NoError(t, err)
	assert.Len(t, repos, 2)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestFetchTrending_GivesUpOnlyOnFailingURL(t *testing.T) {
	fixture := loadFixture(t)
	var rustCalls int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rust":
			atomic.AddInt32(&rustCalls, 1)
			w.WriteHeader(http.StatusTooManyRequests)
		case "/cobol":
			w.WriteHeader(http.StatusNotFound)
		default:
			_, _ = w.Write([]byte(fixture))
		}
	}))
	defer server.Close()

	repos, err := newTestScraper(server.URL).FetchTrending(context.Background(), []string{"rust", "cobol"}, domain.Weekly)
	require.NoError(t, err)
	assert.Len(t, repos, 2)
	// 首次请求 + 3 次重试
	assert.Equal(t, int32(4), atomic.LoadInt32(&rustCalls))
}

func TestFetchTrendingMulti_AllFailed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := newTestScraper(server.URL).FetchTrendingMulti(context.Background(), []string{"go"})
	require.Error(t, err)
	assert.Equal(t, common.ErrCodeScrape, common.CodeOf(err))
}

func TestPauseUsesJitterWindow(t *testing.T) {
	s := NewScraper(Options{MinDelay: 10 * time.Millisecond, MaxDelay: 20 * time.Millisecond})
	var slept []time.Duration
	s.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	for i := 0; i < 20; i++ {
		require.NoError(t, s.pause(context.Background()))
	}
	for _, d := range slept {
		assert.GreaterOrEqual(t, d, 10*time.Millisecond)
		assert.LessOrEqual(t, d, 20*time.Millisecond)
	}
}

func TestFetchTrendingMulti_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewScraper(Options{BaseURL: "http://127.0.0.1:0", MinDelay: time.Millisecond, MaxDelay: time.Millisecond})
	_, err := s.FetchTrendingMulti(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
