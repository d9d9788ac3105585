package progress

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github-trending-digest/internal/domain"
)

func TestTracker_Lifecycle(t *testing.T) {
	tr := NewTracker()
	assert.Equal(t, domain.Progress{Percentage: 0, Step: StepIdle, Message: "等待中"}, tr.Snapshot())

	tr.SetStep(StepScraping, "")
	assert.Equal(t, 10, tr.Snapshot().Percentage)
	assert.Equal(t, "正在抓取 GitHub Trending", tr.Snapshot().Message)

	tr.SetStep(StepAnalyzing, "AI 正在分析 12 个项目")
	assert.Equal(t, domain.Progress{Percentage: 70, Step: StepAnalyzing, Message: "AI 正在分析 12 个项目"}, tr.Snapshot())

	tr.SetStep(StepDone, "")
	assert.Equal(t, 100, tr.Snapshot().Percentage)

	tr.Reset()
	assert.Equal(t, StepIdle, tr.Snapshot().Step)
	assert.Equal(t, 0, tr.Snapshot().Percentage)
}

func TestTracker_ErrorKeepsPercentage(t *testing.T) {
	tr := NewTracker()
	tr.SetStep(StepEnriching, "")
	tr.Fail("boom")

	assert.Equal(t, domain.Progress{Percentage: 45, Step: StepError, Message: "boom"}, tr.Snapshot())
}

func TestTracker_UnknownStepIgnored(t *testing.T) {
	tr := NewTracker()
	tr.SetStep(StepDedup, "")

	calls := 0
	tr.OnChange(func(domain.Progress) { calls++ })
	tr.SetStep("teleporting", "x")

	assert.Equal(t, StepDedup, tr.Snapshot().Step)
	assert.Equal(t, 0, calls)
}

func TestTracker_PercentageNeverDecreases(t *testing.T) {
	tr := NewTracker()
	tr.SetStep(StepReport, "")
	tr.SetStep(StepDedup, "")

	assert.Equal(t, 85, tr.Snapshot().Percentage)
	assert.Equal(t, StepDedup, tr.Snapshot().Step)
}

func TestTracker_ObserverSeesEveryTransition(t *testing.T) {
	tr := NewTracker()
	var seen []string
	tr.OnChange(func(p domain.Progress) { seen = append(seen, p.Step) })

	for _, s := range []string{StepScraping, StepDedup, StepEnriching, StepAnalyzing, StepReport, StepEmail, StepDone} {
		tr.SetStep(s, "")
	}

	assert.Equal(t, []string{"scraping", "dedup", "enriching", "analyzing", "report", "email", "done"}, seen)
}

func TestTracker_ConcurrentReaders(t *testing.T) {
	tr := NewTracker()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				p := tr.Snapshot()
				assert.GreaterOrEqual(t, p.Percentage, 0)
			}
		}()
	}
	for _, s := range []string{StepScraping, StepDedup, StepEnriching, StepDone} {
		tr.SetStep(s, "")
	}
	wg.Wait()
}
