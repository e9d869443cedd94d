package assets

import (
	"context"
	"log"
	"sort"
	"sync"

	"github.com/storyforge/storyforge/internal/models"
)

// Orchestrator fans scene generation out over a bounded worker pool. Scene
// failures are independent: one bad scene never cancels its siblings.
type Orchestrator struct {
	generator     *Generator
	maxConcurrent int
}

func NewOrchestrator(generator *Generator, maxConcurrent int) *Orchestrator {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Orchestrator{
		generator:     generator,
		maxConcurrent: maxConcurrent,
	}
}

// GenerateAll runs asset generation for every scene with at most
// maxConcurrent in flight. onSceneDone, when non-nil, is invoked once per
// completed scene (from worker goroutines, possibly concurrently). If ctx is
// cancelled, unstarted scenes are reported as failed outcomes; scenes already
// admitted drain on a detached context, since a billable external call that
// is in flight cannot be un-sent.
//
// The returned summary's outcomes are ordered by scene index.
func (o *Orchestrator) GenerateAll(ctx context.Context, story *models.Story, scenes []models.Scene, onSceneDone func(models.GenerationOutcome)) models.BatchSummary {
	sem := make(chan struct{}, o.maxConcurrent)
	sceneCtx := context.WithoutCancel(ctx)

	var (
		mu       sync.Mutex
		outcomes []models.GenerationOutcome
		wg       sync.WaitGroup
	)

	record := func(outcome models.GenerationOutcome) {
		mu.Lock()
		outcomes = append(outcomes, outcome)
		mu.Unlock()
		if onSceneDone != nil {
			onSceneDone(outcome)
		}
	}

	for i := range scenes {
		scene := &scenes[i]

		select {
		case <-ctx.Done():
			record(models.GenerationOutcome{
				SceneID: scene.ID,
				Index:   scene.SceneIndex,
				OK:      false,
				Err:     "cancelled before generation started",
			})
			continue
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			record(o.generator.GenerateScene(sceneCtx, story, scene))
		}()
	}

	wg.Wait()

	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].Index < outcomes[j].Index })

	summary := models.BatchSummary{Outcomes: outcomes}
	for _, outcome := range outcomes {
		if outcome.OK {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
	}

	log.Printf("[Assets] batch complete for story %s: %d succeeded, %d failed", story.ID, summary.Succeeded, summary.Failed)
	return summary
}
