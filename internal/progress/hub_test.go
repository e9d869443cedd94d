package progress

import (
	"sync"
	"testing"

	"github.com/google/uuid"
)

func TestHubDeliversToSubscriber(t *testing.T) {
	hub := NewHub()
	storyID := uuid.New()

	ch, cancel := hub.Subscribe(storyID)
	defer cancel()

	hub.Publish(Event{StoryID: storyID, Phase: "generating_script", Fraction: 0.1})

	select {
	case event := <-ch:
		if event.Phase != "generating_script" {
			t.Errorf("phase = %q, want generating_script", event.Phase)
		}
		if event.Fraction != 0.1 {
			t.Errorf("fraction = %.2f, want 0.1", event.Fraction)
		}
	default:
		t.Fatal("expected a buffered event")
	}
}

func TestHubIsolatesStories(t *testing.T) {
	hub := NewHub()
	storyA := uuid.New()
	storyB := uuid.New()

	chA, cancelA := hub.Subscribe(storyA)
	defer cancelA()

	hub.Publish(Event{StoryID: storyB, Phase: "stitching", Fraction: 0.9})

	select {
	case event := <-chA:
		t.Fatalf("story A received story B's event: %+v", event)
	default:
	}
}

func TestHubFractionNeverRegresses(t *testing.T) {
	hub := NewHub()
	storyID := uuid.New()

	ch, cancel := hub.Subscribe(storyID)
	defer cancel()

	hub.Publish(Event{StoryID: storyID, Fraction: 0.6})
	hub.Publish(Event{StoryID: storyID, Fraction: 0.3}) // late report from an earlier phase
	hub.Publish(Event{StoryID: storyID, Fraction: 0.8})

	var fractions []float64
	for i := 0; i < 3; i++ {
		fractions = append(fractions, (<-ch).Fraction)
	}

	for i := 1; i < len(fractions); i++ {
		if fractions[i] < fractions[i-1] {
			t.Fatalf("fraction regressed: %v", fractions)
		}
	}
	if fractions[1] != 0.6 {
		t.Errorf("late report should be clamped to 0.6, got %.2f", fractions[1])
	}
}

func TestHubConcurrentPublishersStayMonotonic(t *testing.T) {
	// Clamping and delivery happen under the same lock, so even racing
	// publishers cannot land a lower fraction after a higher one.
	hub := NewHub()
	storyID := uuid.New()

	ch, cancel := hub.Subscribe(storyID)
	defer cancel()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				hub.Publish(Event{StoryID: storyID, Fraction: float64(g*25+i) / 200})
			}
		}(g)
	}
	wg.Wait()

	last := -1.0
	for {
		select {
		case event := <-ch:
			if event.Fraction < last {
				t.Fatalf("fraction went backward: %.3f after %.3f", event.Fraction, last)
			}
			last = event.Fraction
		default:
			return
		}
	}
}

func TestHubClampsFractionRange(t *testing.T) {
	hub := NewHub()
	storyID := uuid.New()

	ch, cancel := hub.Subscribe(storyID)
	defer cancel()

	hub.Publish(Event{StoryID: storyID, Fraction: 1.7})
	if got := (<-ch).Fraction; got != 1.0 {
		t.Errorf("fraction = %.2f, want clamp to 1.0", got)
	}
}

func TestHubDropsWhenSubscriberFull(t *testing.T) {
	hub := NewHub()
	storyID := uuid.New()

	_, cancel := hub.Subscribe(storyID)
	defer cancel()

	// Publishing far past the buffer must not block.
	for i := 0; i < 100; i++ {
		hub.Publish(Event{StoryID: storyID, Fraction: float64(i) / 100})
	}
}

func TestHubCancelRemovesSubscriber(t *testing.T) {
	hub := NewHub()
	storyID := uuid.New()

	ch, cancel := hub.Subscribe(storyID)
	cancel()

	hub.Publish(Event{StoryID: storyID, Fraction: 0.5})

	select {
	case event, ok := <-ch:
		if ok {
			t.Fatalf("cancelled subscriber received event: %+v", event)
		}
	default:
	}
}

func TestHubForgetResetsHighWater(t *testing.T) {
	hub := NewHub()
	storyID := uuid.New()

	hub.Publish(Event{StoryID: storyID, Fraction: 0.9})
	hub.Forget(storyID)

	ch, cancel := hub.Subscribe(storyID)
	defer cancel()

	hub.Publish(Event{StoryID: storyID, Fraction: 0.1})
	if got := (<-ch).Fraction; got != 0.1 {
		t.Errorf("fraction after Forget = %.2f, want 0.1", got)
	}
}
