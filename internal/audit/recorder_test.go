package audit

import (
	"context"
	"errors"
	"testing"
	"time"
)

type failingAppender struct{}

func (failingAppender) AppendEvent(context.Context, Event) (Event, error) {
	return Event{}, errors.New("disk full")
}

func TestRecordStampsContextMeta(t *testing.T) {
	store := NewMemoryStore()
	rec := NewRecorder(store)
	ctx := WithMeta(context.Background(), Meta{
		IP:        "203.0.113.7",
		UserAgent: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		RequestID: "req-123",
	})

	stored, err := rec.Record(ctx, Event{
		ActorID:    "01J0ACTOR",
		Action:     ActionPatientView,
		ObjectType: "patient",
		ObjectID:   "01J0PATIENT",
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if stored.ID == "" {
		t.Fatal("expected stored event to receive an id")
	}
	if stored.IP != "203.0.113.7" {
		t.Fatalf("ip not stamped: %q", stored.IP)
	}
	if stored.RequestID != "req-123" {
		t.Fatalf("request id not stamped: %q", stored.RequestID)
	}
	if stored.UASummary == "" || stored.UASummary == stored.UserAgent {
		t.Fatalf("expected summarized user agent, got %q", stored.UASummary)
	}
	if stored.CreatedAt.IsZero() {
		t.Fatal("expected created_at to be stamped")
	}
}

func TestRecordRequiresAction(t *testing.T) {
	rec := NewRecorder(NewMemoryStore())
	if _, err := rec.Record(context.Background(), Event{ActorID: "x"}); !errors.Is(err, ErrActionRequired) {
		t.Fatalf("expected ErrActionRequired, got %v", err)
	}
}

func TestRecordPropagatesStoreFailure(t *testing.T) {
	rec := NewRecorder(failingAppender{})
	if _, err := rec.Record(context.Background(), Event{Action: ActionLogin}); err == nil {
		t.Fatal("expected append failure to propagate")
	}
}

func TestQueryEventsFilters(t *testing.T) {
	store := NewMemoryStore()
	rec := NewRecorder(store)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := rec.Record(ctx, Event{ActorID: "01J0A", Action: ActionPatientSearch}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if _, err := rec.Record(ctx, Event{ActorID: "01J0B", Action: ActionLogin}); err != nil {
		t.Fatalf("record: %v", err)
	}

	got, err := store.QueryEvents(ctx, Filter{ActorID: "01J0A"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 events for actor, got %d", len(got))
	}

	got, err = store.QueryEvents(ctx, Filter{Action: ActionLogin})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 login event, got %d", len(got))
	}

	got, err = store.QueryEvents(ctx, Filter{To: time.Now().Add(-time.Hour)})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no events before cutoff, got %d", len(got))
	}
}

func TestQueryEventsNewestFirstAndCapped(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 150; i++ {
		_, err := store.AppendEvent(ctx, Event{
			Action:    ActionPatientView,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := store.QueryEvents(ctx, Filter{Limit: 500})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 100 {
		t.Fatalf("expected cap at 100, got %d", len(got))
	}
	if !got[0].CreatedAt.After(got[len(got)-1].CreatedAt) {
		t.Fatal("expected newest-first ordering")
	}
}

func TestSummarizeUserAgent(t *testing.T) {
	got := SummarizeUserAgent("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36")
	if got == "" {
		t.Fatal("expected a summary")
	}
	if SummarizeUserAgent("") != "" {
		t.Fatal("expected empty summary for empty header")
	}
	// Unparseable strings fall back to the raw value.
	if SummarizeUserAgent("curl/8.5.0") == "" {
		t.Fatal("expected fallback for non-browser agent")
	}
}
