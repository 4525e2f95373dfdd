package conversation

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time          { return f.now }
func (f *fakeClock) Advance(d time.Duration) { f.now = f.now.Add(d) }

func newManagerForTest(max int) (*Manager, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	return NewManager(3*time.Minute, max, clock.Now), clock
}

func TestAppendBoundsHistory(t *testing.T) {
	m, _ := newManagerForTest(4)
	m.GetOrReset("u1", TypeGenerate, false)

	for i := 0; i < 10; i++ {
		history := m.Append("u1", RoleUser, []Part{TextPart(fmt.Sprintf("msg %d", i))})
		if len(history) > 4 {
			t.Fatalf("history grew to %d after append %d", len(history), i)
		}
	}

	history := m.History("u1")
	if len(history) != 4 {
		t.Fatalf("expected 4 retained messages, got %d", len(history))
	}
	// Most recent messages, in arrival order.
	for i, msg := range history {
		want := fmt.Sprintf("msg %d", 6+i)
		if msg.Parts[0].Text != want {
			t.Errorf("slot %d: expected %q, got %q", i, want, msg.Parts[0].Text)
		}
	}
}

func TestConcurrentAppendsSameSession(t *testing.T) {
	// Transports handle each update on its own goroutine, so two quick
	// messages from the same user append concurrently.
	m, _ := newManagerForTest(4)
	m.GetOrReset("u1", TypeGenerate, false)

	var wg sync.WaitGroup
	for g := 0; g < 2; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				history := m.Append("u1", RoleUser, []Part{TextPart(fmt.Sprintf("g%d msg %d", g, i))})
				if len(history) > 4 {
					t.Errorf("history grew to %d", len(history))
				}
				m.History("u1")
			}
		}(g)
	}
	wg.Wait()

	if history := m.History("u1"); len(history) != 4 {
		t.Fatalf("expected 4 retained messages, got %d", len(history))
	}
}

func TestTypeChangeResetsHistory(t *testing.T) {
	m, _ := newManagerForTest(10)
	m.GetOrReset("u1", TypeGenerate, false)
	m.Append("u1", RoleUser, []Part{TextPart("a cat")})
	m.Append("u1", RoleModel, []Part{TextPart("done")})

	conv := m.GetOrReset("u1", TypeEdit, false)
	if len(conv.Messages) != 0 {
		t.Fatalf("expected empty history after type change, got %d messages", len(conv.Messages))
	}
	if conv.Type != TypeEdit {
		t.Fatalf("expected type %q, got %q", TypeEdit, conv.Type)
	}
}

func TestTypeChangePreservesID(t *testing.T) {
	m, _ := newManagerForTest(10)
	conv := m.GetOrReset("u1", TypeGenerate, false)
	conv.ID = "conv-123"
	m.Append("u1", RoleUser, []Part{TextPart("a cat")})

	reset := m.GetOrReset("u1", TypeEdit, true)
	if reset.ID != "conv-123" {
		t.Fatalf("expected preserved id, got %q", reset.ID)
	}
	if len(reset.Messages) != 0 {
		t.Fatal("preserved-id reset must still clear history")
	}
}

func TestSameTypeKeepsHistory(t *testing.T) {
	m, _ := newManagerForTest(10)
	m.GetOrReset("u1", TypeGenerate, false)
	m.Append("u1", RoleUser, []Part{TextPart("a cat")})

	conv := m.GetOrReset("u1", TypeGenerate, false)
	if len(conv.Messages) != 1 {
		t.Fatalf("expected history kept on same-type command, got %d", len(conv.Messages))
	}
}

func TestConversationExpires(t *testing.T) {
	m, clock := newManagerForTest(10)
	m.GetOrReset("u1", TypeGenerate, false)
	m.Append("u1", RoleUser, []Part{TextPart("a cat")})

	clock.Advance(4 * time.Minute)

	if history := m.History("u1"); history != nil {
		t.Fatalf("expected expired conversation, got %d messages", len(history))
	}
}

func TestAppendRefreshesActivity(t *testing.T) {
	m, clock := newManagerForTest(10)
	m.GetOrReset("u1", TypeGenerate, false)

	clock.Advance(2 * time.Minute)
	m.Append("u1", RoleUser, []Part{TextPart("still here")})
	clock.Advance(2 * time.Minute)

	if m.History("u1") == nil {
		t.Fatal("conversation expired despite recent activity")
	}
}

func TestClear(t *testing.T) {
	m, _ := newManagerForTest(10)
	m.GetOrReset("u1", TypeGenerate, false)
	m.Append("u1", RoleUser, []Part{TextPart("a cat")})

	m.Clear("u1")

	if m.History("u1") != nil {
		t.Fatal("history survived clear")
	}
	if _, ok := m.Type("u1"); ok {
		t.Fatal("session type survived clear")
	}
}
