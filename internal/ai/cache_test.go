package ai

import (
	"context"
	"errors"
	"testing"
)

type countingEmbedder struct {
	calls map[string]int
	err   error
}

func (c *countingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if c.calls == nil {
		c.calls = make(map[string]int)
	}
	c.calls[text]++
	if c.err != nil {
		return nil, c.err
	}
	return []float32{float32(len(text)), 1}, nil
}

func (c *countingEmbedder) Name() string { return "counting" }

func TestCachedCallsInnerOncePerText(t *testing.T) {
	inner := &countingEmbedder{}
	cached, err := NewCached(inner, 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := cached.Embed(ctx, "Skills: Go."); err != nil {
			t.Fatalf("embed: %v", err)
		}
	}
	if _, err := cached.Embed(ctx, "Skills: Rust."); err != nil {
		t.Fatalf("embed: %v", err)
	}

	if inner.calls["Skills: Go."] != 1 || inner.calls["Skills: Rust."] != 1 {
		t.Fatalf("unexpected inner calls: %v", inner.calls)
	}
	if cached.Len() != 2 {
		t.Fatalf("expected 2 cached vectors, got %d", cached.Len())
	}
	if cached.Name() != "counting+cache" {
		t.Fatalf("unexpected name %q", cached.Name())
	}
}

func TestCachedDoesNotStoreFailures(t *testing.T) {
	inner := &countingEmbedder{err: errors.New("boom")}
	cached, err := NewCached(inner, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := cached.Embed(context.Background(), "text"); err == nil {
			t.Fatalf("expected error")
		}
	}
	if inner.calls["text"] != 2 {
		t.Fatalf("expected failures to reach the provider each time, got %d", inner.calls["text"])
	}
}

func TestCachedReturnsCopies(t *testing.T) {
	cached, err := NewCached(&countingEmbedder{}, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first, _ := cached.Embed(context.Background(), "abc")
	first[0] = 100

	second, _ := cached.Embed(context.Background(), "abc")
	if second[0] != 3 {
		t.Fatalf("cached vector was mutated: %v", second)
	}
}
