package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

type flakyClient struct {
	failures int
	calls    int
	err      error
}

func (f *flakyClient) Complete(ctx context.Context, messages []Message) (*Completion, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	return &Completion{Text: "ok"}, nil
}

func TestWithRetries_Recovers(t *testing.T) {
	inner := &flakyClient{failures: 2, err: errors.New("overloaded")}
	c := WithRetries(inner, 2, time.Millisecond, nil)

	resp, err := c.Complete(context.Background(), nil)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != "ok" || inner.calls != 3 {
		t.Errorf("text=%q calls=%d", resp.Text, inner.calls)
	}
}

func TestWithRetries_GivesUp(t *testing.T) {
	inner := &flakyClient{failures: 10, err: errors.New("overloaded")}
	c := WithRetries(inner, 1, time.Millisecond, nil)

	if _, err := c.Complete(context.Background(), nil); err == nil {
		t.Fatal("expected error")
	}
	if inner.calls != 2 {
		t.Errorf("calls = %d, want 2", inner.calls)
	}
}

func TestWithRetries_ZeroIsPassthrough(t *testing.T) {
	inner := &flakyClient{}
	if c := WithRetries(inner, 0, time.Second, nil); c != Client(inner) {
		t.Error("expected the inner client back")
	}
}

func TestWithRetries_NoRetryOnCancel(t *testing.T) {
	inner := &flakyClient{failures: 10, err: context.Canceled}
	c := WithRetries(inner, 3, time.Millisecond, nil)

	if _, err := c.Complete(context.Background(), nil); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if inner.calls != 1 {
		t.Errorf("calls = %d, want 1", inner.calls)
	}
}

func TestPingerOfUnwrapsRetries(t *testing.T) {
	base := NewOllamaClient("http://127.0.0.1:1", Options{}, nil)
	wrapped := WithRetries(base, 2, time.Millisecond, nil)

	p, ok := PingerOf(wrapped)
	if !ok {
		t.Fatal("PingerOf(wrapped ollama) = false")
	}
	if p != Pinger(base) {
		t.Error("PingerOf returned a different client")
	}
	if _, ok := PingerOf(&flakyClient{}); ok {
		t.Error("PingerOf(flaky) = true, want false")
	}
}
