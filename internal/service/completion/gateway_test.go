package completion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

type stubModel struct {
	calls int
	fn    func(call int) (*schema.Message, error)
}

func (s *stubModel) Generate(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	s.calls++
	return s.fn(s.calls)
}

type sleepRecorder struct {
	slept []time.Duration
}

func (r *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	r.slept = append(r.slept, d)
	return nil
}

func newTestGateway(primary, fallback *stubModel, rec *sleepRecorder) *Gateway {
	return NewGateway(
		Model{Name: "primary-model", Client: primary},
		Model{Name: "fallback-model", Client: fallback},
		Config{Sleep: rec.sleep},
		nil,
	)
}

func messagesFixture() []*schema.Message {
	return []*schema.Message{
		schema.SystemMessage("instruction"),
		schema.UserMessage("hello"),
	}
}

func TestCompleteTransientThenSuccess(t *testing.T) {
	primary := &stubModel{fn: func(call int) (*schema.Message, error) {
		if call <= 2 {
			return nil, errors.New("429 too many requests")
		}
		return schema.AssistantMessage("fine by me", nil), nil
	}}
	fallback := &stubModel{fn: func(int) (*schema.Message, error) {
		t.Fatal("fallback must not be used for transient errors")
		return nil, nil
	}}
	rec := &sleepRecorder{}

	reply, err := newTestGateway(primary, fallback, rec).Complete(context.Background(), messagesFixture())
	if err != nil {
		t.Fatalf("Complete err: %v", err)
	}
	if reply.Content != "fine by me" {
		t.Fatalf("unexpected content: %q", reply.Content)
	}
	if primary.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", primary.calls)
	}

	want := []time.Duration{500 * time.Millisecond, time.Second}
	if len(rec.slept) != len(want) {
		t.Fatalf("expected %d sleeps, got %v", len(want), rec.slept)
	}
	var total time.Duration
	for i, d := range rec.slept {
		if d != want[i] {
			t.Fatalf("sleep %d: got %v want %v", i, d, want[i])
		}
		total += d
	}
	if total != 1500*time.Millisecond {
		t.Fatalf("total backoff: got %v", total)
	}
}

func TestCompleteContentPolicySwitchesToFallback(t *testing.T) {
	primary := &stubModel{fn: func(int) (*schema.Message, error) {
		return nil, errors.New("BadRequestError: ContentPolicyViolationError")
	}}
	fallback := &stubModel{fn: func(int) (*schema.Message, error) {
		return schema.AssistantMessage("fallback speaking", nil), nil
	}}
	rec := &sleepRecorder{}

	reply, err := newTestGateway(primary, fallback, rec).Complete(context.Background(), messagesFixture())
	if err != nil {
		t.Fatalf("Complete err: %v", err)
	}
	if reply.Content != "fallback speaking" {
		t.Fatalf("unexpected content: %q", reply.Content)
	}
	if reply.Model != "fallback-model" {
		t.Fatalf("reply attributed to %q", reply.Model)
	}
	if primary.calls != 1 {
		t.Fatalf("primary must not be re-attempted after the switch, got %d calls", primary.calls)
	}
	if fallback.calls != 1 {
		t.Fatalf("expected 1 fallback call, got %d", fallback.calls)
	}
}

func TestCompleteExhaustionReturnsSentinel(t *testing.T) {
	primary := &stubModel{fn: func(int) (*schema.Message, error) {
		return nil, errors.New("connection reset by peer")
	}}
	fallback := &stubModel{fn: func(int) (*schema.Message, error) {
		t.Fatal("fallback must not run on transient exhaustion")
		return nil, nil
	}}
	rec := &sleepRecorder{}

	_, err := newTestGateway(primary, fallback, rec).Complete(context.Background(), messagesFixture())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if primary.calls != 5 {
		t.Fatalf("expected exactly 5 attempts, got %d", primary.calls)
	}

	want := []time.Duration{
		500 * time.Millisecond, time.Second, 2 * time.Second, 4 * time.Second,
	}
	if len(rec.slept) != len(want) {
		t.Fatalf("expected %d backoff sleeps, got %v", len(want), rec.slept)
	}
	for i, d := range rec.slept {
		if d != want[i] {
			t.Fatalf("sleep %d: got %v want %v", i, d, want[i])
		}
	}
}

func TestCompleteMalformedRetriesWithFixedDelay(t *testing.T) {
	primary := &stubModel{fn: func(call int) (*schema.Message, error) {
		if call == 1 {
			return nil, errors.New("400 invalid request")
		}
		return schema.AssistantMessage("recovered", nil), nil
	}}
	fallback := &stubModel{fn: func(int) (*schema.Message, error) { return nil, nil }}
	rec := &sleepRecorder{}

	reply, err := newTestGateway(primary, fallback, rec).Complete(context.Background(), messagesFixture())
	if err != nil {
		t.Fatalf("Complete err: %v", err)
	}
	if reply.Content != "recovered" {
		t.Fatalf("unexpected content: %q", reply.Content)
	}
	if len(rec.slept) != 1 || rec.slept[0] != 250*time.Millisecond {
		t.Fatalf("expected one 250ms sleep, got %v", rec.slept)
	}
}

func TestCompleteAuthFailsImmediately(t *testing.T) {
	primary := &stubModel{fn: func(int) (*schema.Message, error) {
		return nil, errors.New("401 AuthenticationError: invalid api key")
	}}
	fallback := &stubModel{fn: func(int) (*schema.Message, error) { return nil, nil }}
	rec := &sleepRecorder{}

	_, err := newTestGateway(primary, fallback, rec).Complete(context.Background(), messagesFixture())
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrUnavailable) {
		t.Fatal("auth failures must not degrade to the sentinel")
	}
	if primary.calls != 1 {
		t.Fatalf("expected a single attempt, got %d", primary.calls)
	}
	if len(rec.slept) != 0 {
		t.Fatalf("expected no sleeps, got %v", rec.slept)
	}
	if fallback.calls != 0 {
		t.Fatal("fallback must not run for auth failures")
	}
}

func TestCompleteFallbackFailureReturnsSentinel(t *testing.T) {
	primary := &stubModel{fn: func(int) (*schema.Message, error) {
		return nil, errors.New("content filter triggered")
	}}
	fallback := &stubModel{fn: func(int) (*schema.Message, error) {
		return nil, errors.New("401 AuthenticationError: invalid api key")
	}}
	rec := &sleepRecorder{}

	_, err := newTestGateway(primary, fallback, rec).Complete(context.Background(), messagesFixture())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("fallback-sequence failures must map to the sentinel, got %v", err)
	}
	if fallback.calls != 1 {
		t.Fatalf("expected a single fallback attempt, got %d", fallback.calls)
	}
}

func TestCompleteContentPolicyOnBothModels(t *testing.T) {
	policyErr := func(int) (*schema.Message, error) {
		return nil, errors.New("content filter triggered")
	}
	primary := &stubModel{fn: policyErr}
	fallback := &stubModel{fn: policyErr}
	rec := &sleepRecorder{}

	_, err := newTestGateway(primary, fallback, rec).Complete(context.Background(), messagesFixture())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
