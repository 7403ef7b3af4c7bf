package control

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"testing"

	"mercator-hq/sluice/pkg/condition"
	"mercator-hq/sluice/pkg/transaction"
)

func TestSerial_Order(t *testing.T) {
	env, _ := testEnv()
	s := NewSerial("chain", &recorder{name: "A"}, &recorder{name: "B"}, &recorder{name: "C"})

	tx, err := Apply(context.Background(), s, chatTransaction("", "hi"), env)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got, want := callOrder(tx), []any{"A", "B", "C"}; !reflect.DeepEqual(got, want) {
		t.Errorf("call order = %v, want %v", got, want)
	}
}

func TestSerial_HaltsOnError(t *testing.T) {
	env, _ := testEnv()
	boom := errors.New("boom")
	s := NewSerial("chain", &recorder{name: "A"}, &recorder{name: "B", err: boom}, &recorder{name: "C"})

	tx := chatTransaction("", "hi")
	out, err := Apply(context.Background(), s, tx, env)
	if err != boom {
		t.Fatalf("Apply() error = %v, want the member error unmodified", err)
	}
	if got, want := callOrder(out), []any{"A", "B"}; !reflect.DeepEqual(got, want) {
		t.Errorf("call order = %v, want %v", got, want)
	}
}

func TestSerial_EmptyIsNoOp(t *testing.T) {
	env, _ := testEnv()
	var logs bytes.Buffer
	env.Logger = slog.New(slog.NewTextHandler(&logs, nil))
	tx := chatTransaction("", "hi")
	before := tx.Clone()

	out, err := Apply(context.Background(), NewSerial("empty"), tx, env)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if !reflect.DeepEqual(out, before) {
		t.Error("empty serial policy changed the transaction")
	}
	line := logs.String()
	if !strings.Contains(line, "level=WARN") || !strings.Contains(line, "serial policy has no members") {
		t.Errorf("expected a warning for the empty chain, got %q", line)
	}
	if !strings.Contains(line, "policy=empty") {
		t.Errorf("warning does not name the policy: %q", line)
	}
}

func TestSerial_StopsWhenCancelled(t *testing.T) {
	env, _ := testEnv()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := Apply(ctx, NewSerial("chain", &recorder{name: "A"}), chatTransaction("", "hi"), env)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Apply() error = %v, want context.Canceled", err)
	}
	if got := callOrder(out); got != nil {
		t.Errorf("call order = %v, want no member applied", got)
	}
}

func staticBool(b bool) condition.Condition {
	c, _ := condition.NewComparison(condition.KindEquals, condition.NewStatic(b), condition.NewStatic(true))
	return c
}

func TestBranching(t *testing.T) {
	tests := []struct {
		name     string
		branches []Branch
		fallback Policy
		want     []any
	}{
		{
			name: "first match wins",
			branches: []Branch{
				{Cond: staticBool(true), Policy: &recorder{name: "P1"}},
				{Cond: staticBool(true), Policy: &recorder{name: "P2"}},
			},
			want: []any{"P1"},
		},
		{
			name: "later match",
			branches: []Branch{
				{Cond: staticBool(false), Policy: &recorder{name: "P1"}},
				{Cond: staticBool(true), Policy: &recorder{name: "P2"}},
			},
			fallback: &recorder{name: "D"},
			want:     []any{"P2"},
		},
		{
			name: "default on no match",
			branches: []Branch{
				{Cond: staticBool(false), Policy: &recorder{name: "P1"}},
			},
			fallback: &recorder{name: "D"},
			want:     []any{"D"},
		},
		{
			name: "no match no default",
			branches: []Branch{
				{Cond: staticBool(false), Policy: &recorder{name: "P1"}},
			},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, _ := testEnv()
			tx := chatTransaction("", "hi")
			before := tx.Clone()

			out, err := Apply(context.Background(), NewBranching(tt.branches, tt.fallback), tx, env)
			if err != nil {
				t.Fatalf("Apply() error = %v", err)
			}
			if got := callOrder(out); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("call order = %v, want %v", got, tt.want)
			}
			if tt.want == nil && !reflect.DeepEqual(out, before) {
				t.Error("unmatched branching changed the transaction")
			}
		})
	}
}

func TestBranching_ConditionFailureAborts(t *testing.T) {
	env, _ := testEnv()
	bad, err := condition.NewComparison(condition.KindContains, condition.NewStatic(1), condition.NewStatic("a"))
	if err != nil {
		t.Fatalf("NewComparison() error = %v", err)
	}
	b := NewBranching([]Branch{
		{Cond: bad, Policy: &recorder{name: "P1"}},
		{Cond: staticBool(true), Policy: &recorder{name: "P2"}},
	}, &recorder{name: "D"})

	out, err := Apply(context.Background(), b, chatTransaction("", "hi"), env)
	var mismatch *condition.TypeMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("Apply() error = %v, want *condition.TypeMismatchError", err)
	}
	if got := callOrder(out); got != nil {
		t.Errorf("call order = %v, want nothing applied", got)
	}
}

func TestBranching_RoutesOnTransaction(t *testing.T) {
	env, _ := testEnv()
	loader := DefaultLoader()
	p, err := loader.LoadJSON([]byte(`{
		"type": "BranchingPolicy",
		"config": {
			"cond_to_policy_map": [
				[{"type": "regex_match", "left": {"type": "path", "path": "request.payload.model"}, "right": {"type": "static", "value": "^claude-"}},
				 {"type": "SetData", "config": {"key": "route", "value": "anthropic"}}],
				[{"type": "equals", "left": {"type": "path", "path": "request.payload.model"}, "right": {"type": "static", "value": "gpt-4"}},
				 {"type": "SetData", "config": {"key": "route", "value": "openai"}}]
			],
			"default_policy": {"type": "Reject", "config": {"reason": "unsupported model"}}
		}
	}`))
	if err != nil {
		t.Fatalf("LoadJSON() error = %v", err)
	}

	out, err := Apply(context.Background(), p, chatTransaction("", "hi"), env)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if v, _ := out.Data.Get("route"); v.Interface() != "openai" {
		t.Errorf("route = %v, want openai", v.Interface())
	}

	tx := chatTransaction("", "hi")
	tx.Request.Payload["model"] = "llama"
	_, err = Apply(context.Background(), p, tx, env)
	if !errors.Is(err, ErrContentPolicy) {
		t.Errorf("Apply() error = %v, want content policy violation from default", err)
	}
}

type countingObserver struct {
	started []string
	errs    []error
}

func (o *countingObserver) ObservePolicy(ctx context.Context, p Policy, _ *transaction.Transaction) (context.Context, func(error)) {
	o.started = append(o.started, p.Name())
	return ctx, func(err error) { o.errs = append(o.errs, err) }
}

func TestApply_ObservesEveryStep(t *testing.T) {
	env, _ := testEnv()
	obs := &countingObserver{}
	env.Observer = Observers{obs, nil}

	s := NewSerial("root", &recorder{name: "A"}, NewBranching([]Branch{{Cond: staticBool(true), Policy: &recorder{name: "B"}}}, nil))
	if _, err := Apply(context.Background(), s, chatTransaction("", "hi"), env); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	want := []string{"root", "A", "BranchingPolicy", "B"}
	if !reflect.DeepEqual(obs.started, want) {
		t.Errorf("observed %v, want %v", obs.started, want)
	}
	if len(obs.errs) != len(want) {
		t.Errorf("completed %d observations, want %d", len(obs.errs), len(want))
	}
}
