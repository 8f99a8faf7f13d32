package pipeline

import (
	"context"
	"errors"
	"iter"
	"slices"
	"strings"
	"testing"

	"github.com/initializ/stepforge/logging"
)

// recordingLogger captures log entries for assertions.
type recordingLogger struct {
	entries []logEntry
}

type logEntry struct {
	level  string
	msg    string
	fields map[string]any
}

func (l *recordingLogger) add(level, msg string, fields map[string]any) {
	l.entries = append(l.entries, logEntry{level: level, msg: msg, fields: fields})
}

func (l *recordingLogger) Info(msg string, f map[string]any)  { l.add("info", msg, f) }
func (l *recordingLogger) Warn(msg string, f map[string]any)  { l.add("warn", msg, f) }
func (l *recordingLogger) Error(msg string, f map[string]any) { l.add("error", msg, f) }
func (l *recordingLogger) Debug(msg string, f map[string]any) { l.add("debug", msg, f) }

func (l *recordingLogger) count(level string) int {
	n := 0
	for _, e := range l.entries {
		if e.level == level {
			n++
		}
	}
	return n
}

// recorder returns a hook that appends its name to calls.
func recorder(name string, calls *[]string) Hook {
	return Func(name, func(ctx context.Context, bag *Bag) error {
		*calls = append(*calls, name)
		return nil
	})
}

func mustAddStep(t *testing.T, p *Pipeline, name string, opts ...StepOption) {
	t.Helper()
	if err := p.AddStep(name, opts...); err != nil {
		t.Fatalf("AddStep(%q) error: %v", name, err)
	}
}

func TestAddStep_RegistrationOrder(t *testing.T) {
	p := New()
	names := []string{"prebuild", "compile", "postbuild", "publish"}
	for _, n := range names {
		mustAddStep(t, p, n)
	}
	if got := p.Steps(); !slices.Equal(got, names) {
		t.Fatalf("Steps() = %v, want %v", got, names)
	}
	if p.Len() != len(names) {
		t.Errorf("Len() = %d, want %d", p.Len(), len(names))
	}
}

func TestAddStep_Duplicate(t *testing.T) {
	p := New()
	mustAddStep(t, p, "fetch")
	mustAddStep(t, p, "build")

	err := p.AddStep("fetch")
	if !errors.Is(err, ErrDuplicateStep) {
		t.Fatalf("err = %v, want ErrDuplicateStep", err)
	}
	if p.Len() != 2 {
		t.Errorf("Len() = %d, want 2", p.Len())
	}
	if got := p.Steps(); !slices.Equal(got, []string{"fetch", "build"}) {
		t.Errorf("Steps() = %v, order changed", got)
	}
}

func TestAddStep_EmptyName(t *testing.T) {
	err := New().AddStep("")
	if !errors.Is(err, ErrInvalidStep) {
		t.Fatalf("err = %v, want ErrInvalidStep", err)
	}
	if !strings.Contains(err.Error(), "adding step") {
		t.Errorf("err = %q, want context", err)
	}
}

func TestAddStep_Placement(t *testing.T) {
	tests := []struct {
		name string
		opts []StepOption
		want []string
	}{
		{"before first", []StepOption{BeforeStep("a")}, []string{"x", "a", "b", "c"}},
		{"before middle", []StepOption{BeforeStep("b")}, []string{"a", "x", "b", "c"}},
		{"after first", []StepOption{AfterStep("a")}, []string{"a", "x", "b", "c"}},
		{"after last", []StepOption{AfterStep("c")}, []string{"a", "b", "c", "x"}},
		{"before wins when consistent", []StepOption{AfterStep("a"), BeforeStep("c")}, []string{"a", "b", "x", "c"}},
		{"same step both ways", []StepOption{AfterStep("b"), BeforeStep("b")}, []string{"a", "x", "b", "c"}},
		{"unknown before falls to after", []StepOption{BeforeStep("nope"), AfterStep("a")}, []string{"a", "x", "b", "c"}},
		{"unknown both appends", []StepOption{BeforeStep("nope"), AfterStep("gone")}, []string{"a", "b", "c", "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New()
			for _, n := range []string{"a", "b", "c"} {
				mustAddStep(t, p, n)
			}
			mustAddStep(t, p, "x", tt.opts...)
			if got := p.Steps(); !slices.Equal(got, tt.want) {
				t.Errorf("Steps() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAddStep_OrderConflict(t *testing.T) {
	p := New()
	for _, n := range []string{"a", "b", "c"} {
		mustAddStep(t, p, n)
	}
	err := p.AddStep("x", BeforeStep("a"), AfterStep("c"))
	if !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("err = %v, want ErrOrderConflict", err)
	}
	if got := p.Steps(); !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Errorf("Steps() = %v, order changed", got)
	}
	if _, ok := p.hooks["x"]; ok {
		t.Error("rejected step must not leave a hook list behind")
	}
}

func TestAddStep_UnknownReferenceWarns(t *testing.T) {
	log := &recordingLogger{}
	p := New(WithLogger(log))
	mustAddStep(t, p, "a")
	mustAddStep(t, p, "b", BeforeStep("missing"))

	if got := p.Steps(); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("Steps() = %v, want [a b]", got)
	}
	if log.count("warn") != 1 {
		t.Errorf("warn count = %d, want 1", log.count("warn"))
	}
}

func TestAddStep_StrictUnknownReference(t *testing.T) {
	p := New(WithStrict(true))
	mustAddStep(t, p, "a")
	err := p.AddStep("b", AfterStep("missing"))
	if !errors.Is(err, ErrUnknownStep) {
		t.Fatalf("err = %v, want ErrUnknownStep", err)
	}
	if p.Len() != 1 {
		t.Errorf("Len() = %d, want 1", p.Len())
	}
}

func TestAddStep_NotInvocableDefault(t *testing.T) {
	p := New()
	err := p.AddStep("a", WithHook(Func("broken", nil)))
	if !errors.Is(err, ErrNotInvocable) {
		t.Fatalf("err = %v, want ErrNotInvocable", err)
	}
	if p.Len() != 0 {
		t.Errorf("Len() = %d, want 0", p.Len())
	}
}

func TestAddHook_NotInvocable(t *testing.T) {
	p := New()
	mustAddStep(t, p, "a")
	if err := p.AddHook("a", nil); !errors.Is(err, ErrNotInvocable) {
		t.Errorf("nil hook: err = %v, want ErrNotInvocable", err)
	}
	if err := p.AddHook("a", Func("nilfn", nil)); !errors.Is(err, ErrNotInvocable) {
		t.Errorf("nil func: err = %v, want ErrNotInvocable", err)
	}
	var typedNil *funcHook
	if err := p.AddHook("a", typedNil); !errors.Is(err, ErrNotInvocable) {
		t.Errorf("typed nil: err = %v, want ErrNotInvocable", err)
	}
	if len(p.Hooks("a")) != 0 {
		t.Errorf("Hooks(a) = %d, want 0", len(p.Hooks("a")))
	}
}

type stampHook struct{ key string }

func (h *stampHook) Name() string { return "stamp_" + h.key }

func (h *stampHook) Run(_ context.Context, bag *Bag) error {
	bag.Set(h.key, true)
	return nil
}

func TestAddHook_TypedNilUserHook(t *testing.T) {
	p := New()
	mustAddStep(t, p, "a")

	var h *stampHook
	if err := p.AddHook("missing", h); !errors.Is(err, ErrNotInvocable) {
		t.Errorf("unknown step: err = %v, want ErrNotInvocable", err)
	}
	if err := p.AddHook("a", h); !errors.Is(err, ErrNotInvocable) {
		t.Errorf("known step: err = %v, want ErrNotInvocable", err)
	}
	if err := p.AddStep("b", WithHooks(nil, h)); !errors.Is(err, ErrNotInvocable) {
		t.Errorf("default after: err = %v, want ErrNotInvocable", err)
	}
	if len(p.Hooks("a")) != 0 || len(p.Hooks("missing")) != 0 {
		t.Error("typed nil hooks must not be registered")
	}

	if err := p.AddHook("a", &stampHook{key: "stamped"}); err != nil {
		t.Fatalf("AddHook() error: %v", err)
	}
	if err := p.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if p.Get("stamped") != true {
		t.Error("user hook did not run")
	}
}

func TestAddHook_UnknownStepTolerated(t *testing.T) {
	log := &recordingLogger{}
	p := New(WithLogger(log))
	var calls []string

	if err := p.AddHook("late", recorder("early_hook", &calls)); err != nil {
		t.Fatalf("AddHook() error: %v", err)
	}
	if log.count("warn") != 1 {
		t.Errorf("warn count = %d, want 1", log.count("warn"))
	}

	// Runs nothing while the step is missing.
	if err := p.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(calls) != 0 {
		t.Fatalf("calls = %v, want none", calls)
	}

	mustAddStep(t, p, "late")
	if err := p.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if !slices.Equal(calls, []string{"early_hook"}) {
		t.Errorf("calls = %v, want [early_hook]", calls)
	}
}

func TestAddHook_StrictUnknownStep(t *testing.T) {
	p := New(WithStrict(true))
	var calls []string
	err := p.AddHook("missing", recorder("h", &calls))
	if !errors.Is(err, ErrUnknownStep) {
		t.Fatalf("err = %v, want ErrUnknownStep", err)
	}
}

func TestIterate_HookOrder(t *testing.T) {
	var calls []string
	p := New()
	mustAddStep(t, p, "one", WithHooks(recorder("one.before", &calls), recorder("one.after", &calls)))
	mustAddStep(t, p, "two", WithHook(recorder("two.before", &calls)))
	if err := p.AddHook("one", recorder("one.a", &calls)); err != nil {
		t.Fatal(err)
	}
	if err := p.AddHook("one", recorder("one.b", &calls)); err != nil {
		t.Fatal(err)
	}
	if err := p.AddHook("two", recorder("two.a", &calls)); err != nil {
		t.Fatal(err)
	}

	want := []string{"one.before", "one.a", "one.b", "one.after", "two.before", "two.a"}
	for range 2 {
		calls = nil
		if err := p.Run(context.Background(), nil); err != nil {
			t.Fatalf("Run() error: %v", err)
		}
		if !slices.Equal(calls, want) {
			t.Fatalf("calls = %v, want %v", calls, want)
		}
	}
}

func TestIterate_YieldsPerStep(t *testing.T) {
	p := New()
	names := []string{"a", "b", "c", "d"}
	for _, n := range names {
		mustAddStep(t, p, n)
	}

	n := 0
	for bag, err := range p.Iterate(context.Background()) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if bag != p.Bag() {
			t.Fatal("expected the shared bag, got a different instance")
		}
		if bag.Step() != names[n] {
			t.Errorf("yield %d: step = %q, want %q", n, bag.Step(), names[n])
		}
		if bag.StepIndex() != n {
			t.Errorf("yield %d: step_index = %d, want %d", n, bag.StepIndex(), n)
		}
		if bag.StepIndex() != p.Index(bag.Step()) {
			t.Errorf("yield %d: step_index does not match position", n)
		}
		n++
	}
	if n != len(names) {
		t.Errorf("yields = %d, want %d", n, len(names))
	}
}

func TestIterate_HookFailureStopsTraversal(t *testing.T) {
	boom := errors.New("boom")
	var calls []string
	p := New()
	mustAddStep(t, p, "a")
	mustAddStep(t, p, "b", WithHooks(nil, recorder("b.after", &calls)))
	mustAddStep(t, p, "c", WithHook(recorder("c.before", &calls)))
	p.AddHook("a", recorder("a.main", &calls))
	p.AddHook("b", Func("b.fail", func(ctx context.Context, bag *Bag) error { return boom }))
	p.AddHook("b", recorder("b.never", &calls))
	p.AddHook("c", recorder("c.main", &calls))

	var yields int
	var gotErr error
	for _, err := range p.Iterate(context.Background()) {
		yields++
		if err != nil {
			gotErr = err
		}
	}

	if !errors.Is(gotErr, boom) {
		t.Fatalf("err = %v, want boom", gotErr)
	}
	var he *HookError
	if !errors.As(gotErr, &he) {
		t.Fatalf("err = %T, want *HookError", gotErr)
	}
	if he.Step != "b" || he.Index != 1 || he.Hook != "b.fail" || he.Phase != PhaseMain {
		t.Errorf("HookError = %+v, want step b index 1 hook b.fail phase main", he)
	}
	if yields != 2 {
		t.Errorf("yields = %d, want 2 (a ok, b failed)", yields)
	}
	if !slices.Equal(calls, []string{"a.main"}) {
		t.Errorf("calls = %v, want [a.main]", calls)
	}
	if p.Running() {
		t.Error("pipeline should leave running state after failure")
	}
}

func TestIterate_BagSharedAcrossStepsAndRuns(t *testing.T) {
	p := New()
	mustAddStep(t, p, "write")
	mustAddStep(t, p, "read")
	p.AddHook("write", Func("inc", func(ctx context.Context, bag *Bag) error {
		n, _ := bag.Get("count").(int)
		bag.Set("count", n+1)
		return nil
	}))
	var seen []int
	p.AddHook("read", Func("read", func(ctx context.Context, bag *Bag) error {
		seen = append(seen, bag.Get("count").(int))
		return nil
	}))

	for range 2 {
		if err := p.Run(context.Background(), nil); err != nil {
			t.Fatalf("Run() error: %v", err)
		}
	}
	if !slices.Equal(seen, []int{1, 2}) {
		t.Errorf("seen = %v, want [1 2]", seen)
	}
	if p.Get("count") != 2 {
		t.Errorf("count = %v, want 2", p.Get("count"))
	}
}

func TestIterate_ConfigurationFrozenWhileRunning(t *testing.T) {
	p := New()
	mustAddStep(t, p, "a")
	mustAddStep(t, p, "b")

	for range p.Iterate(context.Background()) {
		if !p.Running() {
			t.Fatal("Running() = false during traversal")
		}
		if err := p.AddStep("c"); !errors.Is(err, ErrRunning) {
			t.Errorf("AddStep err = %v, want ErrRunning", err)
		}
		if err := p.AddHook("a", Func("h", func(context.Context, *Bag) error { return nil })); !errors.Is(err, ErrRunning) {
			t.Errorf("AddHook err = %v, want ErrRunning", err)
		}
		break
	}

	if p.Running() {
		t.Fatal("Running() = true after consumer stopped")
	}
	mustAddStep(t, p, "c")
	if p.Len() != 3 {
		t.Errorf("Len() = %d, want 3", p.Len())
	}
}

func TestIterate_PullOneStepAtATime(t *testing.T) {
	var calls []string
	p := New()
	mustAddStep(t, p, "a")
	mustAddStep(t, p, "b")
	p.AddHook("a", recorder("a", &calls))
	p.AddHook("b", recorder("b", &calls))

	next, stop := iter.Pull2(p.Iterate(context.Background()))
	defer stop()

	bag, err, ok := next()
	if !ok || err != nil {
		t.Fatalf("first next() = ok %v err %v", ok, err)
	}
	if bag.Step() != "a" || !slices.Equal(calls, []string{"a"}) {
		t.Fatalf("after first pull: step %q calls %v", bag.Step(), calls)
	}

	bag, _, _ = next()
	if bag.Step() != "b" || !slices.Equal(calls, []string{"a", "b"}) {
		t.Fatalf("after second pull: step %q calls %v", bag.Step(), calls)
	}
	if _, _, ok := next(); ok {
		t.Error("expected traversal to be exhausted")
	}
}

func TestIterate_ContextCancelled(t *testing.T) {
	var calls []string
	p := New()
	mustAddStep(t, p, "a")
	mustAddStep(t, p, "b")
	p.AddHook("a", recorder("a", &calls))
	p.AddHook("b", recorder("b", &calls))

	ctx, cancel := context.WithCancel(context.Background())
	err := p.Run(ctx, func(bag *Bag) error {
		cancel()
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if !slices.Equal(calls, []string{"a"}) {
		t.Errorf("calls = %v, want [a]", calls)
	}
}

func TestRun_CallbackError(t *testing.T) {
	p := New()
	mustAddStep(t, p, "a")
	mustAddStep(t, p, "b")
	stop := errors.New("stop")
	var steps []string
	err := p.Run(context.Background(), func(bag *Bag) error {
		steps = append(steps, bag.Step())
		return stop
	})
	if !errors.Is(err, stop) {
		t.Fatalf("err = %v, want stop", err)
	}
	if !slices.Equal(steps, []string{"a"}) {
		t.Errorf("steps = %v, want [a]", steps)
	}
}

func TestIterate_HookLoggerLabel(t *testing.T) {
	rec := &recordingLogger{}
	hookLog := logging.NewLabeledLogger(rec, "Prebuild")
	p := New(WithHookLogger(hookLog))

	var labels []string
	capture := func(name string) Hook {
		return Func(name, func(ctx context.Context, bag *Bag) error {
			labels = append(labels, hookLog.Label())
			hookLog.Info("working", nil)
			return nil
		})
	}
	mustAddStep(t, p, "env", WithHooks(capture("build_environment"), capture("validate_environment")))
	p.AddHook("env", capture("envhook"))

	if err := p.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	want := []string{"build_environment", "envhook", "validate_environment"}
	if !slices.Equal(labels, want) {
		t.Errorf("labels = %v, want %v", labels, want)
	}
	if len(rec.entries) != 3 || rec.entries[1].fields[logging.LabelField] != "envhook" {
		t.Errorf("expected hook-attributed entries, got %+v", rec.entries)
	}
}

func TestIterate_LifecycleEvents(t *testing.T) {
	log := &recordingLogger{}
	p := New(WithLogger(log))
	mustAddStep(t, p, "a", WithHook(Func("pre", func(context.Context, *Bag) error { return nil })))
	if err := p.Run(context.Background(), nil); err != nil {
		t.Fatal(err)
	}

	var found bool
	for _, e := range log.entries {
		if e.msg == "calling hook" {
			found = true
			if e.fields["step"] != "a" || e.fields["step_index"] != 0 ||
				e.fields["hook"] != "pre" || e.fields["phase"] != "before" {
				t.Errorf("calling hook fields = %v", e.fields)
			}
		}
	}
	if !found {
		t.Error("expected a calling hook event")
	}
}

// Three steps, a before-only default on fetch and a plain hook on build.
func TestIterate_FetchBuildPackage(t *testing.T) {
	var calls []string
	p := New()
	mustAddStep(t, p, "fetch", WithHooks(recorder("validate_fetch", &calls), nil))
	mustAddStep(t, p, "build")
	mustAddStep(t, p, "package")
	if err := p.AddHook("build", recorder("log_build", &calls)); err != nil {
		t.Fatal(err)
	}

	var perYield [][]string
	var last *Bag
	for bag, err := range p.Iterate(context.Background()) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		perYield = append(perYield, slices.Clone(calls))
		calls = nil
		last = bag
	}

	want := [][]string{{"validate_fetch"}, {"log_build"}, nil}
	if len(perYield) != 3 {
		t.Fatalf("yields = %d, want 3", len(perYield))
	}
	for i := range want {
		if !slices.Equal(perYield[i], want[i]) {
			t.Errorf("yield %d hooks = %v, want %v", i, perYield[i], want[i])
		}
	}
	if last.Get(KeyStep) != "package" || last.Get(KeyStepIndex) != 2 {
		t.Errorf("final bag step=%v step_index=%v, want package 2",
			last.Get(KeyStep), last.Get(KeyStepIndex))
	}
}

func TestPipeline_BagAccess(t *testing.T) {
	p := New(WithProperties(map[string]any{"world": "main"}))
	if p.Get("world") != "main" {
		t.Errorf("Get(world) = %v, want main", p.Get("world"))
	}
	if p.Get("missing") != nil {
		t.Errorf("Get(missing) = %v, want nil", p.Get("missing"))
	}
	p.Set("k", 1)
	if !p.Has("k") {
		t.Error("Has(k) = false after Set")
	}
	if err := p.Delete("k"); err != nil {
		t.Fatalf("Delete(k) error: %v", err)
	}
	if p.Has("k") {
		t.Error("Has(k) = true after Delete")
	}
	if err := p.Delete("k"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Delete(k) again: err = %v, want ErrKeyNotFound", err)
	}
}
