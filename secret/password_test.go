package secret

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benaskins/secretkit/native"
	"github.com/benaskins/secretkit/vault"
	"github.com/prometheus/client_golang/prometheus"
)

type testEnv struct {
	client *Client
	lib    *native.Library
	store  *vault.MemoryStore
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	store := vault.NewMemoryStore()
	lib := native.New(native.NewLoop(), store)
	client := NewClient(lib, opts...)
	t.Cleanup(func() {
		if err := client.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return &testEnv{client: client, lib: lib, store: store}
}

// wait issues one operation and runs the loop until its continuation has
// been called, failing the test if that happens more than once.
func wait[T any](t *testing.T, env *testEnv, issue func(cont func(T, error)) error) (T, error) {
	t.Helper()
	var (
		value T
		err   error
		calls int
	)
	loop := env.lib.Loop()
	issueErr := issue(func(v T, e error) {
		calls++
		value, err = v, e
		loop.Quit()
	})
	if issueErr != nil {
		t.Fatalf("issue: %v", issueErr)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if runErr := loop.Run(ctx); runErr != nil {
		t.Fatalf("loop: %v", runErr)
	}
	// Anything else queued would be a second completion.
	loop.Iterate()
	if calls != 1 {
		t.Fatalf("expected continuation once, got %d", calls)
	}
	return value, err
}

// assertSettled checks that no operation or native buffer is outstanding.
func assertSettled(t *testing.T, env *testEnv) {
	t.Helper()
	if n := env.client.Pending(); n != 0 {
		t.Errorf("expected no pending operations, got %d", n)
	}
	if n := env.lib.Allocator().Live(); n != 0 {
		t.Errorf("expected no live native buffers, got %d", n)
	}
	if n := env.lib.Allocator().DoubleFrees(); n != 0 {
		t.Errorf("expected no double frees, got %d", n)
	}
}

func numberSchema(t *testing.T) *Schema {
	return mustSchema(t, "org.example.Number", map[string]AttributeType{
		"number": Integer,
		"even":   Boolean,
	})
}

func TestPasswordScenario(t *testing.T) {
	env := newTestEnv(t)
	pw := env.client.Passwords(numberSchema(t))
	full := Attributes{"number": Int(8), "even": Bool(true)}
	partial := Attributes{"number": Int(8)}

	ok, err := wait(t, env, func(cont func(bool, error)) error {
		return pw.Store("L", "p", full, cont)
	})
	if err != nil || !ok {
		t.Fatalf("Store: %v %v", ok, err)
	}

	password, err := wait(t, env, func(cont func(string, error)) error {
		return pw.Lookup(full, cont)
	})
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if password != "p" {
		t.Errorf("expected p, got %q", password)
	}

	items, err := wait(t, env, func(cont func([]*Item, error)) error {
		return pw.Search(partial, cont)
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0].Label() != "L" {
		t.Errorf("expected label L, got %q", items[0].Label())
	}
	attrs := items[0].Attributes()
	if len(attrs) != 2 || attrs["number"] != "8" || attrs["even"] != "1" {
		t.Errorf("expected {number:8 even:1}, got %v", attrs)
	}
	if secret := items[0].Secret(); secret == nil || string(secret.Data) != "p" {
		t.Errorf("expected loaded secret p, got %v", secret)
	}

	ok, err = wait(t, env, func(cont func(bool, error)) error {
		return pw.Clear(partial, cont)
	})
	if err != nil || !ok {
		t.Fatalf("Clear: %v %v", ok, err)
	}

	_, err = wait(t, env, func(cont func(string, error)) error {
		return pw.Lookup(full, cont)
	})
	var serr *ServiceError
	if !errors.As(err, &serr) || serr.Code != NotFound {
		t.Errorf("expected not-found ServiceError, got %v", err)
	}
	if !IsNotFound(err) {
		t.Errorf("expected IsNotFound for %v", err)
	}

	assertSettled(t, env)
}

func TestStoreUndeclaredAttributeIssuesNoCall(t *testing.T) {
	env := newTestEnv(t)
	pw := env.client.Passwords(numberSchema(t))

	called := false
	err := pw.Store("L", "p", Attributes{"colour": Text("red")}, func(bool, error) { called = true })
	if !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
	env.lib.Loop().Iterate()
	if called {
		t.Error("continuation must not run on a construction error")
	}
	if env.lib.Calls() != 0 {
		t.Errorf("expected zero native calls, got %d", env.lib.Calls())
	}
	assertSettled(t, env)
}

func TestEveryOperationRejectsUndeclared(t *testing.T) {
	env := newTestEnv(t)
	schema := numberSchema(t)
	pw := env.client.Passwords(schema)
	bad := Attributes{"user": Text("x")}

	c, err := wait(t, env, func(cont func(*Collection, error)) error {
		env.client.CreateCollection("Work", "work", cont)
		return nil
	})
	if err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	calls := env.lib.Calls()

	errs := []error{
		pw.Lookup(bad, func(string, error) {}),
		pw.Search(bad, func([]*Item, error) {}),
		pw.Clear(bad, func(bool, error) {}),
		c.Search(schema, bad, func([]*Item, error) {}),
		c.CreateItem(schema, "L", "p", bad, func(*Item, error) {}),
	}
	for i, err := range errs {
		if !errors.Is(err, ErrSchemaMismatch) {
			t.Errorf("operation %d: expected ErrSchemaMismatch, got %v", i, err)
		}
	}
	if env.lib.Calls() != calls {
		t.Errorf("expected no further native calls, got %d", env.lib.Calls()-calls)
	}
	assertSettled(t, env)
}

func TestSearchNoMatches(t *testing.T) {
	env := newTestEnv(t)
	pw := env.client.Passwords(numberSchema(t))

	items, err := wait(t, env, func(cont func([]*Item, error)) error {
		return pw.Search(Attributes{"number": Int(404)}, cont)
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if items == nil || len(items) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", items)
	}
	assertSettled(t, env)
}

func TestClearNoMatches(t *testing.T) {
	env := newTestEnv(t)
	pw := env.client.Passwords(numberSchema(t))

	ok, err := wait(t, env, func(cont func(bool, error)) error {
		return pw.Clear(Attributes{"number": Int(404)}, cont)
	})
	if err != nil || !ok {
		t.Errorf("expected Ok(true), got %v %v", ok, err)
	}
	assertSettled(t, env)
}

func TestLookupNoMatches(t *testing.T) {
	env := newTestEnv(t)
	pw := env.client.Passwords(numberSchema(t))

	password, err := wait(t, env, func(cont func(string, error)) error {
		return pw.Lookup(Attributes{"number": Int(404)}, cont)
	})
	if err == nil {
		t.Fatalf("expected error, got %q", password)
	}
	if !IsNotFound(err) {
		t.Errorf("expected not-found, got %v", err)
	}
	assertSettled(t, env)
}

func TestStoreReplacesMatchingPassword(t *testing.T) {
	env := newTestEnv(t)
	pw := env.client.Passwords(numberSchema(t))
	attrs := Attributes{"number": Int(1), "even": Bool(false)}

	for _, p := range []string{"first", "second"} {
		if _, err := wait(t, env, func(cont func(bool, error)) error {
			return pw.Store("L", p, attrs, cont)
		}); err != nil {
			t.Fatalf("Store %s: %v", p, err)
		}
	}

	items, err := wait(t, env, func(cont func([]*Item, error)) error {
		return pw.SearchAll(cont)
	})
	if err != nil {
		t.Fatalf("SearchAll: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if text, _ := items[0].Secret().Text(); text != "second" {
		t.Errorf("expected second, got %q", text)
	}
	assertSettled(t, env)
}

func TestStoreInUnknownCollection(t *testing.T) {
	env := newTestEnv(t)
	pw := env.client.Passwords(numberSchema(t)).InCollection("work")

	_, err := wait(t, env, func(cont func(bool, error)) error {
		return pw.Store("L", "p", Attributes{"number": Int(1)}, cont)
	})
	if !IsNotFound(err) {
		t.Errorf("expected not-found, got %v", err)
	}
	assertSettled(t, env)
}

func TestLookupUnlocksCollection(t *testing.T) {
	env := newTestEnv(t)
	pw := env.client.Passwords(numberSchema(t))
	attrs := Attributes{"number": Int(2)}

	if _, err := wait(t, env, func(cont func(bool, error)) error {
		return pw.Store("L", "locked-secret", attrs, cont)
	}); err != nil {
		t.Fatalf("Store: %v", err)
	}
	ctx := context.Background()
	c, err := env.store.ResolveAlias(ctx, vault.DefaultAlias)
	if err != nil {
		t.Fatalf("ResolveAlias: %v", err)
	}
	if err := env.store.SetLocked(ctx, c.ID, true); err != nil {
		t.Fatalf("SetLocked: %v", err)
	}

	password, err := wait(t, env, func(cont func(string, error)) error {
		return pw.Lookup(attrs, cont)
	})
	if err != nil || password != "locked-secret" {
		t.Errorf("expected locked-secret, got %q %v", password, err)
	}
}

func TestSchemaNameSeparatesPasswords(t *testing.T) {
	env := newTestEnv(t)
	types := map[string]AttributeType{"number": Integer}
	a := env.client.Passwords(mustSchema(t, "org.example.A", types))
	b := env.client.Passwords(mustSchema(t, "org.example.B", types))
	loose := env.client.Passwords(mustSchema(t, "org.example.Any", types, DontMatchName()))
	attrs := Attributes{"number": Int(7)}

	if _, err := wait(t, env, func(cont func(bool, error)) error {
		return a.Store("A", "a", attrs, cont)
	}); err != nil {
		t.Fatalf("Store: %v", err)
	}

	_, err := wait(t, env, func(cont func(string, error)) error {
		return b.Lookup(attrs, cont)
	})
	if !IsNotFound(err) {
		t.Errorf("expected other schema not to match, got %v", err)
	}

	password, err := wait(t, env, func(cont func(string, error)) error {
		return loose.Lookup(attrs, cont)
	})
	if err != nil || password != "a" {
		t.Errorf("expected DontMatchName lookup to find a, got %q %v", password, err)
	}
}

func TestClosedServiceDeliversUnavailable(t *testing.T) {
	store := vault.NewMemoryStore()
	lib := native.New(native.NewLoop(), store)
	lib.Close()
	env := &testEnv{client: NewClient(lib), lib: lib, store: store}

	_, err := wait(t, env, func(cont func(bool, error)) error {
		return env.client.Passwords(numberSchema(t)).Clear(nil, cont)
	})
	var serr *ServiceError
	if !errors.As(err, &serr) || serr.Code != Unavailable {
		t.Errorf("expected unavailable, got %v", err)
	}
	assertSettled(t, env)
}

func TestCloseRefusedWhileInFlight(t *testing.T) {
	store := vault.NewMemoryStore()
	lib := native.New(native.NewLoop(), store)
	client := NewClient(lib)
	env := &testEnv{client: client, lib: lib, store: store}

	var done bool
	if err := client.Passwords(numberSchema(t)).Clear(nil, func(bool, error) { done = true }); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if err := client.Close(); !errors.Is(err, ErrOperationsInFlight) {
		t.Errorf("expected ErrOperationsInFlight, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for !done {
		if !lib.Loop().Iterate() {
			select {
			case <-ctx.Done():
				t.Fatal("operation never completed")
			case <-time.After(time.Millisecond):
			}
		}
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close after completion: %v", err)
	}
	assertSettled(t, env)
}

func TestClientMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	env := newTestEnv(t, WithRegisterer(reg))
	pw := env.client.Passwords(numberSchema(t))

	wait(t, env, func(cont func(bool, error)) error {
		return pw.Clear(nil, cont)
	})
	wait(t, env, func(cont func(string, error)) error {
		return pw.Lookup(nil, cont)
	})

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	series := 0
	for _, f := range families {
		if f.GetName() == "secretkit_bridge_operations_completed_total" {
			series = len(f.GetMetric())
		}
	}
	if series != 2 {
		t.Errorf("expected 2 completion series, got %d", series)
	}
}
