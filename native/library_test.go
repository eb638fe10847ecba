package native

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benaskins/secretkit/vault"
)

func newTestLibrary(t *testing.T) (*Library, *vault.MemoryStore) {
	t.Helper()
	store := vault.NewMemoryStore()
	lib := New(NewLoop(), store)
	t.Cleanup(lib.Close)
	return lib, store
}

// await issues one call and runs the loop until its callback fires.
func await(t *testing.T, lib *Library, call func(cb AsyncReadyCallback)) *AsyncResult {
	t.Helper()
	var got *AsyncResult
	call(func(source any, res *AsyncResult, userData uintptr) {
		got = res
		lib.Loop().Quit()
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := lib.Loop().Run(ctx); err != nil {
		t.Fatalf("loop: %v", err)
	}
	return got
}

func testSchema() *Schema {
	return SchemaNew("org.example.Test", SchemaNone, map[string]SchemaAttributeType{
		"number": SchemaAttributeInteger,
		"even":   SchemaAttributeBoolean,
	})
}

func table(pool *StringPool, kv ...string) *AttributeTable {
	t := NewAttributeTable()
	for i := 0; i+1 < len(kv); i += 2 {
		t.Insert(pool.Strdup(kv[i]), pool.Strdup(kv[i+1]))
	}
	return t
}

func errorCode(err error) ErrorCode {
	var nerr *Error
	if errors.As(err, &nerr) {
		return nerr.Code
	}
	return -1
}

func TestPasswordRoundTrip(t *testing.T) {
	lib, _ := newTestLibrary(t)
	schema := testSchema()
	pool := lib.Allocator().NewStringPool()

	res := await(t, lib, func(cb AsyncReadyCallback) {
		lib.PasswordStore(schema, "", table(pool, "number", "8", "even", "1"), pool.Strdup("L"), pool.Strdup("p"), cb, 0)
	})
	ok, err := lib.PasswordStoreFinish(res)
	if err != nil || !ok {
		t.Fatalf("PasswordStoreFinish: %v %v", ok, err)
	}

	res = await(t, lib, func(cb AsyncReadyCallback) {
		lib.PasswordLookup(schema, table(pool, "number", "8"), cb, 0)
	})
	secret, err := lib.PasswordLookupFinish(res)
	if err != nil {
		t.Fatalf("PasswordLookupFinish: %v", err)
	}
	if v, _ := secret.Get(); v != "p" {
		t.Errorf("expected p, got %q", v)
	}
	secret.Free()

	res = await(t, lib, func(cb AsyncReadyCallback) {
		lib.PasswordClear(schema, table(pool, "number", "8"), cb, 0)
	})
	if ok, err := lib.PasswordClearFinish(res); err != nil || !ok {
		t.Fatalf("PasswordClearFinish: %v %v", ok, err)
	}

	res = await(t, lib, func(cb AsyncReadyCallback) {
		lib.PasswordLookup(schema, table(pool, "number", "8"), cb, 0)
	})
	if _, err := lib.PasswordLookupFinish(res); errorCode(err) != ErrorNoSuchObject {
		t.Errorf("expected no-such-object, got %v", err)
	}

	pool.Release()
	if lib.Allocator().Live() != 0 {
		t.Errorf("expected no live buffers, got %d", lib.Allocator().Live())
	}
	if lib.Calls() != 4 {
		t.Errorf("expected 4 calls, got %d", lib.Calls())
	}
}

func TestPasswordStoreCreatesDefaultCollection(t *testing.T) {
	lib, store := newTestLibrary(t)
	pool := lib.Allocator().NewStringPool()
	defer pool.Release()

	res := await(t, lib, func(cb AsyncReadyCallback) {
		lib.PasswordStore(testSchema(), "", table(pool, "number", "1"), pool.Strdup("L"), pool.Strdup("p"), cb, 0)
	})
	if _, err := lib.PasswordStoreFinish(res); err != nil {
		t.Fatalf("PasswordStoreFinish: %v", err)
	}

	c, err := store.ResolveAlias(context.Background(), vault.DefaultAlias)
	if err != nil {
		t.Fatalf("ResolveAlias: %v", err)
	}
	if c.Label != DefaultCollectionLabel {
		t.Errorf("expected label %q, got %q", DefaultCollectionLabel, c.Label)
	}
}

func TestPasswordStoreUnknownAlias(t *testing.T) {
	lib, _ := newTestLibrary(t)
	pool := lib.Allocator().NewStringPool()
	defer pool.Release()

	res := await(t, lib, func(cb AsyncReadyCallback) {
		lib.PasswordStore(testSchema(), "work", table(pool), pool.Strdup("L"), pool.Strdup("p"), cb, 0)
	})
	if _, err := lib.PasswordStoreFinish(res); errorCode(err) != ErrorNoSuchObject {
		t.Errorf("expected no-such-object, got %v", err)
	}
}

func TestDanglingAttributesDetected(t *testing.T) {
	lib, _ := newTestLibrary(t)
	pool := lib.Allocator().NewStringPool()
	attrs := table(pool, "number", "8")
	label := pool.Strdup("L")
	password := pool.Strdup("p")
	// Releasing before the request runs is the caller bug being detected.
	pool.Release()

	res := await(t, lib, func(cb AsyncReadyCallback) {
		lib.PasswordStore(testSchema(), "", attrs, label, password, cb, 0)
	})
	if _, err := lib.PasswordStoreFinish(res); errorCode(err) != ErrorInvalidArgs {
		t.Errorf("expected invalid-args for dangling buffers, got %v", err)
	}
}

func TestResultFinishedOnce(t *testing.T) {
	lib, _ := newTestLibrary(t)
	pool := lib.Allocator().NewStringPool()
	defer pool.Release()

	res := await(t, lib, func(cb AsyncReadyCallback) {
		lib.PasswordClear(testSchema(), table(pool), cb, 0)
	})
	if _, err := lib.PasswordClearFinish(res); err != nil {
		t.Fatalf("first finish: %v", err)
	}
	if _, err := lib.PasswordClearFinish(res); errorCode(err) != ErrorProtocol {
		t.Errorf("expected protocol error on second finish, got %v", err)
	}
}

func TestResultFinishedWithWrongCall(t *testing.T) {
	lib, _ := newTestLibrary(t)
	pool := lib.Allocator().NewStringPool()
	defer pool.Release()

	res := await(t, lib, func(cb AsyncReadyCallback) {
		lib.PasswordClear(testSchema(), table(pool), cb, 0)
	})
	if _, err := lib.PasswordStoreFinish(res); errorCode(err) != ErrorProtocol {
		t.Errorf("expected protocol error, got %v", err)
	}
}

func TestUserDataPassedThrough(t *testing.T) {
	lib, _ := newTestLibrary(t)

	var got uintptr
	lib.ServiceGet(ServiceNone, func(source any, res *AsyncResult, userData uintptr) {
		got = userData
		lib.ServiceGetFinish(res)
		lib.Loop().Quit()
	}, 42)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := lib.Loop().Run(ctx); err != nil {
		t.Fatalf("loop: %v", err)
	}
	if got != 42 {
		t.Errorf("expected user data 42, got %d", got)
	}
}

func TestServiceCollections(t *testing.T) {
	lib, store := newTestLibrary(t)
	ctx := context.Background()
	if _, err := store.CreateCollection(ctx, "Login", vault.DefaultAlias); err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}

	res := await(t, lib, func(cb AsyncReadyCallback) { lib.ServiceGet(ServiceNone, cb, 0) })
	svc, err := lib.ServiceGetFinish(res)
	if err != nil {
		t.Fatalf("ServiceGetFinish: %v", err)
	}
	if svc.GetCollections() != nil {
		t.Error("expected no collections before loading")
	}

	res = await(t, lib, func(cb AsyncReadyCallback) { lib.ServiceLoadCollections(svc, cb, 0) })
	if _, err := lib.ServiceLoadCollectionsFinish(svc, res); err != nil {
		t.Fatalf("ServiceLoadCollectionsFinish: %v", err)
	}
	list := svc.GetCollections()
	if list.Length() != 1 {
		t.Fatalf("expected 1 collection, got %d", list.Length())
	}
	c := list.Data.(*Collection)
	lib.Allocator().ListFree(list)
	if c.GetLabel() != "Login" || c.GetAlias() != vault.DefaultAlias {
		t.Errorf("unexpected collection %q/%q", c.GetLabel(), c.GetAlias())
	}

	res = await(t, lib, func(cb AsyncReadyCallback) { lib.ServiceLock(svc, []*Collection{c}, cb, 0) })
	if n, err := lib.ServiceLockFinish(svc, res); err != nil || n != 1 {
		t.Fatalf("ServiceLockFinish: %d %v", n, err)
	}
	got, _ := store.ResolveAlias(ctx, vault.DefaultAlias)
	if !got.Locked {
		t.Error("expected collection locked")
	}

	res = await(t, lib, func(cb AsyncReadyCallback) { lib.ServiceUnlock(svc, []*Collection{c}, cb, 0) })
	if n, err := lib.ServiceUnlockFinish(svc, res); err != nil || n != 1 {
		t.Fatalf("ServiceUnlockFinish: %d %v", n, err)
	}
	if lib.Allocator().Live() != 0 {
		t.Errorf("expected no live buffers, got %d", lib.Allocator().Live())
	}
}

func TestItemCreateReplace(t *testing.T) {
	lib, _ := newTestLibrary(t)
	schema := testSchema()
	pool := lib.Allocator().NewStringPool()
	defer pool.Release()

	res := await(t, lib, func(cb AsyncReadyCallback) {
		lib.CollectionCreate("Work", "work", CollectionCreateNone, cb, 0)
	})
	c, err := lib.CollectionCreateFinish(res)
	if err != nil {
		t.Fatalf("CollectionCreateFinish: %v", err)
	}

	for _, secret := range []string{"first", "second"} {
		value := NewValue([]byte(secret), ContentTypeText)
		res = await(t, lib, func(cb AsyncReadyCallback) {
			lib.ItemCreate(c, schema, table(pool, "number", "3"), pool.Strdup("item"), value, ItemCreateReplace, cb, 0)
		})
		if _, err := lib.ItemCreateFinish(res); err != nil {
			t.Fatalf("ItemCreateFinish: %v", err)
		}
	}

	res = await(t, lib, func(cb AsyncReadyCallback) {
		lib.CollectionSearch(c, schema, table(pool, "number", "3"), SearchAll|SearchLoadSecrets, cb, 0)
	})
	list, err := lib.CollectionSearchFinish(c, res)
	if err != nil {
		t.Fatalf("CollectionSearchFinish: %v", err)
	}
	defer lib.Allocator().ListFree(list)
	if list.Length() != 1 {
		t.Fatalf("expected exactly 1 item after replace, got %d", list.Length())
	}
	item := list.Data.(*Item)
	if text, _ := item.GetSecret().Text(); text != "second" {
		t.Errorf("expected replaced secret, got %q", text)
	}

	attrs := item.GetAttributes()
	m, err := attrs.toMap()
	attrs.Unref()
	if err != nil || m["number"] != "3" || len(m) != 1 {
		t.Errorf("unexpected attributes %v %v", m, err)
	}
}

func TestCollectionSearchNoMatches(t *testing.T) {
	lib, _ := newTestLibrary(t)
	pool := lib.Allocator().NewStringPool()
	defer pool.Release()

	res := await(t, lib, func(cb AsyncReadyCallback) {
		lib.CollectionCreate("Work", "work", CollectionCreateNone, cb, 0)
	})
	c, err := lib.CollectionCreateFinish(res)
	if err != nil {
		t.Fatalf("CollectionCreateFinish: %v", err)
	}

	res = await(t, lib, func(cb AsyncReadyCallback) {
		lib.CollectionSearch(c, testSchema(), table(pool, "number", "99"), SearchAll, cb, 0)
	})
	list, err := lib.CollectionSearchFinish(c, res)
	if err != nil {
		t.Fatalf("CollectionSearchFinish: %v", err)
	}
	if list != nil {
		t.Errorf("expected empty list, got %d nodes", list.Length())
	}
}

func TestSearchUnlocksAndLoads(t *testing.T) {
	lib, store := newTestLibrary(t)
	ctx := context.Background()
	c, _ := store.CreateCollection(ctx, "Work", "work")
	store.CreateItem(ctx, vault.ItemRecord{
		Collection:  c.ID,
		Label:       "db",
		Schema:      "org.example.Test",
		Attributes:  map[string]string{"number": "1"},
		Secret:      []byte("s3cret"),
		ContentType: ContentTypeText,
	}, false)
	store.SetLocked(ctx, c.ID, true)

	pool := lib.Allocator().NewStringPool()
	defer pool.Release()

	res := await(t, lib, func(cb AsyncReadyCallback) {
		lib.PasswordSearch(testSchema(), table(pool), SearchAll|SearchLoadSecrets, cb, 0)
	})
	list, err := lib.PasswordSearchFinish(res)
	if err != nil {
		t.Fatalf("PasswordSearchFinish: %v", err)
	}
	item := list.Data.(*Item)
	lib.Allocator().ListFree(list)
	if !item.GetLocked() || item.GetSecret() != nil {
		t.Error("expected locked item without secret when not unlocking")
	}

	res = await(t, lib, func(cb AsyncReadyCallback) {
		lib.PasswordSearch(testSchema(), table(pool), SearchAll|SearchUnlock|SearchLoadSecrets, cb, 0)
	})
	list, err = lib.PasswordSearchFinish(res)
	if err != nil {
		t.Fatalf("PasswordSearchFinish: %v", err)
	}
	item = list.Data.(*Item)
	lib.Allocator().ListFree(list)
	if item.GetLocked() {
		t.Error("expected item unlocked")
	}
	if text, _ := item.GetSecret().Text(); text != "s3cret" {
		t.Errorf("expected s3cret, got %q", text)
	}
}

func TestSchemaDontMatchName(t *testing.T) {
	lib, store := newTestLibrary(t)
	ctx := context.Background()
	c, _ := store.CreateCollection(ctx, "Login", vault.DefaultAlias)
	store.CreateItem(ctx, vault.ItemRecord{
		Collection: c.ID,
		Label:      "other",
		Schema:     "org.example.Other",
		Attributes: map[string]string{"number": "5"},
	}, false)

	pool := lib.Allocator().NewStringPool()
	defer pool.Release()

	for _, tt := range []struct {
		flags SchemaFlags
		want  int
	}{
		{SchemaNone, 0},
		{SchemaDontMatchName, 1},
	} {
		schema := SchemaNew("org.example.Test", tt.flags, map[string]SchemaAttributeType{"number": SchemaAttributeInteger})
		res := await(t, lib, func(cb AsyncReadyCallback) {
			lib.PasswordSearch(schema, table(pool, "number", "5"), SearchAll, cb, 0)
		})
		list, err := lib.PasswordSearchFinish(res)
		if err != nil {
			t.Fatalf("PasswordSearchFinish: %v", err)
		}
		if list.Length() != tt.want {
			t.Errorf("flags %v: expected %d matches, got %d", tt.flags, tt.want, list.Length())
		}
		lib.Allocator().ListFree(list)
	}
}

func TestCollectionDeleteAndAlias(t *testing.T) {
	lib, _ := newTestLibrary(t)

	res := await(t, lib, func(cb AsyncReadyCallback) {
		lib.CollectionCreate("Work", "work", CollectionCreateNone, cb, 0)
	})
	c, err := lib.CollectionCreateFinish(res)
	if err != nil {
		t.Fatalf("CollectionCreateFinish: %v", err)
	}

	res = await(t, lib, func(cb AsyncReadyCallback) { lib.CollectionForAlias("work", cb, 0) })
	found, err := lib.CollectionForAliasFinish(res)
	if err != nil {
		t.Fatalf("CollectionForAliasFinish: %v", err)
	}
	if found.GetID() != c.GetID() {
		t.Errorf("expected %s, got %s", c.GetID(), found.GetID())
	}

	res = await(t, lib, func(cb AsyncReadyCallback) { lib.CollectionDelete(c, cb, 0) })
	if ok, err := lib.CollectionDeleteFinish(c, res); err != nil || !ok {
		t.Fatalf("CollectionDeleteFinish: %v %v", ok, err)
	}

	res = await(t, lib, func(cb AsyncReadyCallback) { lib.CollectionForAlias("work", cb, 0) })
	if _, err := lib.CollectionForAliasFinish(res); errorCode(err) != ErrorNoSuchObject {
		t.Errorf("expected no-such-object, got %v", err)
	}
}

func TestClosedLibraryFailsCalls(t *testing.T) {
	lib, _ := newTestLibrary(t)
	lib.Close()

	res := await(t, lib, func(cb AsyncReadyCallback) { lib.ServiceGet(ServiceNone, cb, 0) })
	if _, err := lib.ServiceGetFinish(res); errorCode(err) != ErrorUnavailable {
		t.Errorf("expected unavailable, got %v", err)
	}
}

func TestCloseRacingSubmitsCompletesEveryCall(t *testing.T) {
	store := vault.NewMemoryStore()
	loop := NewLoop()
	lib := New(loop, store)

	const calls = 200
	var completed atomic.Int64
	cb := func(source any, res *AsyncResult, userData uintptr) {
		if n := completed.Add(1); n == calls {
			loop.Quit()
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < calls/4; j++ {
				lib.ServiceGet(ServiceNone, cb, 0)
			}
		}()
	}
	lib.Close()
	wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := loop.Run(ctx); err != nil {
		t.Fatalf("loop: %v (completed %d of %d)", err, completed.Load(), calls)
	}
	if got := completed.Load(); got != calls {
		t.Errorf("expected %d completions, got %d", calls, got)
	}
}
