package store

import "testing"

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(":memory:")
	if err != nil {
		t.Fatalf("newTestCache: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestKeyIsDeterministicAndSeparated(t *testing.T) {
	k1 := Key("model-a", "system", "user")
	k2 := Key("model-a", "system", "user")
	if k1 != k2 {
		t.Fatal("identical inputs produced different keys")
	}
	if Key("model-b", "system", "user") == k1 {
		t.Fatal("model change did not change key")
	}
	// The separator must prevent boundary ambiguity.
	if Key("m", "ab", "c") == Key("m", "a", "bc") {
		t.Fatal("field boundaries not separated in key derivation")
	}
}

func TestCacheGetPut(t *testing.T) {
	c := newTestCache(t)

	got, err := c.Get("missing")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "" {
		t.Fatalf("expected empty response for missing key, got %q", got)
	}

	key := Key("gpt-4o", "sys", "prompt")
	if err := c.Put(key, "gpt-4o", `{"quality":4}`); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err = c.Get(key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != `{"quality":4}` {
		t.Fatalf("Get = %q", got)
	}

	// Upsert replaces.
	if err := c.Put(key, "gpt-4o", `{"quality":5}`); err != nil {
		t.Fatalf("Put (update): %v", err)
	}
	got, _ = c.Get(key)
	if got != `{"quality":5}` {
		t.Fatalf("expected updated response, got %q", got)
	}

	n, err := c.CacheSize()
	if err != nil {
		t.Fatalf("CacheSize: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 cached response, got %d", n)
	}
}

func TestRunLedger(t *testing.T) {
	c := newTestCache(t)

	if err := c.StartRun("run-1", "analyze", "cs101"); err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if err := c.FinishRun("run-1"); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	var finished int
	err := c.db.QueryRow(`SELECT COUNT(*) FROM runs WHERE id = ? AND finished_at IS NOT NULL`, "run-1").Scan(&finished)
	if err != nil {
		t.Fatalf("query runs: %v", err)
	}
	if finished != 1 {
		t.Fatal("run not stamped finished")
	}
}
