package querycache

import (
	"testing"
	"time"

	"github.com/fibertrak/fibertrak-backend/internal/logger"
	"github.com/fibertrak/fibertrak-backend/internal/realtime/wsclient"
)

func mustTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(log.Sync)
	return log
}

func TestCacheSetGetFresh(t *testing.T) {
	cache := New(mustTestLogger(t))

	cache.Set(wsclient.QueryKey{"projects"}, []string{"p1", "p2"})
	value, fresh, ok := cache.Get(wsclient.QueryKey{"projects"})
	if !ok || !fresh {
		t.Fatalf("freshly set entry: ok=%v fresh=%v", ok, fresh)
	}
	if got := value.([]string); len(got) != 2 {
		t.Fatalf("cached value: got=%v", got)
	}

	if _, _, ok := cache.Get(wsclient.QueryKey{"missing"}); ok {
		t.Fatalf("expected miss for unknown key")
	}
}

func TestInvalidateMatchesByPrefix(t *testing.T) {
	cache := New(mustTestLogger(t))

	cache.Set(wsclient.QueryKey{"work-entries"}, "list")
	cache.Set(wsclient.QueryKey{"work-entries", "detail", "we-1"}, "detail")
	cache.Set(wsclient.QueryKey{"projects"}, "other")

	cache.Invalidate(wsclient.QueryKey{"work-entries"})

	if _, fresh, _ := cache.Get(wsclient.QueryKey{"work-entries"}); fresh {
		t.Fatalf("list entry should be stale")
	}
	if _, fresh, _ := cache.Get(wsclient.QueryKey{"work-entries", "detail", "we-1"}); fresh {
		t.Fatalf("detail entry under the list prefix should be stale")
	}
	if _, fresh, _ := cache.Get(wsclient.QueryKey{"projects"}); !fresh {
		t.Fatalf("unrelated entry should stay fresh")
	}
}

func TestPrefixMatchingIsSegmentWise(t *testing.T) {
	cache := New(mustTestLogger(t))

	cache.Set(wsclient.QueryKey{"houses"}, "list")
	cache.Set(wsclient.QueryKey{"houses-archive"}, "other")

	cache.Invalidate(wsclient.QueryKey{"houses"})

	if _, fresh, _ := cache.Get(wsclient.QueryKey{"houses"}); fresh {
		t.Fatalf("houses should be stale")
	}
	// "houses-archive" shares a string prefix but not a segment prefix.
	if _, fresh, _ := cache.Get(wsclient.QueryKey{"houses-archive"}); !fresh {
		t.Fatalf("houses-archive must not be invalidated by the houses key")
	}
}

func TestUpsertRefreshesStaleEntry(t *testing.T) {
	cache := New(mustTestLogger(t))

	cache.Set(wsclient.QueryKey{"notifications", "detail", "n1"}, "old")
	cache.Invalidate(wsclient.QueryKey{"notifications"})
	if _, fresh, _ := cache.Get(wsclient.QueryKey{"notifications", "detail", "n1"}); fresh {
		t.Fatalf("entry should be stale after invalidation")
	}

	cache.Upsert(wsclient.QueryKey{"notifications", "detail", "n1"}, "new")
	value, fresh, ok := cache.Get(wsclient.QueryKey{"notifications", "detail", "n1"})
	if !ok || !fresh || value.(string) != "new" {
		t.Fatalf("upsert should refresh: ok=%v fresh=%v value=%v", ok, fresh, value)
	}
}

func TestInvalidateAllAndPrune(t *testing.T) {
	cache := New(mustTestLogger(t))

	cache.Set(wsclient.QueryKey{"projects"}, "a")
	cache.Set(wsclient.QueryKey{"crews"}, "b")
	cache.InvalidateAll()

	if _, fresh, _ := cache.Get(wsclient.QueryKey{"projects"}); fresh {
		t.Fatalf("projects should be stale after full invalidation")
	}
	if _, fresh, _ := cache.Get(wsclient.QueryKey{"crews"}); fresh {
		t.Fatalf("crews should be stale after full invalidation")
	}

	time.Sleep(time.Millisecond)
	if removed := cache.Prune(0); removed != 2 {
		t.Fatalf("prune of stale entries: want=2 got=%d", removed)
	}
	if _, _, ok := cache.Get(wsclient.QueryKey{"projects"}); ok {
		t.Fatalf("pruned entry still present")
	}

	cache.Set(wsclient.QueryKey{"projects"}, "fresh")
	if removed := cache.Prune(time.Hour); removed != 0 {
		t.Fatalf("fresh entries must survive pruning, removed=%d", removed)
	}
}
