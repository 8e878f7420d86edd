package dedupe_test

import (
	"testing"
	"time"

	"github.com/TheGoodCatalyst/news-curator/internal/dedupe"
	"github.com/stretchr/testify/require"
)

func TestCacheSeenDuplicate(t *testing.T) {
	cache := dedupe.NewCache(10, time.Minute)
	require.False(t, cache.Seen("article-1"))
	cache.Mark("article-1")
	require.True(t, cache.Seen("article-1"))
}

func TestCacheTTLExpiry(t *testing.T) {
	cache := dedupe.NewCache(10, 20*time.Millisecond)
	cache.Mark("article-2")
	time.Sleep(25 * time.Millisecond)
	require.False(t, cache.Seen("article-2"))
}

func TestCacheCapacityEvictsOldest(t *testing.T) {
	cache := dedupe.NewCache(1, time.Minute)
	cache.Mark("first")
	cache.Mark("second")
	require.False(t, cache.Seen("first"))
	require.True(t, cache.Seen("second"))
}
