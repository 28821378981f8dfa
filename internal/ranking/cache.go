package ranking

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/vanguardia360/performance-engine/internal/cache"
)

// rankingCache caches serialized ranking responses and team averages keyed
// by reference date, so repeated reads between snapshot batches skip the
// latest-per-owner query.
type rankingCache struct {
	store *cache.Cache
}

func newRankingCache(ttl time.Duration) *rankingCache {
	return &rankingCache{store: cache.NewCache(ttl)}
}

func rankingKey(asOf time.Time, limit int) string {
	return fmt.Sprintf("ranking:%s:%d", asOf.Format("2006-01-02"), limit)
}

func averagesKey(asOf time.Time) string {
	return fmt.Sprintf("averages:%s", asOf.Format("2006-01-02"))
}

func (c *rankingCache) getRanking(asOf time.Time, limit int) (*RankingResponse, bool) {
	data, found := c.store.Get(rankingKey(asOf, limit))
	if !found {
		return nil, false
	}
	var response RankingResponse
	if err := json.Unmarshal(data, &response); err != nil {
		slog.Warn("Failed to decode cached ranking", "error", err)
		c.store.Delete(rankingKey(asOf, limit))
		return nil, false
	}
	return &response, true
}

func (c *rankingCache) setRanking(asOf time.Time, limit int, response *RankingResponse) {
	data, err := json.Marshal(response)
	if err != nil {
		slog.Warn("Failed to encode ranking for cache", "error", err)
		return
	}
	c.store.Set(rankingKey(asOf, limit), data)
}

func (c *rankingCache) getAverages(asOf time.Time) (*TeamAverages, bool) {
	data, found := c.store.Get(averagesKey(asOf))
	if !found {
		return nil, false
	}
	var averages TeamAverages
	if err := json.Unmarshal(data, &averages); err != nil {
		slog.Warn("Failed to decode cached averages", "error", err)
		c.store.Delete(averagesKey(asOf))
		return nil, false
	}
	return &averages, true
}

func (c *rankingCache) setAverages(asOf time.Time, averages *TeamAverages) {
	data, err := json.Marshal(averages)
	if err != nil {
		slog.Warn("Failed to encode averages for cache", "error", err)
		return
	}
	c.store.Set(averagesKey(asOf), data)
}

func (c *rankingCache) invalidateAll() {
	c.store.Clear()
}

func (c *rankingCache) stats() map[string]interface{} {
	return c.store.Stats()
}
