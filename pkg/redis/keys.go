package redis

import "fmt"

// AnalogCacheKey builds the cache key for one season's one model day's
// ranked candidate list: runCacheKey:analog:season:dayIndex.
func AnalogCacheKey(runCacheKey, season string, dayIndex int) string {
	return fmt.Sprintf("%s:analog:%s:%d", runCacheKey, season, dayIndex)
}
