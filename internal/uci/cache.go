package uci

import (
	"strings"
	"sync"
)

// CacheKey identifies one search of one position.
type CacheKey struct {
	Variant string
	FEN     string
	Moves   string
	MultiPV int
}

// NewCacheKey creates a CacheKey. Moves are joined, so keys can be compared.
func NewCacheKey(variant, fen string, moves []string, multiPV int) CacheKey {
	return CacheKey{
		Variant: variant,
		FEN:     fen,
		Moves:   strings.Join(moves, " "),
		MultiPV: multiPV,
	}
}

// Cache implements a simple cache for completed analyses.
type Cache struct {
	// data stores the underlying map
	data map[CacheKey]*AnalysisResult

	// dataMutex protects data
	dataMutex sync.Mutex
}

// NewCache creates a new cache.
func NewCache() *Cache {
	return &Cache{
		data: make(map[CacheKey]*AnalysisResult),
	}
}

// Upsert will add or update an entry in the cache if it adds deeper information.
func (c *Cache) Upsert(key CacheKey, result *AnalysisResult) {
	final, ok := result.Final()
	if !ok {
		return
	}

	c.dataMutex.Lock()
	defer c.dataMutex.Unlock()

	found, ok := c.data[key]
	if ok {
		if foundFinal, _ := found.Final(); foundFinal.Depth >= final.Depth {
			return
		}
	}

	c.data[key] = result
}

// Lookup returns a cached result that was searched at least as deep as depth.
func (c *Cache) Lookup(key CacheKey, depth int) (*AnalysisResult, bool) {
	c.dataMutex.Lock()
	defer c.dataMutex.Unlock()

	result, ok := c.data[key]
	if !ok {
		return nil, false
	}

	if final, _ := result.Final(); final.Depth < depth {
		return nil, false
	}

	return result, true
}

// Len returns the number of cached analyses.
func (c *Cache) Len() int {
	c.dataMutex.Lock()
	defer c.dataMutex.Unlock()

	return len(c.data)
}
