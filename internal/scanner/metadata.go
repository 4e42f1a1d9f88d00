package scanner

import (
	"bytes"
	"sync"

	"positionscope/internal/model"
)

// tokenMetaCache caches ERC-20 metadata by address. Token decimals and
// symbols are immutable, so entries survive across wallet scans.
type tokenMetaCache struct {
	mu   sync.RWMutex
	data map[string]model.TokenMeta
}

func newTokenMetaCache() *tokenMetaCache {
	return &tokenMetaCache{data: make(map[string]model.TokenMeta)}
}

func (c *tokenMetaCache) Get(address string) (model.TokenMeta, bool) {
	c.mu.RLock()
	meta, ok := c.data[address]
	c.mu.RUnlock()
	return meta, ok
}

func (c *tokenMetaCache) Set(address string, meta model.TokenMeta) {
	c.mu.Lock()
	c.data[address] = meta
	c.mu.Unlock()
}

func bytes32ToString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case [32]byte:
		return string(bytes.TrimRight(v[:], "\x00")), true
	case []byte:
		return string(bytes.TrimRight(v, "\x00")), true
	default:
		return "", false
	}
}
