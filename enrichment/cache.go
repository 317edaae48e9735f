package enrichment

import (
	"sync"
)

// IdentityCache кэш результатов реестра на время одной сессии.
// Ключ - канонический CNPJ. Записи не устаревают и удаляются только через Clear.
type IdentityCache struct {
	data  map[string]*CompanyIdentity
	mutex sync.RWMutex
	stats CacheStats
}

// CacheStats статистика кэша
type CacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Size   int   `json:"size"`
}

// NewIdentityCache создает пустой кэш
func NewIdentityCache() *IdentityCache {
	return &IdentityCache{
		data: make(map[string]*CompanyIdentity),
	}
}

// Get возвращает данные из кэша
func (c *IdentityCache) Get(cnpj string) (*CompanyIdentity, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	identity, exists := c.data[cnpj]
	if !exists {
		c.stats.Misses++
		return nil, false
	}

	c.stats.Hits++
	return identity, true
}

// Put сохраняет данные в кэш. Повторная запись того же CNPJ игнорируется.
func (c *IdentityCache) Put(cnpj string, identity *CompanyIdentity) {
	if identity == nil {
		return
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if _, exists := c.data[cnpj]; exists {
		return
	}
	c.data[cnpj] = identity
}

// Clear очищает весь кэш (сброс оператором)
func (c *IdentityCache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.data = make(map[string]*CompanyIdentity)
	c.stats = CacheStats{}
}

// Len возвращает количество записей
func (c *IdentityCache) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.data)
}

// GetStats возвращает статистику кэша
func (c *IdentityCache) GetStats() CacheStats {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	stats := c.stats
	stats.Size = len(c.data)
	return stats
}
