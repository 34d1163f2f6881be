package hostaccess

import (
	"sync"

	"github.com/reglet-dev/hostbridge/domain/entities"
	"github.com/reglet-dev/hostbridge/domain/ports"
)

// resolutionCache maps (owner, name, signature, kind) to a resolved member ID.
type resolutionCache struct {
	ids map[entities.MemberDescriptor]ports.MemberID
	mu  sync.RWMutex
}

func newResolutionCache() *resolutionCache {
	return &resolutionCache{ids: make(map[entities.MemberDescriptor]ports.MemberID)}
}

func (c *resolutionCache) get(desc entities.MemberDescriptor) (ports.MemberID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.ids[desc]
	return id, ok
}

func (c *resolutionCache) put(desc entities.MemberDescriptor, id ports.MemberID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids[desc] = id
}

func (c *resolutionCache) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.ids)
}

func (c *resolutionCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.ids)
}
