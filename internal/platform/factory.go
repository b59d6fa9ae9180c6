package platform

import (
	"fmt"
	"sync"

	"github.com/reviewguard/engine/internal/domain"
)

// Constructor builds the Client for one platform.
type Constructor func() Client

// ClientFactory resolves platform clients by repository platform, caching
// one client per platform. Clients themselves derive per-repository state
// (base URL, credentials) from the repository record on each call.
type ClientFactory struct {
	mu           sync.Mutex
	constructors map[domain.Platform]Constructor
	clients      map[domain.Platform]Client
}

// NewClientFactory builds a factory from per-platform constructors.
func NewClientFactory(constructors map[domain.Platform]Constructor) *ClientFactory {
	return &ClientFactory{
		constructors: constructors,
		clients:      make(map[domain.Platform]Client),
	}
}

// ClientFor returns the client for the repository's platform.
func (f *ClientFactory) ClientFor(repo domain.Repository) (Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if client, ok := f.clients[repo.Platform]; ok {
		return client, nil
	}
	ctor, ok := f.constructors[repo.Platform]
	if !ok {
		return nil, fmt.Errorf("unsupported platform %q", repo.Platform)
	}
	client := ctor()
	f.clients[repo.Platform] = client
	return client, nil
}
