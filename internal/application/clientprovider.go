package application

import (
	"sync"
)

// ClientProvider enables runtime hot-swap of the TimetableClient. It holds a
// mutex-protected reference to the current client and the identifier it was
// built for, so a new login takes effect without restarting the process.
type ClientProvider struct {
	mu         sync.RWMutex
	client     *TimetableClient
	identifier string
}

// NewClientProvider creates an empty provider. Until Replace is called the
// session is unauthenticated.
func NewClientProvider() *ClientProvider {
	return &ClientProvider{}
}

// Get returns the current client, or nil when nobody is logged in.
func (p *ClientProvider) Get() *TimetableClient {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.client
}

// Identifier returns the login identifier associated with the client.
func (p *ClientProvider) Identifier() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.identifier
}

// Replace swaps the current client and identifier. The next caller of Get
// receives the new client.
func (p *ClientProvider) Replace(client *TimetableClient, identifier string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.client = client
	p.identifier = identifier
}

// Clear drops the current client.
func (p *ClientProvider) Clear() {
	p.Replace(nil, "")
}

// HasClient returns true if a client is currently held.
func (p *ClientProvider) HasClient() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.client != nil
}
