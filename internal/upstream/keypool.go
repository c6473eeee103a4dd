package upstream

import (
	"sync"

	"github.com/rs/zerolog"
)

// KeyPool rotates API keys for providers with per-key usage quotas.
// A successful call rotates the used key to the tail so load spreads
// evenly; a usage-limit rejection removes the key until the pool is
// re-armed. An empty pool yields ClassNoKeyAvailable.
type KeyPool struct {
	mu   sync.Mutex
	keys []string
	log  zerolog.Logger
}

// NewKeyPool builds a pool over the configured keys.
func NewKeyPool(provider string, keys []string, log zerolog.Logger) *KeyPool {
	return &KeyPool{
		keys: append([]string(nil), keys...),
		log:  log.With().Str("component", "keypool").Str("provider", provider).Logger(),
	}
}

// Acquire returns the current front key without removing it.
func (p *KeyPool) Acquire() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.keys) == 0 {
		return "", NewError(ClassNoKeyAvailable, "keypool", "acquire", nil)
	}
	return p.keys[0], nil
}

// MarkSuccess rotates key to the tail of the pool.
func (p *KeyPool) MarkSuccess(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, k := range p.keys {
		if k == key {
			p.keys = append(append(p.keys[:i], p.keys[i+1:]...), key)
			return
		}
	}
}

// MarkExhausted removes key from rotation.
func (p *KeyPool) MarkExhausted(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, k := range p.keys {
		if k == key {
			p.keys = append(p.keys[:i], p.keys[i+1:]...)
			p.log.Warn().Int("remaining", len(p.keys)).Msg("API key exhausted, removed from pool")
			return
		}
	}
}

// Reset re-arms the pool, typically at the vendor's daily quota rollover.
func (p *KeyPool) Reset(keys []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append([]string(nil), keys...)
	p.log.Info().Int("keys", len(p.keys)).Msg("key pool re-armed")
}

// Size returns the number of usable keys.
func (p *KeyPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.keys)
}
