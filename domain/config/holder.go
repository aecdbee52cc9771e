package config

import "sync/atomic"

// Holder publishes the active DomainConfig to concurrent readers and lets
// a config watcher swap it at runtime.
type Holder struct {
	current atomic.Pointer[DomainConfig]
}

// NewHolder starts with cfg, or the defaults when cfg is nil.
func NewHolder(cfg *DomainConfig) *Holder {
	if cfg == nil {
		cfg = DefaultDomainConfig()
	}
	h := &Holder{}
	h.current.Store(cfg.Clone())
	return h
}

// Current returns a snapshot. Callers must not mutate it.
func (h *Holder) Current() *DomainConfig {
	return h.current.Load()
}

// Store replaces the active config.
func (h *Holder) Store(cfg *DomainConfig) {
	if cfg == nil {
		return
	}
	h.current.Store(cfg.Clone())
}
