package reconcile

import "go.uber.org/atomic"

// VersionGuard contador monotónico por orden. Cada refresco captura la versión al emitirse
// y su resultado solo se aplica si sigue siendo la vigente al llegar.
type VersionGuard struct {
	current atomic.Uint64
}

// Next incrementa y devuelve la nueva versión. Se llama justo antes de emitir un refresco.
func (g *VersionGuard) Next() uint64 {
	return g.current.Inc()
}

// Current versión vigente.
func (g *VersionGuard) Current() uint64 {
	return g.current.Load()
}

// IsCurrent indica si v sigue vigente.
func (g *VersionGuard) IsCurrent(v uint64) bool {
	return g.current.Load() == v
}

// Invalidate deja obsoleto cualquier refresco en vuelo (cancelación de la orden).
func (g *VersionGuard) Invalidate() {
	g.current.Inc()
}
