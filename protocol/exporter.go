package protocol

import (
	"fmt"
	"sync"
)

// exporter pairs an Invoker with the service-key it was exported under, so
// Unexport can remove exactly the entry Export added even if two exports
// briefly race on the same key.
type exporter struct {
	key     string
	invoker Invoker
}

// exporterRegistry is the service-key -> exporter map every dispatcher
// consults, per §3/§4.9. Each Protocol owns one, shared by all of that
// Protocol's dispatchers (one per listening port), so every port's
// dispatcher sees every service exported through the same Protocol.
type exporterRegistry struct {
	mu        sync.RWMutex
	exporters map[string]*exporter
}

func newExporterRegistry() *exporterRegistry {
	return &exporterRegistry{exporters: make(map[string]*exporter)}
}

// add registers invoker under key, failing if the key is already taken.
// The exporter map is 1:1, service-key to exporter — a duplicate export is
// a programming error that must surface to the caller immediately, per
// §3/§7, not silently replace the existing entry.
func (r *exporterRegistry) add(key string, invoker Invoker) (*exporter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.exporters[key]; ok {
		return nil, fmt.Errorf("protocol: service-key %q already exported", key)
	}
	exp := &exporter{key: key, invoker: invoker}
	r.exporters[key] = exp
	return exp, nil
}

func (r *exporterRegistry) remove(exp *exporter) {
	r.mu.Lock()
	if cur, ok := r.exporters[exp.key]; ok && cur == exp {
		delete(r.exporters, exp.key)
	}
	r.mu.Unlock()
}

func (r *exporterRegistry) lookup(key string) *exporter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.exporters[key]
}

// Exporter is the handle Export returns: Unexport removes this invoker from
// the registry its dispatcher consults, after which any further request for
// its service-key comes back StatusServiceNotFound.
type Exporter struct {
	registry *exporterRegistry
	entry    *exporter
}

func (e *Exporter) Unexport() {
	e.registry.remove(e.entry)
}

func (p *Protocol) lookupExporter(key string) *exporter {
	return p.exporters.lookup(key)
}
