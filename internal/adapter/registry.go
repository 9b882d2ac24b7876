package adapter

import (
	"context"

	"github.com/accessgrid/fleet-core/internal/device"
)

// Registry holds one adapter per kind and resolves devices to adapters.
//
// Resolution is deterministic: the same device always maps to the same
// adapter, and SelectAdapter never returns nil because Classify is total
// and every kind is registered.
type Registry struct {
	adapters map[Kind]Adapter
}

// NewRegistry creates a registry with the standard vendor adapters.
func NewRegistry() *Registry {
	r := &Registry{adapters: make(map[Kind]Adapter, len(AllKinds()))}
	r.Register(NewHikvision())
	r.Register(NewZKTeco())
	r.Register(NewDahua())
	r.Register(NewStub())
	return r
}

// Register adds or replaces the adapter for its kind.
// Used by tests to install fakes.
func (r *Registry) Register(a Adapter) {
	r.adapters[a.Kind()] = a
}

// SelectAdapter resolves a device to its vendor adapter. Never nil.
func (r *Registry) SelectAdapter(dev *device.Device) Adapter {
	if a, ok := r.adapters[ClassifyDevice(dev)]; ok {
		return a
	}
	return r.adapters[KindStub]
}

// Get returns the adapter for a kind, falling back to the stub.
func (r *Registry) Get(kind Kind) Adapter {
	if a, ok := r.adapters[kind]; ok {
		return a
	}
	return r.adapters[KindStub]
}

// DiscoverAll runs discovery on every registered adapter and concatenates
// the results. Adapters that don't support discovery are skipped.
func (r *Registry) DiscoverAll(ctx context.Context) []DeviceInfo {
	var found []DeviceInfo
	for _, kind := range AllKinds() {
		a, ok := r.adapters[kind]
		if !ok {
			continue
		}
		infos, err := a.DiscoverDevices(ctx)
		if err != nil {
			continue
		}
		found = append(found, infos...)
	}
	return found
}
