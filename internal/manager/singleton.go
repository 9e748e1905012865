package manager

import (
	"context"
	"sync"
)

// The process-wide manager instance. The gateway embeds into host
// applications that expect one shared manager; explicit construction with
// New remains available for everything else.
var (
	singletonMu sync.Mutex
	singleton   *APIManager
)

// GetAPIManager returns the shared instance, constructing it from opts on
// first use. Later calls return the existing instance and ignore opts.
func GetAPIManager(opts Options) (*APIManager, error) {
	singletonMu.Lock()
	defer singletonMu.Unlock()
	if singleton != nil {
		return singleton, nil
	}
	m, err := New(opts)
	if err != nil {
		return nil, err
	}
	singleton = m
	return m, nil
}

// InitAPIManager returns the shared instance with initialization completed.
// Construction or initialization failure is returned to the caller; this is
// the one bootstrap path that treats a failed Initialize as fatal.
func InitAPIManager(ctx context.Context, opts Options) (*APIManager, error) {
	m, err := GetAPIManager(opts)
	if err != nil {
		return nil, err
	}
	if m.State() != StateInitialized {
		if err := m.Initialize(ctx); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// MustAPIManager returns the shared instance or panics. For call sites that
// run strictly after startup wiring.
func MustAPIManager() *APIManager {
	singletonMu.Lock()
	defer singletonMu.Unlock()
	if singleton == nil {
		panic("api manager accessed before InitAPIManager")
	}
	return singleton
}

// resetSingleton clears the shared instance. Tests only.
func resetSingleton() {
	singletonMu.Lock()
	singleton = nil
	singletonMu.Unlock()
}
