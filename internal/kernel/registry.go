package kernel

import "sync"

// Registration is a kernel as stored in the registry: a named, pure
// function plus the nargs/kind metadata needed to bind and invoke it
// without inspecting the function value at runtime.
type Registration struct {
	Name  string
	Kind  Kind
	Nargs int
	Fn    Func
}

var (
	mu       sync.RWMutex
	registry = make(map[string]Registration)
)

// Register adds a kernel to the process-wide registry, keyed by name. A
// second registration under the same name replaces the first.
func Register(reg Registration) {
	mu.Lock()
	defer mu.Unlock()
	registry[reg.Name] = reg
}

// Get returns a registered kernel by name.
func Get(name string) (Registration, bool) {
	mu.RLock()
	defer mu.RUnlock()
	reg, ok := registry[name]
	return reg, ok
}
