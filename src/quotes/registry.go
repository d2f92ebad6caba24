package quotes

import (
	"fmt"
	"sort"
	"sync"

	"rates-ingestor/src/interfaces"
)

// The global registry map. Key is the source name (e.g., "binance"), value is the constructor function.
var (
	registry = make(map[string]interfaces.IQuoteSourceConstructor)
	mu       sync.RWMutex
)

// Register is called by each quote source's init() function to add itself to the map.
func Register(name string, constructor interfaces.IQuoteSourceConstructor) error {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := registry[name]; exists {
		return fmt.Errorf("quote source constructor already registered for name: %s", name)
	}
	registry[name] = constructor
	return nil
}

// GetConstructor is used by the service factory to retrieve the constructor.
func GetConstructor(name string) (interfaces.IQuoteSourceConstructor, error) {
	mu.RLock()
	defer mu.RUnlock()
	constructor, exists := registry[name]
	if !exists {
		return nil, fmt.Errorf("unknown quote source: %s", name)
	}
	return constructor, nil
}

// Names lists the registered sources, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
