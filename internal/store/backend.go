package store

import "fmt"

// Backend identifies a supported vector store implementation. The set is
// closed: adding a backend means extending this enum and the factory in
// cmd/, not scanning for implementations at runtime.
type Backend int

const (
	BackendMemory Backend = iota
	BackendQdrant
)

var backendNames = map[Backend]string{
	BackendMemory: "memory",
	BackendQdrant: "qdrant",
}

func (b Backend) String() string {
	if name, ok := backendNames[b]; ok {
		return name
	}
	return fmt.Sprintf("backend(%d)", int(b))
}

// ParseBackend maps a configured backend name to its enum value.
func ParseBackend(name string) (Backend, error) {
	for b, n := range backendNames {
		if n == name {
			return b, nil
		}
	}
	return 0, fmt.Errorf("unknown vector store backend %q", name)
}
