// Package secrets resolves per-tenant credentials (embedding provider keys,
// vector store keys) from pluggable backends.
package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Well-known secret keys.
const (
	KeyEmbeddingAPIKey = "embedding_api_key"
	KeyStoreAPIKey     = "store_api_key"
)

// Provider is the interface for secret backends.
type Provider interface {
	// Get retrieves a secret by key.
	Get(ctx context.Context, key string) (string, error)
	// Name returns the provider name.
	Name() string
}

// Manager resolves secrets from a primary provider with environment
// variables as fallback.
type Manager struct {
	primary  Provider
	fallback Provider

	mu    sync.RWMutex
	cache map[string]string
}

// NewManager builds a manager. provider selects the backend: "env" (or
// empty) and "file" are supported; filePath configures the file backend.
func NewManager(provider, envPrefix, filePath string) (*Manager, error) {
	var primary Provider
	switch provider {
	case "env", "":
		primary = NewEnvProvider(envPrefix)
	case "file":
		fp, err := NewFileProvider(filePath)
		if err != nil {
			return nil, err
		}
		primary = fp
	default:
		return nil, fmt.Errorf("unknown secrets provider %q", provider)
	}
	return &Manager{
		primary:  primary,
		fallback: NewEnvProvider(envPrefix),
		cache:    make(map[string]string),
	}, nil
}

// Get retrieves a secret, trying the primary backend then the environment.
func (m *Manager) Get(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	if v, ok := m.cache[key]; ok {
		m.mu.RUnlock()
		return v, nil
	}
	m.mu.RUnlock()

	for _, p := range []Provider{m.primary, m.fallback} {
		if p == nil {
			continue
		}
		v, err := p.Get(ctx, key)
		if err == nil && v != "" {
			m.mu.Lock()
			m.cache[key] = v
			m.mu.Unlock()
			return v, nil
		}
	}
	return "", fmt.Errorf("secret not found: %s", key)
}

// GetOrDefault retrieves a secret or returns def when missing.
func (m *Manager) GetOrDefault(ctx context.Context, key, def string) string {
	v, err := m.Get(ctx, key)
	if err != nil || v == "" {
		return def
	}
	return v
}

// EnvProvider reads secrets from environment variables with a prefix.
type EnvProvider struct {
	prefix string
}

// NewEnvProvider creates an environment-backed provider. The default prefix
// is "QUILT_".
func NewEnvProvider(prefix string) *EnvProvider {
	if prefix == "" {
		prefix = "QUILT_"
	}
	return &EnvProvider{prefix: prefix}
}

func (p *EnvProvider) Name() string { return "env" }

func (p *EnvProvider) Get(_ context.Context, key string) (string, error) {
	name := p.prefix + strings.ToUpper(key)
	v, ok := os.LookupEnv(name)
	if !ok {
		return "", fmt.Errorf("environment variable %s not set", name)
	}
	return v, nil
}

// FileProvider reads secrets from a JSON file. Development use only.
type FileProvider struct {
	path string

	mu   sync.RWMutex
	data map[string]string
}

// NewFileProvider loads secrets from the JSON file at path.
func NewFileProvider(path string) (*FileProvider, error) {
	if path == "" {
		return nil, fmt.Errorf("secrets file path required")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load secrets file: %w", err)
	}
	data := make(map[string]string)
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse secrets file: %w", err)
	}
	return &FileProvider{path: path, data: data}, nil
}

func (p *FileProvider) Name() string { return "file" }

func (p *FileProvider) Get(_ context.Context, key string) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.data[key]
	if !ok {
		return "", fmt.Errorf("secret not found: %s", key)
	}
	return v, nil
}
