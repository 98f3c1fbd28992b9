package authority

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/idbridge/internal/observability/logger"
)

var (
	// ErrProviderNotFound indica que no hay config para el provider id.
	ErrProviderNotFound = errors.New("provider not found")

	// ErrStaleVersion indica que el registro trae una versión obsoleta.
	// CAS estricto: se rechaza, no se mergea.
	ErrStaleVersion = errors.New("stale provider config version")

	// ErrSystemRealm indica intento de eliminar un provider del realm system.
	ErrSystemRealm = errors.New("system realm providers cannot be unregistered")
)

// ConfigStore persiste blobs de provider config por provider id.
type ConfigStore interface {
	Get(ctx context.Context, providerID string) ([]byte, error) // domain.ErrNotFound si no existe
	Put(ctx context.Context, providerID string, blob []byte) error
	Delete(ctx context.Context, providerID string) error
	List(ctx context.Context) (map[string][]byte, error)
}

// Registry resuelve provider configs por id con cache explícito.
// Es read-mostly: los writes (Register/Unregister) invalidan la entrada
// antes de retornar, y el warm del cache completa antes de que Register
// devuelva, de modo que un Resolve posterior ve la config nueva.
type Registry struct {
	store       ConfigStore
	cache       *gocache.Cache
	sf          singleflight.Group
	systemRealm string

	// mu serializa la secuencia read-check-write del CAS de Register.
	mu sync.Mutex
}

func NewRegistry(store ConfigStore, systemRealm string) *Registry {
	return &Registry{
		store:       store,
		cache:       gocache.New(gocache.NoExpiration, 10*time.Minute),
		systemRealm: systemRealm,
	}
}

// Resolve busca la config por provider id: cache primero, después store.
// Cargas concurrentes del mismo id colapsan en una sola (singleflight).
func (r *Registry) Resolve(ctx context.Context, providerID string) (*ProviderConfig, error) {
	if v, ok := r.cache.Get(providerID); ok {
		return v.(*ProviderConfig), nil
	}

	v, err, _ := r.sf.Do(providerID, func() (any, error) {
		blob, err := r.store.Get(ctx, providerID)
		if err != nil {
			return nil, err
		}
		cfg, err := DecodeBlob(blob)
		if err != nil {
			return nil, err
		}
		r.cache.Set(providerID, cfg, gocache.NoExpiration)
		return cfg, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, providerID)
	}
	return v.(*ProviderConfig), nil
}

// Register crea o actualiza una config con compare-and-swap sobre Version:
// para update, cfg.Version debe igualar la versión almacenada; el registry
// persiste Version+1. Para create, cfg.Version debe ser 0.
// El cache queda warm (o la operación falla) antes de retornar.
func (r *Registry) Register(ctx context.Context, cfg *ProviderConfig) (*ProviderConfig, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var current int64
	if blob, err := r.store.Get(ctx, cfg.ProviderID); err == nil {
		existing, err := DecodeBlob(blob)
		if err != nil {
			return nil, err
		}
		current = existing.Version
	}

	if cfg.Version != current {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrStaleVersion, cfg.Version, current)
	}

	next := *cfg
	next.Version = current + 1

	blob, err := EncodeBlob(&next)
	if err != nil {
		return nil, err
	}
	if err := r.store.Put(ctx, next.ProviderID, blob); err != nil {
		return nil, err
	}

	// Warm explícito: invalidar y repoblar antes de devolver el control.
	r.cache.Set(next.ProviderID, &next, gocache.NoExpiration)

	logger.From(ctx).Info("provider registered",
		logger.Provider(next.ProviderID),
		logger.Realm(next.Realm),
		logger.Authority(string(next.Authority)),
		logger.Int64("version", next.Version),
	)
	return &next, nil
}

// Unregister elimina la config. Providers del realm system están protegidos.
// La entrada de cache se invalida antes de retornar.
func (r *Registry) Unregister(ctx context.Context, providerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	blob, err := r.store.Get(ctx, providerID)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrProviderNotFound, providerID)
	}
	cfg, err := DecodeBlob(blob)
	if err != nil {
		return err
	}
	if r.systemRealm != "" && cfg.Realm == r.systemRealm {
		return ErrSystemRealm
	}

	r.cache.Delete(providerID)
	if err := r.store.Delete(ctx, providerID); err != nil {
		return err
	}

	logger.From(ctx).Info("provider unregistered",
		logger.Provider(providerID),
		logger.Realm(cfg.Realm),
	)
	return nil
}

// List devuelve las configs de un realm (realm vacío = todas).
func (r *Registry) List(ctx context.Context, realm string) ([]*ProviderConfig, error) {
	blobs, err := r.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*ProviderConfig, 0, len(blobs))
	for _, b := range blobs {
		cfg, err := DecodeBlob(b)
		if err != nil {
			logger.From(ctx).Warn("skipping undecodable provider blob", logger.Err(err))
			continue
		}
		if realm == "" || cfg.Realm == realm {
			out = append(out, cfg)
		}
	}
	return out, nil
}
