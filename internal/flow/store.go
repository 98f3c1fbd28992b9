package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dropDatabas3/idbridge/internal/cache"
	"github.com/dropDatabas3/idbridge/internal/idp"
)

const requestKeyPrefix = "authreq:"

// RequestStore persiste el contexto del authorization request keyed por
// state, con TTL. El retiro es Take: atómico y destructivo, un state se
// consume exactamente una vez.
type RequestStore struct {
	c   cache.Cache
	ttl time.Duration
}

func NewRequestStore(c cache.Cache, ttl time.Duration) *RequestStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RequestStore{c: c, ttl: ttl}
}

func (s *RequestStore) Put(ctx context.Context, state string, rc *idp.RequestContext) error {
	b, err := json.Marshal(rc)
	if err != nil {
		return fmt.Errorf("encode request context: %w", err)
	}
	s.c.Set(ctx, requestKeyPrefix+state, b, s.ttl)
	return nil
}

// Take consume el contexto. Segundo Take del mismo state retorna false:
// así un code replay o un callback duplicado muere acá.
func (s *RequestStore) Take(ctx context.Context, state string) (*idp.RequestContext, bool) {
	b, ok := s.c.Take(ctx, requestKeyPrefix+state)
	if !ok {
		return nil, false
	}
	var rc idp.RequestContext
	if err := json.Unmarshal(b, &rc); err != nil {
		return nil, false
	}
	return &rc, true
}
