package authority

import (
	"encoding/json"
	"fmt"
)

// blobEnvelope es el formato persistido: discriminador de tipo + realm +
// version por fuera, payload opaco por dentro. El registry solo necesita
// type/realm/version para CAS y listados sin decodificar el payload.
type blobEnvelope struct {
	Type    Authority       `json:"type"`
	Realm   string          `json:"realm"`
	Version int64           `json:"version"`
	Config  json.RawMessage `json:"config"`
}

// EncodeBlob serializa una ProviderConfig al formato persistido.
func EncodeBlob(cfg *ProviderConfig) ([]byte, error) {
	inner, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode provider config: %w", err)
	}
	return json.Marshal(blobEnvelope{
		Type:    cfg.Authority,
		Realm:   cfg.Realm,
		Version: cfg.Version,
		Config:  inner,
	})
}

// DecodeBlob deserializa un blob persistido.
func DecodeBlob(b []byte) (*ProviderConfig, error) {
	var env blobEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("decode provider blob: %w", err)
	}
	var cfg ProviderConfig
	if err := json.Unmarshal(env.Config, &cfg); err != nil {
		return nil, fmt.Errorf("decode provider config: %w", err)
	}
	// El envelope manda sobre el payload en caso de divergencia.
	cfg.Authority = env.Type
	cfg.Realm = env.Realm
	cfg.Version = env.Version
	return &cfg, nil
}
