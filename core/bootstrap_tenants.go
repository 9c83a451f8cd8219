package core

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

const generatedAPIKeyLength = 32

// TenantProvisioner creates tenants; creating an existing name is a no-op.
type TenantProvisioner interface {
	ProvisionTenant(ctx context.Context, name, apiKey string) (bool, error)
}

// TenantSeed is one entry of the tenants file.
type TenantSeed struct {
	Name   string `yaml:"name"`
	APIKey string `yaml:"api_key"`
}

type tenantsDoc struct {
	Tenants []TenantSeed `yaml:"tenants"`
}

// ParseTenantsYAML reads a tenants file. Names are required and unique; an
// empty api_key means one is generated at provisioning time.
func ParseTenantsYAML(b []byte) ([]TenantSeed, error) {
	var doc tenantsDoc
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("invalid tenants file: %w", err)
	}
	seen := make(map[string]struct{}, len(doc.Tenants))
	for i := range doc.Tenants {
		t := &doc.Tenants[i]
		t.Name = strings.TrimSpace(t.Name)
		t.APIKey = strings.TrimSpace(t.APIKey)
		if t.Name == "" {
			return nil, fmt.Errorf("tenants[%d]: name is required", i)
		}
		if _, dup := seen[t.Name]; dup {
			return nil, fmt.Errorf("tenants[%d]: duplicate name %q", i, t.Name)
		}
		seen[t.Name] = struct{}{}
	}
	return doc.Tenants, nil
}

// BootstrapTenants provisions the tenants listed in cfg.TenantsFile.
// It is idempotent: tenants that already exist are left untouched.
func BootstrapTenants(ctx context.Context, repo TenantProvisioner, cfg Config) error {
	if cfg.TenantsFile == "" {
		return nil
	}

	data, err := os.ReadFile(cfg.TenantsFile)
	if err != nil {
		return oops.In("bootstrap").With("path", cfg.TenantsFile).Wrap(err)
	}
	seeds, err := ParseTenantsYAML(data)
	if err != nil {
		return oops.In("bootstrap").With("path", cfg.TenantsFile).Wrap(err)
	}

	// Generated keys only ever go to the keys file, never to the log.
	if cfg.TenantKeysOut == "" {
		for _, seed := range seeds {
			if seed.APIKey == "" {
				return oops.In("bootstrap").
					With("tenant", seed.Name).
					Errorf("tenant %s has no api_key and TENANT_KEYS_OUT is not set", seed.Name)
			}
		}
	}

	for _, seed := range seeds {
		key := seed.APIKey
		generated := false
		if key == "" {
			if key, err = generateAPIKey(generatedAPIKeyLength); err != nil {
				return err
			}
			generated = true
		}

		created, err := repo.ProvisionTenant(ctx, seed.Name, key)
		if err != nil {
			return oops.In("bootstrap").With("tenant", seed.Name).Wrap(err)
		}
		if !created {
			continue
		}

		if !generated {
			log.Printf("tenant %s provisioned", seed.Name)
			continue
		}
		if err := reportGeneratedKey(cfg, seed.Name, key); err != nil {
			return err
		}
	}
	return nil
}

func reportGeneratedKey(cfg Config, name, key string) error {
	f, err := os.OpenFile(cfg.TenantKeysOut, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return oops.In("bootstrap").With("path", cfg.TenantKeysOut).Wrap(err)
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, "%s %s\n", name, key); err != nil {
		return oops.In("bootstrap").With("path", cfg.TenantKeysOut).Wrap(err)
	}
	log.Printf("tenant %s provisioned; api key written to %s", name, cfg.TenantKeysOut)
	return nil
}

func generateAPIKey(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("api key length must be positive")
	}
	raw := make([]byte, length)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw)[:length], nil
}
