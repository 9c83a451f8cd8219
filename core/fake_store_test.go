package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

type memPlayer struct {
	password  string
	lastLogin string
}

type memMembership struct {
	privileges string
	override   *string
}

// memStore is an in-memory CredentialStore and TenantResolver with the same
// scoping rules as the Postgres queries.
type memStore struct {
	mu          sync.Mutex
	tenants     map[string]TenantID
	players     map[string]*memPlayer
	memberships map[TenantID]map[string]*memMembership
	mutations   int
	lookups     []string
	failWith    error
}

func newMemStore() *memStore {
	return &memStore{
		tenants:     map[string]TenantID{},
		players:     map[string]*memPlayer{},
		memberships: map[TenantID]map[string]*memMembership{},
	}
}

func (s *memStore) addTenant(id TenantID, apiKey string) {
	s.tenants[apiKey] = id
}

// addMembership registers an existing player under another tenant, as
// provisioning outside the broker would.
func (s *memStore) addMembership(tenant TenantID, name, privileges string, override *string) {
	if s.memberships[tenant] == nil {
		s.memberships[tenant] = map[string]*memMembership{}
	}
	s.memberships[tenant][name] = &memMembership{privileges: privileges, override: override}
}

func (s *memStore) ResolveTenant(_ context.Context, apiKey string) (TenantID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups = append(s.lookups, apiKey)
	if s.failWith != nil {
		return 0, false, s.failWith
	}
	id, ok := s.tenants[apiKey]
	return id, ok, nil
}

func (s *memStore) GetAuth(_ context.Context, tenant TenantID, name string) (AuthRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return AuthRow{}, s.failWith
	}
	p, ok := s.players[name]
	if !ok {
		return AuthRow{}, ErrNoMembership
	}
	m, ok := s.memberships[tenant][name]
	if !ok {
		return AuthRow{}, ErrNoMembership
	}
	return AuthRow{
		Password:         p.password,
		PasswordOverride: m.override,
		LastLogin:        p.lastLogin,
		Privileges:       m.privileges,
	}, nil
}

func (s *memStore) CreateAuth(_ context.Context, tenant TenantID, name, password, privileges string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	if _, exists := s.players[name]; exists {
		return fmt.Errorf("insert player: %w", &pgconn.PgError{Code: pgerrcode.UniqueViolation})
	}
	s.mutations++
	s.players[name] = &memPlayer{password: password}
	s.addMembership(tenant, name, privileges, nil)
	return nil
}

func (s *memStore) SetPassword(_ context.Context, name, password string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return 0, s.failWith
	}
	p, ok := s.players[name]
	if !ok {
		return 0, nil
	}
	s.mutations++
	p.password = password
	return 1, nil
}

func (s *memStore) SetPrivileges(_ context.Context, tenant TenantID, name, privileges string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return 0, s.failWith
	}
	m, ok := s.memberships[tenant][name]
	if !ok {
		return 0, nil
	}
	s.mutations++
	m.privileges = privileges
	return 1, nil
}

func (s *memStore) RecordLogin(_ context.Context, name, lastLogin string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return 0, s.failWith
	}
	p, ok := s.players[name]
	if !ok {
		return 0, nil
	}
	s.mutations++
	p.lastLogin = lastLogin
	return 1, nil
}
