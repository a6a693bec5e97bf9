// Package memory provides an in-process auth.Store used by tests and local
// development. Uniqueness rules mirror the database indexes.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"tenantauth.org/internal/auth"
)

// Store keeps every entity in maps guarded by a single mutex.
type Store struct {
	mu        sync.RWMutex
	users     map[string]auth.User
	orgs      map[string]auth.Organization
	roles     map[string]auth.Role
	members   map[string]auth.Member
	blacklist map[string]auth.RevokedToken
}

var _ auth.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		users:     make(map[string]auth.User),
		orgs:      make(map[string]auth.Organization),
		roles:     make(map[string]auth.Role),
		members:   make(map[string]auth.Member),
		blacklist: make(map[string]auth.RevokedToken),
	}
}

func (s *Store) Users() auth.UserStore                 { return userStore{s: s} }
func (s *Store) Organizations() auth.OrganizationStore { return orgStore{s: s} }
func (s *Store) Roles() auth.RoleStore                 { return roleStore{s: s} }
func (s *Store) Members() auth.MemberStore             { return memberStore{s: s} }
func (s *Store) Blacklist() auth.BlacklistStore        { return blacklistStore{s: s} }

// WithTx runs fn against a journaled view of the store. When fn fails every
// write it made is undone in reverse order. Readers outside the view may
// observe writes before they are undone.
func (s *Store) WithTx(_ context.Context, fn func(auth.Store) error) error {
	log := &txLog{}
	if err := fn(txView{s: s, log: log}); err != nil {
		s.mu.Lock()
		log.rollback()
		s.mu.Unlock()
		return err
	}
	return nil
}

// txLog collects undo steps. Steps run with s.mu held.
type txLog struct {
	mu   sync.Mutex
	undo []func()
}

func (l *txLog) record(fn func()) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.undo = append(l.undo, fn)
	l.mu.Unlock()
}

func (l *txLog) rollback() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.undo) - 1; i >= 0; i-- {
		l.undo[i]()
	}
	l.undo = nil
}

type txView struct {
	s   *Store
	log *txLog
}

func (v txView) Users() auth.UserStore                 { return userStore{s: v.s, log: v.log} }
func (v txView) Organizations() auth.OrganizationStore { return orgStore{s: v.s, log: v.log} }
func (v txView) Roles() auth.RoleStore                 { return roleStore{s: v.s, log: v.log} }
func (v txView) Members() auth.MemberStore             { return memberStore{s: v.s, log: v.log} }
func (v txView) Blacklist() auth.BlacklistStore        { return blacklistStore{s: v.s, log: v.log} }

func (v txView) WithTx(_ context.Context, fn func(auth.Store) error) error {
	return fn(v)
}

// SoftDeleteUser flags the user deleted the way the administrative flow does.
func (s *Store) SoftDeleteUser(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok || u.IsDeleted {
		return auth.ErrNotFound
	}
	now := time.Now().UTC()
	u.IsDeleted = true
	u.DeletedAt = &now
	u.UpdatedAt = now
	s.users[id] = u
	return nil
}

// CountRoles returns the number of roles named name in orgID.
func (s *Store) CountRoles(orgID, name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.roles {
		if r.OrganizationID == orgID && r.Name == name {
			n++
		}
	}
	return n
}

type userStore struct {
	s   *Store
	log *txLog
}

func (us userStore) Create(_ context.Context, u *auth.User) error {
	s := us.s
	s.mu.Lock()
	defer s.mu.Unlock()
	email := strings.ToLower(u.Email)
	for _, existing := range s.users {
		if existing.ID == u.ID || strings.ToLower(existing.Email) == email {
			return fmt.Errorf("%w: user %s", auth.ErrDuplicate, email)
		}
	}
	cp := *u
	cp.Email = email
	s.users[u.ID] = cp
	us.log.record(func() { delete(s.users, cp.ID) })
	return nil
}

func (us userStore) Find(_ context.Context, id string) (*auth.User, error) {
	s := us.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok || u.IsDeleted {
		return nil, auth.ErrNotFound
	}
	return &u, nil
}

func (us userStore) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	s := us.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	email = strings.ToLower(email)
	for _, u := range s.users {
		if u.Email == email && !u.IsDeleted {
			return &u, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (us userStore) Update(_ context.Context, id string, upd auth.UserUpdate) (*auth.User, error) {
	s := us.s
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok || u.IsDeleted {
		return nil, auth.ErrNotFound
	}
	prev := u
	if upd.PasswordHash != nil {
		u.PasswordHash = *upd.PasswordHash
	}
	if upd.AccessLevel != nil {
		u.AccessLevel = *upd.AccessLevel
	}
	if upd.TokenVersion != nil {
		u.TokenVersion = *upd.TokenVersion
	}
	if upd.Status != nil {
		u.Status = *upd.Status
	}
	u.UpdatedAt = time.Now().UTC()
	s.users[id] = u
	us.log.record(func() { s.users[id] = prev })
	return &u, nil
}

func (us userStore) CountByAccessLevel(_ context.Context, level auth.AccessLevel) (int, error) {
	s := us.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, u := range s.users {
		if u.AccessLevel == level && !u.IsDeleted {
			n++
		}
	}
	return n, nil
}

type orgStore struct {
	s   *Store
	log *txLog
}

func (o orgStore) Create(_ context.Context, org *auth.Organization) error {
	s := o.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.orgs {
		if existing.ID == org.ID || existing.Name == org.Name {
			return fmt.Errorf("%w: organization %s", auth.ErrDuplicate, org.Name)
		}
	}
	s.orgs[org.ID] = *org
	id := org.ID
	o.log.record(func() { delete(s.orgs, id) })
	return nil
}

func (o orgStore) Find(_ context.Context, id string) (*auth.Organization, error) {
	s := o.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	org, ok := s.orgs[id]
	if !ok || org.IsDeleted {
		return nil, auth.ErrNotFound
	}
	return &org, nil
}

func (o orgStore) FindByName(_ context.Context, name string) (*auth.Organization, error) {
	s := o.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, org := range s.orgs {
		if org.Name == name && !org.IsDeleted {
			return &org, nil
		}
	}
	return nil, auth.ErrNotFound
}

type roleStore struct {
	s   *Store
	log *txLog
}

func (rs roleStore) Create(_ context.Context, role *auth.Role) error {
	s := rs.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.roles {
		if existing.ID == role.ID || (existing.OrganizationID == role.OrganizationID && existing.Name == role.Name) {
			return fmt.Errorf("%w: role %s", auth.ErrDuplicate, role.Name)
		}
	}
	s.roles[role.ID] = *role
	id := role.ID
	rs.log.record(func() { delete(s.roles, id) })
	return nil
}

func (rs roleStore) Find(_ context.Context, id string) (*auth.Role, error) {
	s := rs.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	role, ok := s.roles[id]
	if !ok || role.IsDeleted {
		return nil, auth.ErrNotFound
	}
	return &role, nil
}

func (rs roleStore) FindByName(_ context.Context, orgID, name string) (*auth.Role, error) {
	s := rs.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, role := range s.roles {
		if role.OrganizationID == orgID && role.Name == name && !role.IsDeleted {
			return &role, nil
		}
	}
	return nil, auth.ErrNotFound
}

type memberStore struct {
	s   *Store
	log *txLog
}

func (ms memberStore) Create(_ context.Context, m *auth.Member) error {
	s := ms.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.members {
		if existing.ID == m.ID || (existing.OrganizationID == m.OrganizationID && existing.Name == m.Name) {
			return fmt.Errorf("%w: member %s", auth.ErrDuplicate, m.Name)
		}
	}
	s.members[m.ID] = *m
	id := m.ID
	ms.log.record(func() { delete(s.members, id) })
	return nil
}

func (ms memberStore) FindByName(_ context.Context, orgID, name string) (*auth.Member, error) {
	s := ms.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.members {
		if m.OrganizationID == orgID && m.Name == name && !m.IsDeleted {
			return &m, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (ms memberStore) FindByUser(_ context.Context, orgID, userID string) (*auth.Member, error) {
	s := ms.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *auth.Member
	for _, m := range s.members {
		m := m // per-iteration copy (go1.21 loop semantics)
		if m.OrganizationID != orgID || m.UserID != userID || m.IsDeleted {
			continue
		}
		if found == nil || memberBefore(m, *found) {
			found = &m
		}
	}
	if found == nil {
		return nil, auth.ErrNotFound
	}
	return found, nil
}

func (ms memberStore) Delete(_ context.Context, id string) error {
	s := ms.s
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.members[id]
	if !ok {
		return auth.ErrNotFound
	}
	delete(s.members, id)
	ms.log.record(func() { s.members[id] = prev })
	return nil
}

// memberBefore orders memberships by creation time, then ID, matching the
// ORDER BY of the SQL store.
func memberBefore(a, b auth.Member) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

type blacklistStore struct {
	s   *Store
	log *txLog
}

func (bs blacklistStore) Add(_ context.Context, tok *auth.RevokedToken) error {
	s := bs.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blacklist[tok.TokenHash]; ok {
		return nil
	}
	s.blacklist[tok.TokenHash] = *tok
	hash := tok.TokenHash
	bs.log.record(func() { delete(s.blacklist, hash) })
	return nil
}

func (bs blacklistStore) Exists(_ context.Context, tokenHash string) (bool, error) {
	s := bs.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blacklist[tokenHash]
	return ok, nil
}

func (bs blacklistStore) Prune(_ context.Context, before time.Time) (int64, error) {
	s := bs.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for hash, tok := range s.blacklist {
		hash, tok := hash, tok // per-iteration copy (go1.21 loop semantics)
		if tok.ExpiresAt.Before(before) {
			delete(s.blacklist, hash)
			bs.log.record(func() { s.blacklist[hash] = tok })
			n++
		}
	}
	return n, nil
}
