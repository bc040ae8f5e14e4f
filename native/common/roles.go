package common

import (
	"bytes"
	"errors"
	"strings"

	"nhbmarket/storage"
)

// Role tags consulted by the administrative surface.
const (
	RolePauser     = "market.pauser"
	RoleFeeManager = "market.fee_manager"
	RoleMinter     = "market.minter"
)

var roleKeyPrefix = []byte("roles/")

// Authorizer answers whether an identity holds a role.
type Authorizer interface {
	IsAuthorized(addr [20]byte, role string) bool
}

// RoleRegistry stores role membership lists in the journal.
type RoleRegistry struct {
	store *storage.Journal
}

// NewRoleRegistry binds a registry to the journal.
func NewRoleRegistry(store *storage.Journal) *RoleRegistry {
	return &RoleRegistry{store: store}
}

func roleKey(role string) []byte {
	return append(append([]byte(nil), roleKeyPrefix...), strings.TrimSpace(role)...)
}

// Members returns every address assigned to role.
func (r *RoleRegistry) Members(role string) ([][20]byte, error) {
	if r == nil || r.store == nil {
		return nil, errors.New("roles: store not configured")
	}
	var members [][20]byte
	if _, err := r.store.GetRLP(roleKey(role), &members); err != nil {
		return nil, err
	}
	return members, nil
}

// Grant adds addr to role. Granting an existing member is a no-op.
func (r *RoleRegistry) Grant(role string, addr [20]byte) error {
	if strings.TrimSpace(role) == "" {
		return errors.New("roles: role required")
	}
	members, err := r.Members(role)
	if err != nil {
		return err
	}
	for _, member := range members {
		if member == addr {
			return nil
		}
	}
	members = append(members, addr)
	return r.store.PutRLP(roleKey(role), members)
}

// Revoke removes addr from role.
func (r *RoleRegistry) Revoke(role string, addr [20]byte) error {
	members, err := r.Members(role)
	if err != nil {
		return err
	}
	kept := members[:0]
	for _, member := range members {
		if !bytes.Equal(member[:], addr[:]) {
			kept = append(kept, member)
		}
	}
	return r.store.PutRLP(roleKey(role), kept)
}

// IsAuthorized reports whether addr holds role. Errors while reading the
// underlying state result in a false return.
func (r *RoleRegistry) IsAuthorized(addr [20]byte, role string) bool {
	if addr == ([20]byte{}) {
		return false
	}
	members, err := r.Members(role)
	if err != nil {
		return false
	}
	for _, member := range members {
		if member == addr {
			return true
		}
	}
	return false
}
