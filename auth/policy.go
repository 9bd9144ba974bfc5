package auth

import "github.com/foxvalleyai/website/storage"

// DecideRole is the bootstrap policy: the first account ever created is an
// administrator and every later one is a standard user. Stores call it from
// inside the transaction that inserts the account, so it matches
// storage.RoleFunc.
func DecideRole(firstAccountEver bool) storage.Role {
	if firstAccountEver {
		return storage.RoleAdmin
	}
	return storage.RoleUser
}

var _ storage.RoleFunc = DecideRole

// RequireAdmin returns ErrAdminRequired unless acct holds the admin role.
func RequireAdmin(acct *storage.Account) error {
	if acct == nil {
		return ErrForbidden
	}
	if acct.Role != storage.RoleAdmin {
		return ErrAdminRequired
	}
	return nil
}
