// Package user defines the User entity and the Directory capability through
// which the chat core resolves user identities. The directory is owned by
// the surrounding identity layer; the chat core only reads from it.
package user

import "context"

// User is a registered account referenced by chat messages. ID is the stable
// identifier; Name is the unique login/display name used on the wire.
type User struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Directory resolves user names to user records.
type Directory interface {
	// ByName looks up a user by its unique name. It returns (nil, nil) when
	// no such user exists; a non-nil error indicates a lookup failure.
	ByName(ctx context.Context, name string) (*User, error)
}
