// Package perm holds the permission set a server grants its clients.
// Every command verb requires at most one permission.
package perm

import (
	"strings"

	"github.com/oarkflow/bitwise"
)

const (
	// Read allows listing directories and changing into them.
	Read = "read"
	// ReadContent allows reading file contents.
	ReadContent = "read-content"
	// Create allows creating files and directories, including copies.
	Create = "create"
	// Delete allows removing files and directories.
	Delete = "delete"
)

var (
	names   = []string{Read, ReadContent, Create, Delete}
	factory bitwise.Perman
)

func init() {
	factory = bitwise.Factory(names)
}

// Set is a serialized permission set.
type Set int64

// Of builds a Set from permission names.  Unknown names are ignored.
func Of(perms ...string) Set {
	return Set(factory.Serialize(perms))
}

// Full grants everything.
func Full() Set { return Of(names...) }

// ReadOnly grants Read and ReadContent.
func ReadOnly() Set { return Of(Read, ReadContent) }

// Has reports whether s grants p.  The empty permission is always granted.
func (s Set) Has(p string) bool {
	if p == "" {
		return true
	}
	return factory.Has(int64(s), p)
}

// Names lists the granted permissions.
func (s Set) Names() []string {
	return factory.Deserialize(int64(s))
}

func (s Set) String() string {
	return strings.Join(s.Names(), ",")
}
