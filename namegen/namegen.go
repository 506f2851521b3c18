// Package namegen produces the short random names used for leases and
// servers when the caller does not supply one.
package namegen

import (
	vendor "github.com/anandvarma/namegen"
)

var gen = vendor.New()

type ID string

func Get() ID {
	return ID(gen.Get())
}

func (id ID) String() string {
	return string(id)
}

// Prefixed yields "<prefix>-<random name>", the shape generated lease and
// server names take.
func Prefixed(prefix string) string {
	return prefix + "-" + gen.Get()
}
