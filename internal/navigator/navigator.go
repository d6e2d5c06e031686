// Package navigator resolves client-supplied paths against a connection's
// working path without ever leaving the server root.
//
// Paths handled here are virtual: "/" is the server root and every
// result is a clean, absolute, slash-separated path beneath it.  The
// package never touches the filesystem, so `cd` is optimistic: a missing
// directory is only discovered by the next operation that uses it.
package navigator

import (
	"path"
	"strings"

	"telfs/internal/errors"
)

// Root is the virtual path of the server root.
const Root = "/"

// Home is the shorthand clients use for the root.
const Home = "~"

// Change computes the working path after `cd target`.  A bare ".." at
// the root clamps to the root; any other escape is rejected.
func Change(cwd, target string) (string, error) {
	switch target {
	case Home:
		return Root, nil
	case "..":
		return Parent(cwd), nil
	}
	return Resolve(cwd, target)
}

// Parent returns the parent of p, or the root when p is the root.
func Parent(p string) string {
	p = clean(p)
	if p == Root {
		return Root
	}
	return path.Dir(p)
}

// Resolve joins target onto cwd.  Targets starting with "/" or "~/" are
// taken relative to the root.  A ".." segment that would climb above
// the root yields ErrEscapesRoot.
func Resolve(cwd, target string) (string, error) {
	if target == "" {
		return "", errors.ErrInvalidPath
	}
	if err := validate(target); err != nil {
		return "", err
	}

	base := clean(cwd)
	switch {
	case target == Home:
		return Root, nil
	case strings.HasPrefix(target, Home+"/"):
		base, target = Root, target[len(Home)+1:]
	case strings.HasPrefix(target, "/"):
		base = Root
	}

	stack := split(base)
	for _, seg := range strings.Split(target, "/") {
		switch seg {
		case "", ".":
		case "..":
			if len(stack) == 0 {
				return "", errors.ErrEscapesRoot
			}
			stack = stack[:len(stack)-1]
		default:
			stack = append(stack, seg)
		}
	}
	return "/" + strings.Join(stack, "/"), nil
}

// Contains reports whether p lies at or beneath dir.
func Contains(dir, p string) bool {
	dir, p = clean(dir), clean(p)
	if dir == Root || dir == p {
		return true
	}
	return strings.HasPrefix(p, dir+"/")
}

// Display renders p for the prompt, prefixed by the root's label
// (usually the base name of the root directory).
func Display(rootLabel, p string) string {
	p = clean(p)
	if rootLabel == "" {
		return p
	}
	if p == Root {
		return rootLabel
	}
	return rootLabel + p
}

// Base returns the last element of p.
func Base(p string) string {
	return path.Base(clean(p))
}

// ── helpers ──────────────────────────────────────────────────────────

func clean(p string) string {
	if p == "" {
		return Root
	}
	return path.Clean("/" + p)
}

func split(p string) []string {
	p = strings.Trim(clean(p), "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// validate rejects bytes that have no business in a path.
func validate(p string) error {
	for i := 0; i < len(p); i++ {
		c := p[i]
		if c < 0x20 || c == 0x7F || c == '\\' {
			return errors.ErrInvalidPath
		}
	}
	return nil
}
