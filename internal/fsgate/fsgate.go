// Package fsgate is the filesystem gateway: every operation a client
// command performs on the server tree goes through a Gateway.
//
// Paths are virtual ("/" is the server root, separators are "/").  The
// gateway sits on an afero.Fs; in production that is a BasePathFs over
// the OS filesystem, so even a path that slipped past the navigator
// cannot reach outside the root.  Failures are returned as
// *errors.FSError carrying a NotFound / AlreadyExists / PermissionDenied
// / IOFailure kind.
package fsgate

import (
	"bufio"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"

	"telfs/internal/errors"
	"telfs/internal/navigator"
)

// DefaultMaxReadSize bounds ReadFile and ReadLines.
const DefaultMaxReadSize = 1 << 20

// Gateway performs filesystem operations on virtual paths.
type Gateway struct {
	fs          afero.Fs
	maxReadSize int64
}

// New wraps fsys.  Use afero.NewMemMapFs() in tests.
func New(fsys afero.Fs, opts ...func(*Gateway)) *Gateway {
	g := &Gateway{fs: fsys, maxReadSize: DefaultMaxReadSize}
	for _, o := range opts {
		o(g)
	}
	return g
}

// NewOS roots a Gateway at dir on the OS filesystem, creating dir when
// it does not exist yet.
func NewOS(dir string, opts ...func(*Gateway)) (*Gateway, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, errors.WrapFS("mkdir", abs, err)
	}
	return New(afero.NewBasePathFs(afero.NewOsFs(), abs), opts...), nil
}

// WithMaxReadSize sets the largest file ReadFile and ReadLines accept.
func WithMaxReadSize(n int64) func(*Gateway) {
	return func(g *Gateway) {
		g.maxReadSize = n
	}
}

// Fs exposes the underlying afero filesystem.
func (g *Gateway) Fs() afero.Fs { return g.fs }

// List returns the names of the entries in dir, sorted.
func (g *Gateway) List(dir string) ([]string, error) {
	infos, err := afero.ReadDir(g.fs, dir)
	if err != nil {
		if ok, _ := g.isFile(dir); ok {
			return nil, errors.WrapFS("list", dir, errors.ErrNotDir)
		}
		return nil, errors.WrapFS("list", dir, err)
	}
	names := make([]string, 0, len(infos))
	for _, fi := range infos {
		names = append(names, fi.Name())
	}
	return names, nil
}

// Exists reports whether p exists.
func (g *Gateway) Exists(p string) (bool, error) {
	ok, err := afero.Exists(g.fs, p)
	if err != nil {
		return false, errors.WrapFS("stat", p, err)
	}
	return ok, nil
}

// CreateFile creates an empty file.  It returns false without error when
// p already exists.
func (g *Gateway) CreateFile(p string) (bool, error) {
	if ok, err := g.Exists(p); err != nil || ok {
		return false, err
	}
	if err := g.requireDir("create", navigator.Parent(p)); err != nil {
		return false, err
	}
	f, err := g.fs.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.IsExist(err) {
			return false, nil
		}
		return false, errors.WrapFS("create", p, err)
	}
	if err := f.Close(); err != nil {
		return true, errors.WrapFS("create", p, err)
	}
	return true, nil
}

// CreateDir creates a single directory.  The parent must exist.
func (g *Gateway) CreateDir(p string) error {
	if err := g.requireDir("mkdir", navigator.Parent(p)); err != nil {
		return err
	}
	if err := g.fs.Mkdir(p, 0o755); err != nil {
		return errors.WrapFS("mkdir", p, err)
	}
	return nil
}

// DeleteRecursive removes p and everything beneath it, deepest entries
// first.  A missing p is not an error.  The root itself cannot be
// removed.
func (g *Gateway) DeleteRecursive(p string) error {
	if p == navigator.Root {
		return errors.WrapFS("remove", p, errors.ErrPermission)
	}
	if ok, err := g.Exists(p); err != nil || !ok {
		return err
	}
	var victims []string
	err := afero.Walk(g.fs, p, func(walked string, _ os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		victims = append(victims, filepath.ToSlash(walked))
		return nil
	})
	if err != nil {
		return errors.WrapFS("remove", p, err)
	}
	// Reverse lexical order visits every child before its parent.
	sort.Sort(sort.Reverse(sort.StringSlice(victims)))
	for _, v := range victims {
		if err := g.fs.Remove(v); err != nil && !errors.IsNotFound(err) {
			return errors.WrapFS("remove", v, err)
		}
	}
	return nil
}

// Copy copies src (a file or a whole tree) to dst.  It returns false
// without error when src is missing or dst already exists.  dst's
// parent must be an existing directory.
func (g *Gateway) Copy(src, dst string) (bool, error) {
	srcInfo, err := g.fs.Stat(src)
	if err != nil {
		if errors.IsNotFound(err) {
			return false, nil
		}
		return false, errors.WrapFS("copy", src, err)
	}
	if ok, err := g.Exists(dst); err != nil || ok {
		return false, err
	}
	if err := g.requireDir("copy", navigator.Parent(dst)); err != nil {
		return false, err
	}
	if srcInfo.IsDir() && navigator.Contains(src, dst) {
		return false, errors.WrapFS("copy", dst, errors.ErrInvalidPath)
	}
	if !srcInfo.IsDir() {
		return true, g.copyFile(src, dst, srcInfo.Mode().Perm())
	}

	err = afero.Walk(g.fs, src, func(walked string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, walked)
		if err != nil {
			return err
		}
		target := path.Join(dst, filepath.ToSlash(rel))
		if fi.IsDir() {
			return g.fs.Mkdir(target, 0o755)
		}
		return g.copyFile(walked, target, fi.Mode().Perm())
	})
	if err != nil {
		return true, errors.WrapFS("copy", src, err)
	}
	return true, nil
}

// ReadFile returns the content of p, refusing directories and files
// larger than the configured maximum.
func (g *Gateway) ReadFile(p string) ([]byte, error) {
	if err := g.checkReadable(p); err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(g.fs, p)
	if err != nil {
		return nil, errors.WrapFS("read", p, err)
	}
	return data, nil
}

// ReadLines returns p split into lines without their terminators.
func (g *Gateway) ReadLines(p string) ([]string, error) {
	if err := g.checkReadable(p); err != nil {
		return nil, err
	}
	f, err := g.fs.Open(p)
	if err != nil {
		return nil, errors.WrapFS("read", p, err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 4096), int(g.maxReadSize)+1)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, errors.WrapFS("read", p, err)
	}
	return lines, nil
}

// ── helpers ──────────────────────────────────────────────────────────

func (g *Gateway) checkReadable(p string) error {
	fi, err := g.fs.Stat(p)
	if err != nil {
		return errors.WrapFS("read", p, err)
	}
	if fi.IsDir() {
		return errors.WrapFS("read", p, errors.ErrIsDir)
	}
	if fi.Size() > g.maxReadSize {
		return errors.WrapFS("read", p, errors.ErrTooLarge)
	}
	return nil
}

func (g *Gateway) requireDir(op, dir string) error {
	fi, err := g.fs.Stat(dir)
	if err != nil {
		return errors.WrapFS(op, dir, err)
	}
	if !fi.IsDir() {
		return errors.WrapFS(op, dir, errors.ErrNotDir)
	}
	return nil
}

func (g *Gateway) isFile(p string) (bool, error) {
	fi, err := g.fs.Stat(p)
	if err != nil {
		return false, err
	}
	return !fi.IsDir(), nil
}

func (g *Gateway) copyFile(src, dst string, perm os.FileMode) error {
	in, err := g.fs.Open(src)
	if err != nil {
		return errors.WrapFS("copy", src, err)
	}
	defer in.Close()

	if perm == 0 {
		perm = 0o644
	}
	out, err := g.fs.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, perm)
	if err != nil {
		return errors.WrapFS("copy", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errors.WrapFS("copy", dst, err)
	}
	if err := out.Close(); err != nil {
		return errors.WrapFS("copy", dst, err)
	}
	return nil
}
