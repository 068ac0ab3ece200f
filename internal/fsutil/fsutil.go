// Package fsutil is the filesystem surface the launcher frontend calls into:
// existence checks, recursive size listings and directory management.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/rs/zerolog/log"
)

// resolver maps a caller path onto the filesystem that holds it and the
// path within that filesystem.
type resolver func(path string) (billy.Filesystem, string, error)

type FS struct {
	resolve resolver
}

// New wraps fsys; paths passed to FS methods are resolved against its root.
func New(fsys billy.Filesystem) *FS {
	return &FS{
		resolve: func(path string) (billy.Filesystem, string, error) {
			return fsys, path, nil
		},
	}
}

// NewOS works on the native filesystem. Relative paths resolve against the
// working directory and volume-qualified paths keep their volume.
func NewOS() *FS {
	return &FS{resolve: resolveOS}
}

func resolveOS(path string) (billy.Filesystem, string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, "", fmt.Errorf("error resolving path %s: %v", path, err)
	}
	root, rest := splitVolume(abs)
	return osfs.New(root), rest, nil
}

// splitVolume splits an absolute path into its volume root ("/" or "C:\")
// and the remainder below it.
func splitVolume(abs string) (string, string) {
	vol := filepath.VolumeName(abs)
	rest := abs[len(vol):]
	if rest == "" {
		rest = string(filepath.Separator)
	}
	return vol + string(filepath.Separator), rest
}

// Exists reports whether anything exists at path. Stat failures other than
// not-exist count as absent.
func (f *FS) Exists(path string) bool {
	fsys, p, err := f.resolve(path)
	if err != nil {
		return false
	}
	_, err = fsys.Stat(p)
	return err == nil
}

// SizeRecursive lists every regular file below dir with its size in bytes as a
// decimal string, keyed by the file path joined onto dir.
func (f *FS) SizeRecursive(dir string) (map[string]string, error) {
	fsys, root, err := f.resolve(dir)
	if err != nil {
		return nil, err
	}
	info, err := fsys.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("error reading directory %s: %v", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("error reading directory %s: not a directory", dir)
	}
	sizes := make(map[string]string)
	err = util.Walk(fsys, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		sizes[filepath.Join(dir, rel)] = strconv.FormatInt(info.Size(), 10)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error walking directory %s: %v", dir, err)
	}
	log.Debug().Str("op", "fsutil/size").Str("dir", dir).Int("files", len(sizes)).Msg("computed recursive sizes")
	return sizes, nil
}

// RemoveDir deletes path and everything below it. Failures are swallowed.
func (f *FS) RemoveDir(path string) {
	fsys, p, err := f.resolve(path)
	if err == nil {
		err = util.RemoveAll(fsys, p)
	}
	if err != nil {
		log.Debug().Str("op", "fsutil/remove").Str("path", path).Err(err).Msg("remove failed")
	}
}

// CreateDir creates path with any missing parents. Failures are swallowed.
func (f *FS) CreateDir(path string) {
	fsys, p, err := f.resolve(path)
	if err == nil {
		err = fsys.MkdirAll(p, 0o755)
	}
	if err != nil {
		log.Debug().Str("op", "fsutil/create").Str("path", path).Err(err).Msg("create failed")
	}
}
