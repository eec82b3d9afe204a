// Package store finds firmware images by name on the host filesystem.
package store

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/shibukawa/configdir"
)

var ErrNotFound = errors.New("firmware not found")

// DirStore serves firmware images from a list of directories, first
// match wins. An empty Dirs means DefaultDirs.
type DirStore struct {
	Dirs []string
}

// DefaultDirs is the system firmware directory plus the per-system and
// per-user rproc folders.
func DefaultDirs() []string {
	dirs := []string{"/lib/firmware"}
	for _, folder := range configdir.New("rproc", "firmware").QueryFolders(configdir.All) {
		dirs = append(dirs, folder.Path)
	}
	return dirs
}

func (s *DirStore) dirs() []string {
	if len(s.Dirs) == 0 {
		return DefaultDirs()
	}
	return s.Dirs
}

// Fetch reads the named image. The name is a bare file name; anything
// that looks like a path is rejected.
func (s *DirStore) Fetch(name string) ([]byte, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name != filepath.Base(name) {
		return nil, errors.Errorf("bad firmware name %q", name)
	}
	for _, dir := range s.dirs() {
		p, err := ioutil.ReadFile(filepath.Join(dir, name))
		if err == nil {
			return p, nil
		}
		if !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "reading firmware %s", name)
		}
	}
	return nil, errors.Wrap(ErrNotFound, name)
}
