// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package twoway

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// Repository loads templates from files. Templates are parsed on first use
// and kept in the template cache under their path.
type Repository struct {
	fsys fs.FS
	base string
	// dir is the directory on disk that the repository reads, if any. It is
	// required by Watch.
	dir    string
	logger *slog.Logger
}

// NewRepository returns a repository reading the templates under base in
// fsys, for example an embed.FS.
func NewRepository(fsys fs.FS, base string, opts ...Option) *Repository {
	o := newOptions(opts)
	return &Repository{fsys: fsys, base: path.Clean(base), logger: o.logger}
}

// OpenRepository returns a repository reading the templates in a directory
// on disk.
func OpenRepository(dir string, opts ...Option) (*Repository, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, errors.Wrap(err, "cannot open template repository")
	}
	if !info.IsDir() {
		return nil, errors.Errorf("cannot open template repository: %s is not a directory", dir)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrap(err, "cannot open template repository")
	}
	r := NewRepository(os.DirFS(abs), ".", opts...)
	r.dir = abs
	return r, nil
}

// ID returns the cache ID of the template at name.
func (r *Repository) ID(name string) string {
	p := path.Join(r.base, name)
	if r.dir != "" {
		return filepath.ToSlash(r.dir) + "/" + p
	}
	return p
}

// Get returns the template at name, a slash separated path relative to the
// repository root.
func (r *Repository) Get(name string) (*Template, error) {
	if !fs.ValidPath(name) {
		return nil, errors.Errorf("invalid template name %q", name)
	}
	return templates().get(r.ID(name), func() (string, error) {
		b, err := fs.ReadFile(r.fsys, path.Join(r.base, name))
		if err != nil {
			return "", errors.Wrapf(err, "cannot read template %q", name)
		}
		return string(b), nil
	})
}

// MustGet is the same as [Repository.Get] except that it panics on error.
func (r *Repository) MustGet(name string) *Template {
	t, err := r.Get(name)
	if err != nil {
		panic(err)
	}
	return t
}

// Names returns the names of all the .sql files in the repository.
func (r *Repository) Names() ([]string, error) {
	var names []string
	err := fs.WalkDir(r.fsys, r.base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(p, ".sql") {
			if r.base != "." {
				p = strings.TrimPrefix(p, r.base+"/")
			}
			names = append(names, p)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "cannot list templates")
	}
	return names, nil
}

// Watch invalidates the cached templates of the repository as their files
// change on disk, until ctx is done. It is only available for repositories
// opened with [OpenRepository].
func (r *Repository) Watch(ctx context.Context) error {
	if r.dir == "" {
		return errors.New("cannot watch repository: not a directory on disk")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "cannot create watcher")
	}
	defer func() { _ = watcher.Close() }()

	if err := r.watchDir(watcher, r.dir); err != nil {
		return errors.Wrapf(err, "cannot watch %s", r.dir)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			r.handleEvent(watcher, event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.WarnContext(ctx, "template watcher error", slog.Any("error", err))
		}
	}
}

// watchDir recursively adds a directory to the watcher.
func (r *Repository) watchDir(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(p)
		}
		return nil
	})
}

func (r *Repository) handleEvent(watcher *fsnotify.Watcher, event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := r.watchDir(watcher, event.Name); err != nil {
				r.logger.Warn("cannot watch new directory", slog.String("dir", event.Name), slog.Any("error", err))
			}
			return
		}
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	rel, err := filepath.Rel(r.dir, event.Name)
	if err != nil {
		return
	}
	id := r.ID(filepath.ToSlash(rel))
	Invalidate(id)
	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		// A removed directory takes its templates with it.
		templates().invalidatePrefix(id + "/")
	}
	r.logger.Debug("template changed", slog.String("template", id), slog.String("op", event.Op.String()))
}
