// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package twoway_test

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"testing/fstest"
	"time"

	. "gopkg.in/check.v1"

	"github.com/canonical/twoway"
)

type RepositorySuite struct{}

var _ = Suite(&RepositorySuite{})

func (s *RepositorySuite) TearDownTest(c *C) {
	twoway.InvalidateAll()
}

var exampleFS = fstest.MapFS{
	"sql/emp/by-id.sql":   {Data: []byte("SELECT * FROM emp WHERE id = /*id*/1")},
	"sql/emp/by-dept.sql": {Data: []byte("SELECT * FROM emp WHERE dept IN /*depts*/('sales')")},
	"sql/dept/all.sql":    {Data: []byte("SELECT * FROM dept")},
	"sql/dept/broken.sql": {Data: []byte("SELECT /*%if x*/ 1")},
	"sql/dept/README.md":  {Data: []byte("not a template")},
	"other/ignored.sql":   {Data: []byte("SELECT 1")},
}

func (s *RepositorySuite) TestGet(c *C) {
	repo := twoway.NewRepository(exampleFS, "sql")

	t, err := repo.Get("emp/by-id.sql")
	c.Assert(err, IsNil)
	c.Check(t.ID(), Equals, "sql/emp/by-id.sql")
	c.Check(t.Text(), Equals, "SELECT * FROM emp WHERE id = /*id*/1")
	c.Check(twoway.IsCached("sql/emp/by-id.sql"), Equals, true)

	again, err := repo.Get("emp/by-id.sql")
	c.Assert(err, IsNil)
	c.Check(again, Equals, t)

	c.Check(repo.MustGet("dept/all.sql").Text(), Equals, "SELECT * FROM dept")
}

func (s *RepositorySuite) TestGetErrors(c *C) {
	repo := twoway.NewRepository(exampleFS, "sql")

	_, err := repo.Get("emp/missing.sql")
	c.Check(err, ErrorMatches, `cannot read template "emp/missing.sql": .*`)
	c.Check(errors.Is(err, fs.ErrNotExist), Equals, true)

	_, err = repo.Get("../other/ignored.sql")
	c.Check(err, ErrorMatches, `invalid template name "../other/ignored.sql"`)

	_, err = repo.Get("dept/broken.sql")
	var syntaxErr *twoway.SyntaxError
	c.Assert(errors.As(err, &syntaxErr), Equals, true)
	c.Check(syntaxErr.TemplateID, Equals, "sql/dept/broken.sql")
	c.Check(twoway.IsCached("sql/dept/broken.sql"), Equals, false)

	c.Check(func() { repo.MustGet("emp/missing.sql") }, PanicMatches, `cannot read template .*`)
}

func (s *RepositorySuite) TestNames(c *C) {
	names, err := twoway.NewRepository(exampleFS, "sql").Names()
	c.Assert(err, IsNil)
	sort.Strings(names)
	c.Check(names, DeepEquals, []string{"dept/all.sql", "dept/broken.sql", "emp/by-dept.sql", "emp/by-id.sql"})

	names, err = twoway.NewRepository(exampleFS, ".").Names()
	c.Assert(err, IsNil)
	c.Check(names, HasLen, 5)
}

func (s *RepositorySuite) TestOpenRepository(c *C) {
	dir := c.MkDir()
	c.Assert(os.MkdirAll(filepath.Join(dir, "emp"), 0o755), IsNil)
	c.Assert(os.WriteFile(filepath.Join(dir, "emp", "count.sql"), []byte("SELECT count(*) FROM emp"), 0o644), IsNil)

	repo, err := twoway.OpenRepository(dir)
	c.Assert(err, IsNil)
	t, err := repo.Get("emp/count.sql")
	c.Assert(err, IsNil)
	c.Check(t.Text(), Equals, "SELECT count(*) FROM emp")
	c.Check(repo.ID("emp/count.sql"), Equals, filepath.ToSlash(dir)+"/emp/count.sql")

	_, err = twoway.OpenRepository(filepath.Join(dir, "emp", "count.sql"))
	c.Check(err, ErrorMatches, "cannot open template repository: .* is not a directory")
	_, err = twoway.OpenRepository(filepath.Join(dir, "missing"))
	c.Check(err, ErrorMatches, "cannot open template repository: .*")
}

func (s *RepositorySuite) TestWatchNeedsDirectory(c *C) {
	err := twoway.NewRepository(exampleFS, "sql").Watch(context.Background())
	c.Check(err, ErrorMatches, "cannot watch repository: not a directory on disk")
}

func (s *RepositorySuite) TestWatchInvalidates(c *C) {
	dir := c.MkDir()
	file := filepath.Join(dir, "emp.sql")
	c.Assert(os.WriteFile(file, []byte("SELECT 1"), 0o644), IsNil)

	repo, err := twoway.OpenRepository(dir)
	c.Assert(err, IsNil)
	t, err := repo.Get("emp.sql")
	c.Assert(err, IsNil)
	c.Check(t.Text(), Equals, "SELECT 1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- repo.Watch(ctx)
	}()

	// The watcher may not be running yet, so keep writing until the change
	// is seen.
	deadline := time.Now().Add(10 * time.Second)
	for twoway.IsCached(repo.ID("emp.sql")) {
		if time.Now().After(deadline) {
			c.Fatalf("template was not invalidated")
		}
		c.Assert(os.WriteFile(file, []byte("SELECT 2"), 0o644), IsNil)
		time.Sleep(20 * time.Millisecond)
	}

	t, err = repo.Get("emp.sql")
	c.Assert(err, IsNil)
	c.Check(t.Text(), Equals, "SELECT 2")

	cancel()
	select {
	case err := <-done:
		c.Check(err, IsNil)
	case <-time.After(10 * time.Second):
		c.Fatalf("watch did not stop")
	}
}

func (s *RepositorySuite) TestWatchInvalidatesRenamedDirectory(c *C) {
	dir := c.MkDir()
	sub := filepath.Join(dir, "emp")
	c.Assert(os.MkdirAll(filepath.Join(sub, "dept"), 0o755), IsNil)
	c.Assert(os.WriteFile(filepath.Join(sub, "by-id.sql"), []byte("SELECT 1"), 0o644), IsNil)
	c.Assert(os.WriteFile(filepath.Join(sub, "dept", "all.sql"), []byte("SELECT 2"), 0o644), IsNil)
	ready := filepath.Join(dir, "ready.sql")
	c.Assert(os.WriteFile(ready, []byte("SELECT 0"), 0o644), IsNil)

	repo, err := twoway.OpenRepository(dir)
	c.Assert(err, IsNil)
	for _, name := range []string{"ready.sql", "emp/by-id.sql", "emp/dept/all.sql"} {
		_, err := repo.Get(name)
		c.Assert(err, IsNil)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = repo.Watch(ctx)
	}()

	// Wait for the watcher to run.
	deadline := time.Now().Add(10 * time.Second)
	for twoway.IsCached(repo.ID("ready.sql")) {
		if time.Now().After(deadline) {
			c.Fatalf("watcher did not start")
		}
		c.Assert(os.WriteFile(ready, []byte("SELECT 0"), 0o644), IsNil)
		time.Sleep(20 * time.Millisecond)
	}

	c.Assert(os.Rename(sub, filepath.Join(dir, "emp-old")), IsNil)
	for twoway.IsCached(repo.ID("emp/by-id.sql")) || twoway.IsCached(repo.ID("emp/dept/all.sql")) {
		if time.Now().After(deadline) {
			c.Fatalf("templates under the renamed directory were not invalidated")
		}
		time.Sleep(20 * time.Millisecond)
	}

	_, err = repo.Get("emp/by-id.sql")
	c.Check(errors.Is(err, fs.ErrNotExist), Equals, true)
}
