// Package ravelctx assembles the per-project handle threaded through every
// ravel operation: the resolved project root, the opened object store and
// mtime cache, the SCM adapter, and a logger. It plays the role the
// teacher's daemon.Daemon struct plays for mutagen's session manager,
// trimmed down to ravel's single-process, no-daemon shape.
package ravelctx

import (
	"fmt"
	"runtime"

	"github.com/ravel-dvc/ravel/internal/config"
	"github.com/ravel-dvc/ravel/internal/mtimecache"
	"github.com/ravel-dvc/ravel/internal/objectstore"
	"github.com/ravel-dvc/ravel/internal/scm"
	"github.com/ravel-dvc/ravel/pkg/logging"
)

// Context is the live handle passed to every internal operation: the
// collaborators a command needs, opened once and closed once.
type Context struct {
	Root      string
	CacheRoot string
	Config    *config.Config
	Cache     *mtimecache.Cache
	Store     *objectstore.Store
	SCM       scm.SCM
	Logger    *logging.Logger
	Workers   int
}

// Open resolves the project root upward from startDir, loads its
// configuration, and opens the mtime cache and object store beneath it. It
// returns an error if no project root can be found.
func Open(startDir string, logger *logging.Logger) (*Context, error) {
	root, found, err := config.ProjectRoot(startDir)
	if err != nil {
		return nil, fmt.Errorf("unable to resolve project root: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("no %s directory found above %s", config.ControlDirName, startDir)
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, fmt.Errorf("unable to load project configuration: %w", err)
	}

	cache, err := mtimecache.Open(config.DatabasePath(root))
	if err != nil {
		return nil, err
	}

	cacheRoot := config.CacheRoot(root, cfg)
	store, err := objectstore.Open(cacheRoot, logger)
	if err != nil {
		cache.Close()
		return nil, err
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	adapter := &scm.Git{Binary: cfg.SCMBinary, Dir: root}

	return &Context{
		Root:      root,
		CacheRoot: cacheRoot,
		Config:    cfg,
		Cache:     cache,
		Store:     store,
		SCM:       adapter,
		Logger:    logger,
		Workers:   workers,
	}, nil
}

// Init creates a new project control directory at root, writing the
// default configuration. It is a no-op on the cache/store/SCM wiring,
// which Open performs on the next call.
func Init(root string) error {
	return config.Init(root)
}

// Close releases the context's owned resources. Safe to call on a nil
// Context.
func (c *Context) Close() error {
	if c == nil || c.Cache == nil {
		return nil
	}
	return c.Cache.Close()
}
