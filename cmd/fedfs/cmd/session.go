package cmd

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/aweris/fedfs"
	"github.com/aweris/fedfs/internal/config"
	"github.com/aweris/fedfs/internal/seed"
)

// session is a workspace built from the configuration, with the stores
// backing each source.
type session struct {
	ws     *fedfs.Workspace
	cfg    *config.Config
	stores map[string]*fedfs.NodeStore
}

// readOnly hides a connector's write methods.
type readOnly struct {
	fedfs.Connector
}

func openSession() (*session, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	mergeOpts, err := cfg.MergeOptions()
	if err != nil {
		return nil, err
	}

	opts := []fedfs.OpenOption{
		fedfs.WithMergeOptions(mergeOpts),
		fedfs.WithCachePolicy(cfg.CachePolicy()),
		fedfs.WithMaxEntries(cfg.Cache.MaxEntries),
		fedfs.WithWeakReferences(cfg.Cache.WeakReferences),
		fedfs.WithRevalidation(cfg.Cache.Revalidate),
		fedfs.WithConcurrency(cfg.Merge.Concurrency),
		fedfs.WithLogger(slog.Default()),
	}

	stores := make(map[string]*fedfs.NodeStore, len(cfg.Sources))
	for _, src := range cfg.Sources {
		store := fedfs.NewNodeStore()
		if src.Seed != "" {
			tree, err := seed.ReadFile(seedPath(src.Seed))
			if err != nil {
				return nil, fmt.Errorf("source %s: %w", src.Name, err)
			}
			if err := tree.Apply(store); err != nil {
				return nil, fmt.Errorf("source %s: %w", src.Name, err)
			}
		}
		stores[src.Name] = store

		var conn fedfs.Connector = fedfs.NewStoreConnector(store, fedfs.WithContributionTTL(src.ContributionTTL(), nil))
		if src.ReadOnly {
			conn = readOnly{conn}
		}
		opts = append(opts, fedfs.WithSource(src.Name, src.MountPath(), conn))
	}

	ws, err := fedfs.Open(cfg.Workspace, opts...)
	if err != nil {
		return nil, err
	}
	return &session{ws: ws, cfg: cfg, stores: stores}, nil
}

// save writes every writable, seeded source back to its seed file.
func (s *session) save() error {
	for _, src := range s.cfg.Sources {
		if src.ReadOnly || src.Seed == "" {
			continue
		}
		tree, err := seed.Export(s.stores[src.Name], fedfs.Root)
		if err != nil {
			return fmt.Errorf("source %s: %w", src.Name, err)
		}
		if err := seed.WriteFile(seedPath(src.Seed), tree); err != nil {
			return fmt.Errorf("source %s: %w", src.Name, err)
		}
		slog.Debug("saved source", "source", src.Name, "seed", src.Seed)
	}
	return nil
}

func (s *session) Close() error {
	return s.ws.Close()
}

// seedPath resolves relative seed paths against the config file's directory.
func seedPath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	if used := viper.ConfigFileUsed(); used != "" {
		return filepath.Join(filepath.Dir(used), p)
	}
	return p
}
