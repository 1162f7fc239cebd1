package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/atvirokodosprendimai/desiauth/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/desiauth/internal/core/domain"
	"github.com/atvirokodosprendimai/desiauth/internal/core/ports"
	"github.com/atvirokodosprendimai/desiauth/migrations"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var tenantIDPattern = regexp.MustCompile(`^[a-zA-Z0-9-]{1,64}$`)

// RegistryPath and TenantStorePath define the on-disk layout; tooling and
// backups locate a tenant's file from its id alone.
func RegistryPath(dataDir string) string {
	return filepath.Join(dataDir, "registry.sqlite")
}

func TenantStorePath(dataDir, tenantID string) string {
	return filepath.Join(dataDir, "tenants", tenantID+".sqlite")
}

// OpenRegistry opens and migrates the global registry file.
func OpenRegistry(ctx context.Context, dataDir string, opts ...gormsqlite.Option) (*gormsqlite.DB, error) {
	db, err := gormsqlite.Open(RegistryPath(dataDir), opts...)
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}
	writeSQLDB, err := db.WriteSQLDB()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("resolve registry writer: %w", err)
	}
	if err := migrations.UpRegistry(ctx, writeSQLDB); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Stores opens tenant stores lazily and keeps them open until Evict or Close.
type Stores struct {
	dataDir string
	logger  *zap.Logger

	mu    sync.Mutex
	open  map[string]*TenantStore
	group singleflight.Group
}

var _ ports.TenantStores = (*Stores)(nil)

func NewStores(dataDir string, logger *zap.Logger) *Stores {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stores{
		dataDir: dataDir,
		logger:  logger.With(zap.String("component", "tenant-stores")),
		open:    make(map[string]*TenantStore),
	}
}

// Open returns the store for tenantID, creating the file and applying pending
// migrations on first use. Concurrent first opens share one migration run.
func (s *Stores) Open(ctx context.Context, tenantID string) (ports.TenantStore, error) {
	if !tenantIDPattern.MatchString(tenantID) {
		return nil, fmt.Errorf("tenant id %q: %w", tenantID, domain.ErrInvalidInput)
	}
	if st := s.cached(tenantID); st != nil {
		return st, nil
	}

	v, err, _ := s.group.Do(tenantID, func() (any, error) {
		if st := s.cached(tenantID); st != nil {
			return st, nil
		}
		// the open is shared with every waiter, so one caller going away
		// must not abort the migration for the rest
		st, err := s.openStore(context.WithoutCancel(ctx), tenantID)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.open[tenantID] = st
		s.mu.Unlock()
		return st, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*TenantStore), nil
}

func (s *Stores) cached(tenantID string) *TenantStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open[tenantID]
}

func (s *Stores) openStore(ctx context.Context, tenantID string) (*TenantStore, error) {
	start := time.Now()
	path := TenantStorePath(s.dataDir, tenantID)
	db, err := gormsqlite.Open(path, gormsqlite.WithLogger(s.logger.With(zap.String("tenant_id", tenantID))))
	if err != nil {
		return nil, fmt.Errorf("open tenant store %s: %w", tenantID, err)
	}
	writeSQLDB, err := db.WriteSQLDB()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("resolve tenant writer: %w", err)
	}
	version, err := migrations.UpTenant(ctx, writeSQLDB)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate tenant store %s: %w", tenantID, err)
	}
	s.logger.Debug("tenant store opened",
		zap.String("tenant_id", tenantID),
		zap.String("path", path),
		zap.Int64("schema_version", version),
		zap.Duration("elapsed", time.Since(start)),
	)
	return NewTenantStore(tenantID, db), nil
}

// Evict closes and forgets the cached store of tenantID, if any.
func (s *Stores) Evict(tenantID string) error {
	s.mu.Lock()
	st, ok := s.open[tenantID]
	delete(s.open, tenantID)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return st.Close()
}

func (s *Stores) Close() error {
	s.mu.Lock()
	open := s.open
	s.open = make(map[string]*TenantStore)
	s.mu.Unlock()

	var err error
	for _, st := range open {
		err = multierr.Append(err, st.Close())
	}
	return err
}
