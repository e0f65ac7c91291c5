// Package catalog holds the content-package catalog: per-package price,
// currency and invite link. The catalog is externally owned configuration;
// this package only loads it and exposes immutable snapshots. The engine
// reads the snapshot valid at intent-creation time, so an admin reload never
// changes an in-flight purchase.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

var ErrUnknownPackage = errors.New("unknown package")

type Package struct {
	ID         string          `json:"-"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	Currency   string          `json:"currency"`
	InviteLink string          `json:"invite_link"`
	Enabled    bool            `json:"enabled"`
}

// Snapshot is an immutable view of the catalog. Callers keep the pointer
// they got for as long as they need consistent reads.
type Snapshot struct {
	Packages map[string]*Package
	LoadedAt time.Time
}

// Package returns the catalog entry, or ErrUnknownPackage for missing ids.
// Disabled packages are still returned; purchase eligibility is the
// caller's decision.
func (s *Snapshot) Package(id string) (*Package, error) {
	pkg, ok := s.Packages[id]
	if !ok {
		return nil, ErrUnknownPackage
	}
	return pkg, nil
}

// Store serves catalog snapshots. Reload swaps the whole snapshot pointer
// atomically; readers never see a half-updated catalog.
type Store struct {
	path    string
	current atomic.Pointer[Snapshot]
}

type catalogFile struct {
	Packages map[string]*Package `json:"packages"`
}

func NewStore(path string) (*Store, error) {
	s := &Store{path: path}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Reload() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read catalog file: %w", err)
	}

	var file catalogFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parse catalog file: %w", err)
	}
	if len(file.Packages) == 0 {
		return fmt.Errorf("catalog file %s has no packages", s.path)
	}

	snap := &Snapshot{
		Packages: make(map[string]*Package, len(file.Packages)),
		LoadedAt: time.Now(),
	}
	for id, pkg := range file.Packages {
		if pkg.InviteLink == "" {
			return fmt.Errorf("package %s has no invite link", id)
		}
		if pkg.Price.Sign() <= 0 {
			return fmt.Errorf("package %s has non-positive price", id)
		}
		pkg.ID = id
		snap.Packages[id] = pkg
	}

	s.current.Store(snap)
	return nil
}

func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}
