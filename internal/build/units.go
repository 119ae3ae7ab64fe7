package build

import (
	"fmt"
	"sync"

	"github.com/conneroisu/srcdoc/internal/cache"
	"github.com/conneroisu/srcdoc/internal/codec"
	srcerrors "github.com/conneroisu/srcdoc/internal/errors"
	"github.com/conneroisu/srcdoc/internal/fingerprint"
	"github.com/conneroisu/srcdoc/internal/types"
)

// unitStage serves per-unit cache lookups for a running transform and holds
// newly computed units until the session commits. Nothing reaches the shared
// cache before commit.
type unitStage struct {
	cache       cache.Cache
	preset      fingerprint.PresetIdentity
	options     types.Options
	compression codec.Compression
	minSize     int

	mu      sync.Mutex
	staged  map[string]cache.Entry
	order   []string
	hits     int
	failure  error
	volatile bool
}

func newUnitStage(c cache.Cache, p fingerprint.PresetIdentity, opts types.Options, compression codec.Compression, minSize int) *unitStage {
	return &unitStage{
		cache:       c,
		preset:      p,
		options:     opts,
		compression: compression,
		minSize:     minSize,
		staged:      make(map[string]cache.Entry),
	}
}

// Lookup returns a unit computed earlier in this session or by any previous
// committed session.
func (u *unitStage) Lookup(path, content string) (cache.Entry, bool) {
	key, err := fingerprint.Unit(u.preset, path, content, u.options)
	if err != nil {
		u.fail(err)
		return cache.Entry{}, false
	}

	u.mu.Lock()
	if packed, ok := u.staged[key]; ok {
		u.mu.Unlock()
		return u.unpack(packed)
	}
	u.mu.Unlock()

	packed, found, err := safeGet(u.cache, key)
	if err != nil {
		u.fail(err)
		return cache.Entry{}, false
	}
	if !found {
		return cache.Entry{}, false
	}

	entry, ok := u.unpack(packed)
	if ok {
		u.mu.Lock()
		u.hits++
		u.mu.Unlock()
	}

	return entry, ok
}

// Store stages a computed unit.
func (u *unitStage) Store(path, content string, entry cache.Entry) {
	key, err := fingerprint.Unit(u.preset, path, content, u.options)
	if err != nil {
		u.fail(err)
		return
	}

	packed, err := codec.Pack(entry.Artifact, u.compression, u.minSize)
	if err != nil {
		u.fail(srcerrors.NewInternalError(srcerrors.ErrCodeCacheFailure, "encode unit "+path, err))
		return
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	if _, exists := u.staged[key]; exists {
		return
	}
	u.staged[key] = cache.Entry{Artifact: packed, Diagnostics: cloneStrings(entry.Diagnostics)}
	u.order = append(u.order, key)
}

func (u *unitStage) unpack(packed cache.Entry) (cache.Entry, bool) {
	artifact, err := codec.Unpack(packed.Artifact)
	if err != nil {
		return cache.Entry{}, false
	}

	return cache.Entry{Artifact: artifact, Diagnostics: packed.Diagnostics}, true
}

func (u *unitStage) fail(err error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.failure == nil {
		u.failure = err
	}
}

func (u *unitStage) err() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	return u.failure
}

func (u *unitStage) hitCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()

	return u.hits
}

func (u *unitStage) markVolatile() {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.volatile = true
}

func (u *unitStage) isVolatile() bool {
	u.mu.Lock()
	defer u.mu.Unlock()

	return u.volatile
}

// commit writes the staged units and then the build entry.
func (u *unitStage) commit(buildKey string, build cache.Entry) error {
	if err := u.commitUnits(); err != nil {
		return err
	}

	return safePut(u.cache, buildKey, build)
}

// commitUnits writes only the staged units.
func (u *unitStage) commitUnits() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	for _, key := range u.order {
		if err := safePut(u.cache, key, u.staged[key]); err != nil {
			return err
		}
	}

	return nil
}

// safeGet and safePut turn a panicking cache implementation into an error.
func safeGet(c cache.Cache, key string) (entry cache.Entry, found bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			entry, found = cache.Entry{}, false
			err = srcerrors.NewInternalError(srcerrors.ErrCodeCacheFailure,
				"internal error: cache read failed", fmt.Errorf("%v", r))
		}
	}()

	entry, found = c.Get(key)

	return entry, found, nil
}

func safePut(c cache.Cache, key string, entry cache.Entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = srcerrors.NewInternalError(srcerrors.ErrCodeCacheFailure,
				"internal error: cache write failed", fmt.Errorf("%v", r))
		}
	}()

	c.Put(key, entry)

	return nil
}
