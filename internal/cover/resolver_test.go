package cover

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/g1mliii/compact-games-sub000/internal/cover/diskcache"
	"github.com/g1mliii/compact-games-sub000/internal/cover/scanner"
)

// stubCatalog counts lookups and serves canned bytes, optionally blocking
// until released.
type stubCatalog struct {
	mu      sync.Mutex
	lookups int
	data    []byte
	err     error
	block   chan struct{}
}

func (s *stubCatalog) Lookup(ctx context.Context, name, platformAppID, credential string) ([]byte, error) {
	s.mu.Lock()
	s.lookups++
	block := s.block
	s.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.data, s.err
}

func (s *stubCatalog) ClearCaches() {}
func (s *stubCatalog) Trim(int) {}

func (s *stubCatalog) lookupCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookups
}

// pngFixture builds a minimal parseable PNG header with the given size.
func pngFixture(width, height uint32) []byte {
	data := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	data = append(data, 0x00, 0x00, 0x00, 0x0d)
	data = append(data, 'I', 'H', 'D', 'R')
	data = binary.BigEndian.AppendUint32(data, width)
	data = binary.BigEndian.AppendUint32(data, height)
	return append(data, 0x08, 0x06, 0x00, 0x00, 0x00)
}

func newTestResolver(t *testing.T, remote catalogClient, cfg Config) *Resolver {
	t.Helper()
	disk, err := diskcache.New(t.TempDir(), diskcache.Options{})
	require.NoError(t, err)
	return NewResolver(disk, scanner.New(scanner.Options{}), remote, cfg)
}

func writeGameDir(t *testing.T, files map[string][]byte) string {
	t.Helper()
	dir := t.TempDir()
	for name, data := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
		require.NoError(t, os.WriteFile(path, data, 0o600))
	}
	return dir
}

func TestResolve_LocalFindAndIdempotence(t *testing.T) {
	remote := &stubCatalog{err: errors.New("unreachable")}
	r := newTestResolver(t, remote, Config{})
	dir := writeGameDir(t, map[string][]byte{
		"Foo_Cover.jpg": []byte("jpeg bytes"),
		"readme.txt":    []byte("not an image"),
	})
	game := GameRecord{Path: dir, Name: "Foo"}

	res := r.Resolve(context.Background(), game, "")
	require.True(t, res.Found())
	assert.Equal(t, TierGameFolderImage, res.Tier)
	assert.Equal(t, filepath.Join(dir, "Foo_Cover.jpg"), res.Locator)

	// The second call must come from memory even after the source file is
	// gone.
	require.NoError(t, os.Remove(res.Locator))
	again := r.Resolve(context.Background(), game, "")
	assert.Equal(t, res, again)
	assert.Zero(t, remote.lookupCount())
}

func TestResolve_WritesLocalFindThroughToDisk(t *testing.T) {
	r := newTestResolver(t, &stubCatalog{}, Config{})
	dir := writeGameDir(t, map[string][]byte{"cover.png": pngFixture(600, 900)})
	game := GameRecord{Path: dir, Name: "Foo"}

	res := r.Resolve(context.Background(), game, "")
	require.True(t, res.Found())

	path, ok := r.disk.Read(Key(dir))
	require.True(t, ok)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, pngFixture(600, 900), data)
}

func TestResolve_CachedMiss(t *testing.T) {
	remote := &stubCatalog{data: pngFixture(600, 900)}
	r := newTestResolver(t, remote, Config{})
	dir := t.TempDir() // no image anywhere
	game := GameRecord{Path: dir, Name: "Foo"}

	res := r.Resolve(context.Background(), game, "")
	assert.Equal(t, Result{}, res)
	assert.False(t, res.Found())

	// The miss is a cached fact: no tier is consulted again, not even the
	// remote one after a credential shows up.
	again := r.Resolve(context.Background(), game, "secret")
	assert.Equal(t, Result{}, again)
	assert.Zero(t, remote.lookupCount())

	candidates := r.PlaceholderRefreshCandidates([]string{dir, "no-such-game"})
	assert.Equal(t, []string{dir}, candidates)

	// Explicit invalidation is the escape hatch.
	r.InvalidateMany(candidates)
	upgraded := r.Resolve(context.Background(), game, "secret")
	assert.Equal(t, TierRemoteCatalog, upgraded.Tier)
	assert.Equal(t, 1, remote.lookupCount())
}

func TestResolve_ConcurrentCallsShareOneResolution(t *testing.T) {
	remote := &stubCatalog{data: pngFixture(600, 900), block: make(chan struct{})}
	r := newTestResolver(t, remote, Config{})
	game := GameRecord{Path: t.TempDir(), Name: "Foo"}

	const callers = 8
	results := make(chan Result, callers)
	var started sync.WaitGroup
	started.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			started.Done()
			results <- r.Resolve(context.Background(), game, "secret")
		}()
	}
	started.Wait()
	// Give the goroutines a moment to pile up on the shared flight.
	time.Sleep(50 * time.Millisecond)
	close(remote.block)

	for i := 0; i < callers; i++ {
		res := <-results
		assert.Equal(t, TierRemoteCatalog, res.Tier)
	}
	assert.Equal(t, 1, remote.lookupCount())
}

func TestResolve_QualityUpgradeFromDisk(t *testing.T) {
	remote := &stubCatalog{data: pngFixture(600, 900)}
	r := newTestResolver(t, remote, Config{})
	dir := t.TempDir()
	key := Key(dir)
	_, err := r.disk.Write(key, pngFixture(200, 200))
	require.NoError(t, err)

	res := r.Resolve(context.Background(), GameRecord{Path: dir, Name: "Foo"}, "secret")
	assert.Equal(t, TierRemoteCatalog, res.Tier)
	assert.Equal(t, 1, remote.lookupCount())

	data, readErr := os.ReadFile(res.Locator)
	require.NoError(t, readErr)
	assert.Equal(t, pngFixture(600, 900), data, "disk entry replaced by the upgrade")

	cached := r.Resolve(context.Background(), GameRecord{Path: dir, Name: "Foo"}, "secret")
	assert.Equal(t, res, cached)
}

func TestResolve_UpgradeFailureKeepsDiskResult(t *testing.T) {
	remote := &stubCatalog{err: errors.New("catalog down")}
	r := newTestResolver(t, remote, Config{})
	dir := t.TempDir()
	path, err := r.disk.Write(Key(dir), pngFixture(200, 200))
	require.NoError(t, err)

	res := r.Resolve(context.Background(), GameRecord{Path: dir, Name: "Foo"}, "secret")
	assert.Equal(t, TierCache, res.Tier)
	assert.Equal(t, path, res.Locator)
	assert.Equal(t, 1, remote.lookupCount())
}

func TestResolve_PreferredDiskCoverSkipsRemote(t *testing.T) {
	remote := &stubCatalog{data: pngFixture(600, 900)}
	r := newTestResolver(t, remote, Config{})
	dir := t.TempDir()
	_, err := r.disk.Write(Key(dir), pngFixture(600, 900))
	require.NoError(t, err)

	res := r.Resolve(context.Background(), GameRecord{Path: dir, Name: "Foo"}, "secret")
	assert.Equal(t, TierCache, res.Tier)
	assert.Zero(t, remote.lookupCount(), "a preferred cover needs no upgrade")
}

func TestResolve_BackPressureMissIsNotCached(t *testing.T) {
	remote := &stubCatalog{data: pngFixture(600, 900), block: make(chan struct{})}
	r := newTestResolver(t, remote, Config{MaxInFlight: 1})

	blocked := GameRecord{Path: t.TempDir(), Name: "Blocked"}
	go r.Resolve(context.Background(), blocked, "secret")
	require.Eventually(t, func() bool {
		return remote.lookupCount() == 1
	}, time.Second, 5*time.Millisecond)

	dir := writeGameDir(t, map[string][]byte{"cover.png": pngFixture(600, 900)})
	crowded := GameRecord{Path: dir, Name: "Crowded"}
	res := r.Resolve(context.Background(), crowded, "")
	assert.False(t, res.Found())

	_, cached := r.results.Peek(Key(dir))
	assert.False(t, cached, "a back-pressure miss must not become a cached fact")

	close(remote.block)
	// Once pressure subsides the same game resolves normally.
	require.Eventually(t, func() bool {
		return r.Resolve(context.Background(), crowded, "").Found()
	}, time.Second, 5*time.Millisecond)
}

func TestResolve_EstimateHints(t *testing.T) {
	r := newTestResolver(t, &stubCatalog{}, Config{})
	artDir := writeGameDir(t, map[string][]byte{"boxart.png": pngFixture(600, 900)})
	art := filepath.Join(artDir, "boxart.png")
	gameDir := t.TempDir()

	r.PrimeEstimate(gameDir, art, "")
	res := r.Resolve(context.Background(), GameRecord{Path: gameDir, Name: "Foo"}, "")
	assert.Equal(t, TierGameFolderImage, res.Tier)
	assert.Equal(t, art, res.Locator)
}

func TestResolve_ExecutableHintScansItsDirectory(t *testing.T) {
	r := newTestResolver(t, &stubCatalog{}, Config{})
	exeDir := writeGameDir(t, map[string][]byte{
		"game.exe":  []byte("mz"),
		"cover.jpg": []byte("jpeg"),
	})
	gameDir := t.TempDir()

	r.PrimeEstimate(gameDir, filepath.Join(gameDir, "gone.png"), filepath.Join(exeDir, "game.exe"))
	res := r.Resolve(context.Background(), GameRecord{Path: gameDir, Name: "Foo"}, "")
	assert.Equal(t, TierGameFolderImage, res.Tier)
	assert.Equal(t, filepath.Join(exeDir, "cover.jpg"), res.Locator)
}

func TestInvalidateDropsOnlyTheGivenKey(t *testing.T) {
	r := newTestResolver(t, &stubCatalog{}, Config{})
	a := writeGameDir(t, map[string][]byte{"cover.png": pngFixture(600, 900)})
	b := writeGameDir(t, map[string][]byte{"cover.png": pngFixture(600, 900)})

	r.Resolve(context.Background(), GameRecord{Path: a, Name: "A"}, "")
	r.Resolve(context.Background(), GameRecord{Path: b, Name: "B"}, "")
	r.Invalidate(a)

	_, okA := r.results.Peek(Key(a))
	_, okB := r.results.Peek(Key(b))
	assert.False(t, okA)
	assert.True(t, okB)
}

func TestRefreshPlaceholdersDropsOnlyMisses(t *testing.T) {
	r := newTestResolver(t, &stubCatalog{}, Config{})
	hit := writeGameDir(t, map[string][]byte{"cover.png": pngFixture(600, 900)})
	miss := t.TempDir()

	r.Resolve(context.Background(), GameRecord{Path: hit, Name: "Hit"}, "")
	r.Resolve(context.Background(), GameRecord{Path: miss, Name: "Miss"}, "")

	assert.Equal(t, 1, r.RefreshPlaceholders())

	_, okHit := r.results.Peek(Key(hit))
	_, okMiss := r.results.Peek(Key(miss))
	assert.True(t, okHit)
	assert.False(t, okMiss)
}

func TestTrim(t *testing.T) {
	r := newTestResolver(t, &stubCatalog{}, Config{})
	for i := 0; i < 4; i++ {
		dir := writeGameDir(t, map[string][]byte{"cover.png": pngFixture(600, 900)})
		r.Resolve(context.Background(), GameRecord{Path: dir, Name: "G"}, "")
	}
	require.Equal(t, 4, r.results.Len())

	r.Trim(false)
	assert.Equal(t, 2, r.results.Len())

	r.Trim(true)
	assert.Zero(t, r.results.Len())
	assert.Zero(t, r.hints.Len())
}
