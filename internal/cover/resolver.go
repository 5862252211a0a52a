package cover

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/g1mliii/compact-games-sub000/internal/cache"
	"github.com/g1mliii/compact-games-sub000/internal/cover/diskcache"
	"github.com/g1mliii/compact-games-sub000/internal/cover/imagemeta"
	"github.com/g1mliii/compact-games-sub000/internal/cover/scanner"
	"github.com/g1mliii/compact-games-sub000/internal/logging"
)

// Caps applied by a non-aggressive Trim.
const (
	trimmedVerdictEntries = 256
	trimmedLookupEntries  = 128
)

// catalogClient is the remote tier as the resolver needs it.
type catalogClient interface {
	Lookup(ctx context.Context, name, platformAppID, credential string) ([]byte, error)
	ClearCaches()
	Trim(max int)
}

// localScanner is the local filesystem tier as the resolver needs it.
type localScanner interface {
	Resolve(ctx context.Context, gamePath, platform string) (scanner.Candidate, bool)
	ScanShallow(dir string) (string, bool)
	SteamAppID(ctx context.Context, gamePath string) (string, bool)
	ClearIndexes()
}

// EstimateHint records likely cover locations for a game, primed by an
// external estimation step and consulted before any full filesystem scan.
type EstimateHint struct {
	ArtworkPath    string
	ExecutablePath string
}

// Config bounds the resolver's own caches. Zero values fall back to defaults.
type Config struct {
	ResultCapacity  int // resolved results kept in memory
	HintCapacity    int // primed estimate hints
	MaxInFlight     int // concurrent resolutions before back-pressure
	VerdictCapacity int // memoized image quality verdicts
}

func (c *Config) applyDefaults() {
	if c.ResultCapacity <= 0 {
		c.ResultCapacity = 512
	}
	if c.HintCapacity <= 0 {
		c.HintCapacity = 256
	}
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = 64
	}
}

// Resolver is the cover-resolution cascade: memory cache, in-flight dedup,
// disk cache, local scanner, remote catalog, in that order. Resolve never
// returns an error; every internal failure degrades to a lower tier or to a
// TierNone result.
type Resolver struct {
	disk    *diskcache.Cache
	local   localScanner
	remote  catalogClient
	quality *imagemeta.Classifier

	results *cache.LRU[string, Result]
	hints   *cache.LRU[string, EstimateHint]
	flights *flightTable
}

// NewResolver composes the cascade from its tiers. remote may be nil when no
// catalog is configured; the remote tier is then skipped entirely.
func NewResolver(disk *diskcache.Cache, local *scanner.Scanner, remote catalogClient, cfg Config) *Resolver {
	cfg.applyDefaults()
	return &Resolver{
		disk:    disk,
		local:   local,
		remote:  remote,
		quality: imagemeta.NewClassifier(cfg.VerdictCapacity),
		results: cache.NewLRU[string, Result](cfg.ResultCapacity),
		hints:   cache.NewLRU[string, EstimateHint](cfg.HintCapacity),
		flights: newFlightTable(cfg.MaxInFlight),
	}
}

// Resolve returns the cover for a game, walking the cascade on a cold key.
// Concurrent calls for the same game share one resolution. When the
// in-flight table is full, a new key gets a TierNone result that is NOT
// cached, so the game is retried once pressure subsides.
func (r *Resolver) Resolve(ctx context.Context, game GameRecord, credential string) Result {
	key := Key(game.Path)

	if res, ok := r.results.Get(key); ok {
		return res
	}

	res, ran := r.flights.do(key, func() Result {
		return r.resolveUncached(ctx, key, game, credential)
	})
	if !ran {
		logging.FromContext(ctx).Debug().
			Str("game", game.Name).
			Msg("resolution table full, returning uncached miss")
		return Result{}
	}
	return res
}

// resolveUncached runs tiers 3..6 of the cascade. Every terminal outcome,
// including TierNone, is written to the memory cache exactly once.
func (r *Resolver) resolveUncached(ctx context.Context, key string, game GameRecord, credential string) Result {
	// A joiner that raced past the flight table may land here after the
	// leader already finished.
	if res, ok := r.results.Get(key); ok {
		return res
	}

	log := logging.FromContext(ctx).With().Str("game", game.Name).Logger()

	if path, ok := r.disk.Read(key); ok {
		res := Result{Locator: path, Tier: TierCache}
		res = r.maybeUpgrade(ctx, key, game, credential, res)
		r.results.Set(key, res)
		return res
	}

	if path, tier, ok := r.localSource(ctx, key, game); ok {
		res := Result{Locator: path, Tier: tier}
		upgraded := r.maybeUpgrade(ctx, key, game, credential, res)
		if upgraded.Tier == res.Tier {
			// Keeping the local find: write it through so the next cold
			// start is a disk hit.
			if _, err := r.disk.WriteFrom(key, path); err != nil {
				log.Debug().Err(err).Msg("cover write-through failed")
			}
		}
		r.results.Set(key, upgraded)
		return upgraded
	}

	if res, ok := r.remoteResult(ctx, key, game, credential); ok {
		r.results.Set(key, res)
		return res
	}

	log.Debug().Msg("no cover resolved, caching miss")
	r.results.Set(key, Result{})
	return Result{}
}

// maybeUpgrade attempts one remote replacement of a low-quality local or
// cached cover. The current result is kept whenever the upgrade cannot
// happen or fails.
func (r *Resolver) maybeUpgrade(ctx context.Context, key string, game GameRecord, credential string, current Result) Result {
	if credential == "" || r.remote == nil {
		return current
	}
	if r.quality.IsPreferredCover(current.Locator) {
		return current
	}
	if upgraded, ok := r.remoteResult(ctx, key, game, credential); ok {
		return upgraded
	}
	return current
}

// localSource tries the estimate-hint shortcuts, then the scanner's full
// platform-aware search.
func (r *Resolver) localSource(ctx context.Context, key string, game GameRecord) (string, Tier, bool) {
	if hint, ok := r.hints.Get(key); ok {
		if hint.ArtworkPath != "" && fileExists(hint.ArtworkPath) {
			return hint.ArtworkPath, TierGameFolderImage, true
		}
		if hint.ExecutablePath != "" {
			if path, ok := r.local.ScanShallow(filepath.Dir(hint.ExecutablePath)); ok {
				return path, TierGameFolderImage, true
			}
		}
	}

	candidate, ok := r.local.Resolve(ctx, game.Path, game.Platform)
	if !ok {
		return "", TierNone, false
	}
	return candidate.Path, tierForSource(candidate.Source), true
}

// remoteResult looks the game up in the catalog and persists the image to
// disk; the cached file path is the result's locator.
func (r *Resolver) remoteResult(ctx context.Context, key string, game GameRecord, credential string) (Result, bool) {
	if credential == "" || r.remote == nil {
		return Result{}, false
	}

	var platformAppID string
	if strings.EqualFold(game.Platform, "steam") {
		platformAppID, _ = r.local.SteamAppID(ctx, game.Path)
	}

	log := logging.FromContext(ctx)
	data, err := r.remote.Lookup(ctx, game.Name, platformAppID, credential)
	if err != nil {
		log.Debug().Err(err).Str("game", game.Name).Msg("remote catalog lookup failed")
		return Result{}, false
	}

	path, err := r.disk.Write(key, data)
	if err != nil {
		log.Warn().Err(err).Str("game", game.Name).Msg("persisting remote cover failed")
		return Result{}, false
	}
	// The old verdict belongs to whatever bytes the path held before.
	r.quality.Forget(path)
	return Result{Locator: path, Tier: TierRemoteCatalog}, true
}

// PrimeEstimate records likely cover locations for a game ahead of its
// first resolution.
func (r *Resolver) PrimeEstimate(path, artworkPath, executablePath string) {
	r.hints.Set(Key(path), EstimateHint{
		ArtworkPath:    artworkPath,
		ExecutablePath: executablePath,
	})
}

// Invalidate drops the cached result and any in-flight resolution for a
// game path. The disk cache is left alone.
func (r *Resolver) Invalidate(path string) {
	key := Key(path)
	r.results.Remove(key)
	r.flights.forget(key)
}

// InvalidateMany invalidates a batch of game paths.
func (r *Resolver) InvalidateMany(paths []string) {
	for _, path := range paths {
		r.Invalidate(path)
	}
}

// PlaceholderRefreshCandidates returns the subset of paths whose cached
// result is a confirmed miss. Callers invalidate these after a change that
// could make a retry worthwhile, such as a credential being configured.
func (r *Resolver) PlaceholderRefreshCandidates(paths []string) []string {
	var candidates []string
	for _, path := range paths {
		if res, ok := r.results.Peek(Key(path)); ok && !res.Found() {
			candidates = append(candidates, path)
		}
	}
	return candidates
}

// RefreshPlaceholders drops every cached miss so the next lookup for those
// games walks the cascade again. Useful after a catalog credential becomes
// available, since earlier misses never tried the remote tier with it.
func (r *Resolver) RefreshPlaceholders() int {
	var dropped int
	for _, key := range r.results.Keys() {
		if res, ok := r.results.Peek(key); ok && !res.Found() {
			r.results.Remove(key)
			dropped++
		}
	}
	return dropped
}

// ClearLookupCaches drops the remote-lookup and manifest-index caches so
// the next resolutions hit the catalog fresh. Resolved results and the disk
// image cache are kept.
func (r *Resolver) ClearLookupCaches() {
	if r.remote != nil {
		r.remote.ClearCaches()
	}
	r.local.ClearIndexes()
}

// Trim sheds memory. A plain trim halves each cache; an aggressive trim
// clears everything in memory, leaving only the disk cache populated.
func (r *Resolver) Trim(aggressive bool) {
	if aggressive {
		r.results.Clear()
		r.hints.Clear()
		r.quality.Clear()
		if r.remote != nil {
			r.remote.ClearCaches()
		}
		r.local.ClearIndexes()
		return
	}
	r.results.TrimTo(r.results.Len() / 2)
	r.hints.TrimTo(r.hints.Len() / 2)
	r.quality.Trim(trimmedVerdictEntries)
	if r.remote != nil {
		r.remote.Trim(trimmedLookupEntries)
	}
}

// DiskCache exposes the underlying image store for maintenance commands.
func (r *Resolver) DiskCache() *diskcache.Cache {
	return r.disk
}

func tierForSource(src scanner.Source) Tier {
	switch src {
	case scanner.SourceLibraryCache:
		return TierPlatformLibraryCache
	case scanner.SourceLauncherLocal:
		return TierLauncherLocal
	default:
		return TierGameFolderImage
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
