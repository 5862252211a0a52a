// Package scanner finds cover images on the local filesystem: launcher
// cache subfolders and platform image stores first, then a scored walk of
// the install directory itself. Every walk is bounded in depth and in the
// number of files examined.
package scanner

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/g1mliii/compact-games-sub000/internal/cache"
	"github.com/g1mliii/compact-games-sub000/internal/logging"
)

// Source classifies where a local candidate was found.
type Source int

const (
	// SourceLibraryCache is a platform image store, e.g. Steam's librarycache.
	SourceLibraryCache Source = iota
	// SourceLauncherLocal is a launcher-managed cache subfolder.
	SourceLauncherLocal
	// SourceGameFolder is a scored scan of the install directory.
	SourceGameFolder
)

// coverKeywords ranks filename keywords from strongest to weakest signal.
// Earlier entries score higher.
var coverKeywords = []string{
	"cover",
	"boxart",
	"box",
	"poster",
	"front",
	"banner",
	"hero",
	"logo",
	"icon",
}

// imageExtensions lists accepted file extensions. Preferred formats earn a
// small score bonus over the rest.
var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
	".bmp":  true,
	".ico":  true,
}

var preferredExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
}

// launcherSubdirs maps a platform tag to local cache subfolders the
// launcher keeps inside the install directory.
var launcherSubdirs = map[string][]string{
	"gog":  {"webcache"},
	"epic": {".egstore"},
}

const (
	// keywordWeight spaces ranked keywords apart so rank dominates the
	// extension bonus.
	keywordWeight = 10
	extBonus      = 2

	shallowDepth  = 1
	shallowBudget = 64

	manifestIndexCapacity = 16
	manifestIndexTTL      = 10 * time.Minute
)

// Options bounds the scanner's filesystem walks.
type Options struct {
	MaxDepth int // directory depth for the generic install-dir scan
	MaxFiles int // file budget per walk
}

func (o *Options) applyDefaults() {
	if o.MaxDepth <= 0 {
		o.MaxDepth = 3
	}
	if o.MaxFiles <= 0 {
		o.MaxFiles = 2000
	}
}

// Candidate is a locally found image plus its provenance.
type Candidate struct {
	Path   string
	Source Source
}

// Scanner performs bounded local cover searches. It owns the Steam manifest
// index cache; everything else is stateless.
type Scanner struct {
	opts      Options
	manifests *cache.TTLCache[string, map[string]string]
}

// New creates a scanner.
func New(opts Options) *Scanner {
	opts.applyDefaults()
	return &Scanner{
		opts:      opts,
		manifests: cache.NewTTLCache[string, map[string]string](manifestIndexCapacity, manifestIndexTTL),
	}
}

// Resolve searches platform-specific sources first, then the install
// directory. It returns false when no bounded walk finds a candidate.
func (s *Scanner) Resolve(ctx context.Context, gamePath, platform string) (Candidate, bool) {
	log := logging.FromContext(ctx)

	if strings.EqualFold(platform, "steam") {
		if path, ok := s.steamLibraryCover(ctx, gamePath); ok {
			log.Debug().Str("path", path).Msg("cover found in steam library cache")
			return Candidate{Path: path, Source: SourceLibraryCache}, true
		}
	}

	for _, sub := range launcherSubdirs[strings.ToLower(platform)] {
		root := filepath.Join(gamePath, sub)
		if path, ok := s.FindCandidate(root, shallowDepth, shallowBudget); ok {
			log.Debug().Str("path", path).Msg("cover found in launcher cache folder")
			return Candidate{Path: path, Source: SourceLauncherLocal}, true
		}
	}

	if path, ok := s.FindCandidate(gamePath, s.opts.MaxDepth, s.opts.MaxFiles); ok {
		log.Debug().Str("path", path).Msg("cover found in game folder")
		return Candidate{Path: path, Source: SourceGameFolder}, true
	}

	return Candidate{}, false
}

// ScanShallow scores only the immediate contents of dir with a small file
// budget. Used for the estimate-hint shortcut around a known executable.
func (s *Scanner) ScanShallow(dir string) (string, bool) {
	return s.FindCandidate(dir, shallowDepth, shallowBudget)
}

// ClearIndexes drops the cached Steam manifest indexes.
func (s *Scanner) ClearIndexes() {
	s.manifests.Clear()
}

// FindCandidate walks root up to maxDepth levels deep, examining at most
// maxFiles files, and returns the highest-scoring image path. Files whose
// name matches no ranked keyword do not count as candidates.
func (s *Scanner) FindCandidate(root string, maxDepth, maxFiles int) (string, bool) {
	type scored struct {
		path  string
		score int
	}
	var best scored
	budget := maxFiles

	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			// A directory at depth N yields files at depth N+1.
			if path != root && depthBelow(root, path) >= maxDepth {
				return fs.SkipDir
			}
			return nil
		}

		if budget <= 0 {
			return fs.SkipAll
		}
		budget--

		score := scoreFilename(d.Name())
		if score > best.score {
			best = scored{path: path, score: score}
		}
		return nil
	})

	return best.path, best.score > 0
}

// depthBelow counts path separators between root and path.
func depthBelow(root, path string) int {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return 0
	}
	return strings.Count(rel, string(filepath.Separator)) + 1
}

// scoreFilename ranks a file by keyword position and extension. Zero means
// the file is not a cover candidate.
func scoreFilename(name string) int {
	ext := strings.ToLower(filepath.Ext(name))
	if !imageExtensions[ext] {
		return 0
	}

	base := strings.ToLower(strings.TrimSuffix(name, filepath.Ext(name)))
	for i, keyword := range coverKeywords {
		if strings.Contains(base, keyword) {
			score := (len(coverKeywords) - i) * keywordWeight
			if preferredExtensions[ext] {
				score += extBonus
			}
			return score
		}
	}
	return 0
}
