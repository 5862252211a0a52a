package scanner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/g1mliii/compact-games-sub000/internal/logging"
)

// Steam keeps per-app manifest files beside the install tree
// (steamapps/appmanifest_<appid>.acf) and pre-rendered cover art in
// <steam root>/appcache/librarycache. The manifests are Valve KeyValues
// text; only two fields matter here, so a pattern match beats a parser.
var (
	manifestAppIDRe      = regexp.MustCompile(`"appid"\s+"(\d+)"`)
	manifestInstallDirRe = regexp.MustCompile(`"installdir"\s+"([^"]+)"`)
)

// steamCacheNames are probed in order under the librarycache directory;
// the 600x900 portrait grid is the canonical cover.
var steamCacheNames = []string{
	"%s_library_600x900.jpg",
	"%s/library_600x900.jpg",
	"%s_library_600x900.png",
}

// steamCachePriority ranks appid-prefixed fallback files when no
// deterministic name matched.
var steamCachePriority = []string{
	"library_600x900",
	"library_hero",
	"header",
	"logo",
	"icon",
}

const steamCacheScanBudget = 512

// SteamAppID resolves the numeric Steam app id for an install path via
// the manifest index. It returns false for paths outside a Steam library
// or installs without a manifest.
func (s *Scanner) SteamAppID(ctx context.Context, gamePath string) (string, bool) {
	steamappsDir, ok := findSteamappsDir(gamePath)
	if !ok {
		return "", false
	}
	appID, ok := s.manifestIndex(ctx, steamappsDir)[strings.ToLower(filepath.Base(gamePath))]
	return appID, ok
}

// steamLibraryCover resolves the game's numeric app id via the manifest
// index, then looks for its pre-rendered cover in the library cache.
func (s *Scanner) steamLibraryCover(ctx context.Context, gamePath string) (string, bool) {
	steamappsDir, ok := findSteamappsDir(gamePath)
	if !ok {
		return "", false
	}

	index := s.manifestIndex(ctx, steamappsDir)
	appID, ok := index[strings.ToLower(filepath.Base(gamePath))]
	if !ok {
		return "", false
	}

	libDir := filepath.Join(filepath.Dir(steamappsDir), "appcache", "librarycache")
	return libraryCachePath(libDir, appID)
}

// findSteamappsDir climbs from the install path looking for the enclosing
// steamapps directory.
func findSteamappsDir(gamePath string) (string, bool) {
	dir := filepath.Dir(gamePath)
	for {
		if strings.EqualFold(filepath.Base(dir), "steamapps") {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// manifestIndex returns the installdir -> appid mapping for one steamapps
// directory, built on demand and cached with a TTL so an external install
// or uninstall is picked up without rescanning on every call.
func (s *Scanner) manifestIndex(ctx context.Context, steamappsDir string) map[string]string {
	key := strings.ToLower(steamappsDir)
	if index, ok := s.manifests.Get(key); ok {
		return index
	}

	index := buildManifestIndex(steamappsDir)
	s.manifests.Set(key, index)

	logging.FromContext(ctx).Debug().
		Str("dir", steamappsDir).
		Int("apps", len(index)).
		Msg("built steam manifest index")
	return index
}

func buildManifestIndex(steamappsDir string) map[string]string {
	index := make(map[string]string)

	entries, err := os.ReadDir(steamappsDir)
	if err != nil {
		return index
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "appmanifest_") || !strings.HasSuffix(name, ".acf") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(steamappsDir, name))
		if err != nil {
			continue
		}

		appID := manifestAppIDRe.FindSubmatch(data)
		installDir := manifestInstallDirRe.FindSubmatch(data)
		if appID == nil || installDir == nil {
			continue
		}
		index[strings.ToLower(string(installDir[1]))] = string(appID[1])
	}
	return index
}

// libraryCachePath probes the deterministic cover filenames for an app id,
// then falls back to a prefix-restricted scan of the cache directory.
func libraryCachePath(libDir, appID string) (string, bool) {
	for _, pattern := range steamCacheNames {
		candidate := filepath.Join(libDir, fmt.Sprintf(pattern, appID))
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
	}

	entries, err := os.ReadDir(libDir)
	if err != nil {
		return "", false
	}

	bestRank := len(steamCachePriority)
	best := ""
	budget := steamCacheScanBudget
	for _, entry := range entries {
		if budget <= 0 {
			break
		}
		budget--

		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, appID+"_") {
			continue
		}
		if !imageExtensions[strings.ToLower(filepath.Ext(name))] {
			continue
		}
		for rank, token := range steamCachePriority {
			if rank >= bestRank {
				break
			}
			if strings.Contains(strings.ToLower(name), token) {
				bestRank = rank
				best = filepath.Join(libDir, name)
				break
			}
		}
	}
	return best, best != ""
}
