// Package cover resolves a representative cover image for installed games and
// keeps that resolution cheap on repeat lookups. The Resolver composes a
// memory cache, a disk cache, a local filesystem scanner and a remote catalog
// client into a single cascade; every tier degrades to the next one on
// failure and a confirmed miss is itself a cacheable result.
package cover

import (
	"encoding/base64"
	"strings"
)

// Tier identifies where a resolved cover came from.
type Tier int

const (
	// TierNone marks a confirmed miss: no cover could be resolved anywhere.
	TierNone Tier = iota
	// TierCache means the result was served from the engine's own disk cache.
	TierCache
	// TierPlatformLibraryCache means a platform image store (e.g. Steam's
	// librarycache) supplied the image.
	TierPlatformLibraryCache
	// TierLauncherLocal means a launcher-managed subfolder inside or beside
	// the install directory supplied the image.
	TierLauncherLocal
	// TierGameFolderImage means a scored scan of the install directory found
	// the image.
	TierGameFolderImage
	// TierRemoteCatalog means the remote image catalog supplied the image.
	TierRemoteCatalog
)

// String returns a stable lower-case name for the tier.
func (t Tier) String() string {
	switch t {
	case TierCache:
		return "cache"
	case TierPlatformLibraryCache:
		return "platform-library-cache"
	case TierLauncherLocal:
		return "launcher-local"
	case TierGameFolderImage:
		return "game-folder"
	case TierRemoteCatalog:
		return "remote-catalog"
	default:
		return "none"
	}
}

// GameRecord identifies one installed game. It is supplied per call by a
// discovery component; the install path is the identity and is compared
// case-insensitively.
type GameRecord struct {
	Path     string // stable install path
	Name     string // display name
	Platform string // platform tag, e.g. "steam", "gog"
}

// Result is the outcome of one resolution. Locator is a filesystem path to
// an image, or empty when Tier is TierNone. A TierNone Result is a stable,
// reusable fact, distinct from "not yet resolved".
type Result struct {
	Locator string
	Tier    Tier
}

// Found reports whether the result carries an image.
func (r Result) Found() bool {
	return r.Tier != TierNone && r.Locator != ""
}

// Key derives the deterministic cache key for a game path. The path is
// lowercased first so that case-insensitive filesystems map to one entry,
// then base64url-encoded so the key is safe as a filename on every platform.
func Key(path string) string {
	return base64.URLEncoding.EncodeToString([]byte(strings.ToLower(path)))
}
