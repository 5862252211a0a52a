package imagemeta

import (
	"path/filepath"
	"strings"

	"github.com/g1mliii/compact-games-sub000/internal/cache"
)

// Preferred-cover thresholds. A cover worth keeping over a remote upgrade
// must be reasonably large, portrait, and close to the 2:3 box-art shape.
const (
	minPreferredWidth  = 300
	minPreferredHeight = 450
	minAspectRatio     = 1.3 // height / width
	maxAspectRatio     = 1.6
)

// defaultVerdictCapacity bounds the per-path memoization cache.
const defaultVerdictCapacity = 2048

// hiResTokens mark filenames that are accepted without opening the file.
var hiResTokens = []string{
	"600x900",
	"library_600",
	"hires",
	"high-res",
}

// Classifier decides whether an image on disk is already a preferred cover,
// memoizing verdicts per case-folded path in a bounded LRU.
type Classifier struct {
	verdicts *cache.LRU[string, bool]
	sniff    func(string) (Dimensions, bool)
}

// NewClassifier creates a classifier with a bounded verdict cache.
func NewClassifier(capacity int) *Classifier {
	if capacity <= 0 {
		capacity = defaultVerdictCapacity
	}
	return &Classifier{
		verdicts: cache.NewLRU[string, bool](capacity),
		sniff:    SniffFile,
	}
}

// IsPreferredCover reports whether the image at path meets the minimum
// size, portrait orientation and aspect-ratio criteria. Unknown formats and
// parse failures are not preferred, so an upgrade will be attempted.
func (c *Classifier) IsPreferredCover(path string) bool {
	if path == "" {
		return false
	}
	key := strings.ToLower(path)

	if verdict, ok := c.verdicts.Get(key); ok {
		return verdict
	}

	verdict := c.classify(path)
	c.verdicts.Set(key, verdict)
	return verdict
}

func (c *Classifier) classify(path string) bool {
	name := strings.ToLower(filepath.Base(path))
	for _, token := range hiResTokens {
		if strings.Contains(name, token) {
			return true
		}
	}

	dims, ok := c.sniff(path)
	if !ok {
		return false
	}
	return IsPreferred(dims)
}

// IsPreferred applies the preferred-cover criteria to known dimensions.
func IsPreferred(d Dimensions) bool {
	if d.Width < minPreferredWidth || d.Height < minPreferredHeight {
		return false
	}
	if d.Height <= d.Width {
		return false
	}
	ratio := float64(d.Height) / float64(d.Width)
	return ratio >= minAspectRatio && ratio <= maxAspectRatio
}

// Forget drops the memoized verdict for a path, if any.
func (c *Classifier) Forget(path string) {
	c.verdicts.Remove(strings.ToLower(path))
}

// Trim shrinks the verdict cache to at most max entries.
func (c *Classifier) Trim(max int) {
	c.verdicts.TrimTo(max)
}

// Clear drops all memoized verdicts.
func (c *Classifier) Clear() {
	c.verdicts.Clear()
}
