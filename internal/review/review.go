// Package review defines the raw review model and CSV ingestion for the
// feedback pipeline. Reviews are immutable once ingested; every later stage
// derives new tables instead of mutating them.
package review

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Review is one raw user review. One review belongs to exactly one release.
type Review struct {
	ID        string
	Text      string
	Rating    int
	ThumbsUp  int
	Release   string
	CreatedAt time.Time
}

// NormalizeText canonicalizes review text for embedding and cache keys:
// surrounding whitespace is trimmed and internal runs of whitespace collapse
// to a single space.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// CompareVersions orders two release version strings. Dotted numeric segments
// compare numerically ("1.10.0" > "1.9.3"); non-numeric segments fall back to
// lexicographic comparison. Returns -1, 0, or 1.
func CompareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		var sa, sb string
		if i < len(as) {
			sa = as[i]
		}
		if i < len(bs) {
			sb = bs[i]
		}
		if sa == sb {
			continue
		}
		na, errA := strconv.Atoi(sa)
		nb, errB := strconv.Atoi(sb)
		if errA == nil && errB == nil {
			if na < nb {
				return -1
			}
			return 1
		}
		if sa < sb {
			return -1
		}
		return 1
	}
	return 0
}

// SortReleases sorts version strings in ascending release order, oldest
// first. The slice is sorted in place and returned for convenience.
func SortReleases(versions []string) []string {
	sort.SliceStable(versions, func(i, j int) bool {
		return CompareVersions(versions[i], versions[j]) < 0
	})
	return versions
}

// Releases returns the distinct releases present in reviews, in ascending
// release order.
func Releases(reviews []Review) []string {
	seen := make(map[string]struct{}, 16)
	out := make([]string, 0, 16)
	for _, r := range reviews {
		if _, ok := seen[r.Release]; ok {
			continue
		}
		seen[r.Release] = struct{}{}
		out = append(out, r.Release)
	}
	return SortReleases(out)
}
