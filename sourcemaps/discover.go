package sourcemaps

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/kloudfuse/go-uploadutils/network"
)

// Pattern matches sourcemaps below the base path.
const Pattern = "**/*js.map"

// Discover finds every sourcemap below basePath, sorted by path. The URL of
// each minified file is its path relative to basePath appended to prefix.
func Discover(basePath, prefix string, release Release) ([]*Sourcemap, error) {
	matches, err := doublestar.Glob(os.DirFS(basePath), Pattern)
	if err != nil {
		return nil, fmt.Errorf("search sourcemaps in %s: %w", basePath, err)
	}
	sort.Strings(matches)

	sourcemaps := make([]*Sourcemap, 0, len(matches))
	for _, match := range matches {
		sourcemapPath := filepath.Join(basePath, filepath.FromSlash(match))
		minifiedFilePath := MinifiedFilePath(sourcemapPath)
		relativePath := "/" + MinifiedFilePath(match)

		sourcemaps = append(sourcemaps, NewSourcemap(
			minifiedFilePath,
			network.BuildPath(prefix, relativePath),
			sourcemapPath,
			relativePath,
			prefix,
			release,
		))
	}
	return sourcemaps, nil
}

// MinifiedFilePath returns the path of the file a sourcemap maps.
func MinifiedFilePath(sourcemapPath string) string {
	return strings.TrimSuffix(sourcemapPath, ".map")
}

// IsMinifiedPathPrefixValid accepts an absolute URL with a host or a path
// starting with "/".
func IsMinifiedPathPrefixValid(prefix string) bool {
	if u, err := url.Parse(prefix); err == nil && u.Scheme != "" && u.Host != "" {
		return true
	}
	return strings.HasPrefix(prefix, "/")
}
