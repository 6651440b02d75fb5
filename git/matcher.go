package git

import (
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/kloudfuse/go-uploadutils/internal"
)

var schemePrefix = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://`)

// TrackedFilesMatcher finds the tracked files a sourcemap was generated from.
type TrackedFilesMatcher struct {
	byBasename map[string][]string
	opener     internal.OsProxy
}

// NewTrackedFilesMatcher indexes files by their base name. Sourcemaps are read
// through opener; nil means the real file system.
func NewTrackedFilesMatcher(trackedFiles []string, opener internal.OsProxy) *TrackedFilesMatcher {
	if opener == nil {
		opener = internal.RealOS{}
	}
	m := &TrackedFilesMatcher{byBasename: map[string][]string{}, opener: opener}
	for _, file := range trackedFiles {
		base := path.Base(file)
		m.byBasename[base] = append(m.byBasename[base], file)
	}
	return m
}

type sourcemapSources struct {
	Sources []string `json:"sources"`
}

// MatchSourcemap returns the tracked files matching the sources declared in the
// sourcemap at sourcemapPath. When nothing matches, onNotFound is called and
// the result is nil.
func (m *TrackedFilesMatcher) MatchSourcemap(sourcemapPath string, onNotFound func()) ([]string, error) {
	f, err := m.opener.Open(sourcemapPath)
	if err != nil {
		return nil, fmt.Errorf("open sourcemap: %w", err)
	}
	defer f.Close() //nolint:errcheck

	var sm sourcemapSources
	if err := json.NewDecoder(f).Decode(&sm); err != nil {
		return nil, fmt.Errorf("decode sourcemap %s: %w", sourcemapPath, err)
	}

	matched := m.Match(sm.Sources)
	if len(matched) == 0 {
		if onNotFound != nil {
			onNotFound()
		}
		return nil, nil
	}
	return matched, nil
}

// Match returns the sorted tracked files whose path ends with one of sources.
func (m *TrackedFilesMatcher) Match(sources []string) []string {
	seen := map[string]bool{}
	var matched []string
	for _, source := range sources {
		source = NormalizeSource(source)
		if source == "" {
			continue
		}
		for _, candidate := range m.byBasename[path.Base(source)] {
			if seen[candidate] {
				continue
			}
			if candidate == source || strings.HasSuffix(candidate, "/"+source) {
				seen[candidate] = true
				matched = append(matched, candidate)
			}
		}
	}
	sort.Strings(matched)
	return matched
}

// NormalizeSource turns a sourcemap source such as
// "webpack:///./src/app.ts?abcd" into a relative path ("src/app.ts").
func NormalizeSource(source string) string {
	source = schemePrefix.ReplaceAllString(source, "")
	if i := strings.IndexAny(source, "?#"); i >= 0 {
		source = source[:i]
	}

	source = path.Clean("/" + source)
	source = strings.TrimPrefix(source, "/")
	if source == "." {
		return ""
	}
	return source
}
