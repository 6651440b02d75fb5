// Package git reads the revision-control metadata attached to uploads: the
// HEAD commit, the remote URL and the list of tracked files.
package git

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"

	gogit "github.com/go-git/go-git/v5"

	"github.com/kloudfuse/go-uploadutils/internal"
)

// DefaultRemoteName is the remote preferred when no override is given.
const DefaultRemoteName = "origin"

// ErrNoRemote is returned when the repository has no remote and no override was given.
var ErrNoRemote = errors.New("repository has no remote")

// RepositoryData describes the repository a batch was built from.
type RepositoryData struct {
	Hash         string
	Remote       string
	TrackedFiles []string
}

// Matcher returns a matcher over the tracked files reading sourcemaps through
// opener.
func (d *RepositoryData) Matcher(opener internal.OsProxy) *TrackedFilesMatcher {
	return NewTrackedFilesMatcher(d.TrackedFiles, opener)
}

// Resolve opens the repository containing dir and reads its metadata. A
// non-empty remoteOverride is used instead of the configured remotes.
func Resolve(ctx context.Context, dir, remoteOverride string) (*RepositoryData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	repo, err := gogit.PlainOpenWithOptions(dir, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("open repository: %w", err)
	}

	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}

	remote := remoteOverride
	if remote == "" {
		remote, err = remoteURL(repo)
		if err != nil {
			return nil, err
		}
	}

	idx, err := repo.Storer.Index()
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	files := make([]string, 0, len(idx.Entries))
	for _, entry := range idx.Entries {
		files = append(files, entry.Name)
	}
	sort.Strings(files)

	return &RepositoryData{
		Hash:         head.Hash().String(),
		Remote:       StripCredentials(remote),
		TrackedFiles: files,
	}, nil
}

func remoteURL(repo *gogit.Repository) (string, error) {
	remote, err := repo.Remote(DefaultRemoteName)
	if err != nil && !errors.Is(err, gogit.ErrRemoteNotFound) {
		return "", fmt.Errorf("read remote %s: %w", DefaultRemoteName, err)
	}

	if remote == nil {
		remotes, err := repo.Remotes()
		if err != nil {
			return "", fmt.Errorf("list remotes: %w", err)
		}
		if len(remotes) == 0 {
			return "", ErrNoRemote
		}
		sort.Slice(remotes, func(i, j int) bool {
			return remotes[i].Config().Name < remotes[j].Config().Name
		})
		remote = remotes[0]
	}

	urls := remote.Config().URLs
	if len(urls) == 0 {
		return "", fmt.Errorf("remote %s has no URL", remote.Config().Name)
	}
	return urls[0], nil
}

// StripCredentials removes user info from URL-formatted remotes. Scp-like
// remotes (git@host:org/repo.git) are returned unchanged.
func StripCredentials(remote string) string {
	u, err := url.Parse(remote)
	if err != nil || u.Scheme == "" || u.Host == "" || u.User == nil {
		return remote
	}
	u.User = nil
	return u.String()
}
