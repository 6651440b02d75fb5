// Package sourcemaps uploads JavaScript sourcemaps together with the release
// they belong to and, optionally, the repository they were built from.
package sourcemaps

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/kloudfuse/go-uploadutils/multipart"
)

// Part names of a sourcemap payload.
const (
	SourcemapPart  = "sourcemap"
	RepositoryPart = "repository"
)

// repositoryPayloadVersion must change whenever the repository payload format changes.
const repositoryPayloadVersion = 1

// ErrGitDataAttached is returned when repository data is attached twice.
var ErrGitDataAttached = errors.New("repository data is already attached")

// Release identifies what the sourcemaps belong to.
type Release struct {
	Service string
	Version string
}

// GitData is the repository information attached to a sourcemap. It can only
// be built complete, through NewGitData.
type GitData struct {
	commitSHA         string
	repositoryURL     string
	repositoryPayload string
}

// NewGitData requires a commit and a repository URL. repositoryPayload is
// optional and empty when no tracked file matched the sourcemap.
func NewGitData(commitSHA, repositoryURL, repositoryPayload string) (*GitData, error) {
	if commitSHA == "" {
		return nil, errors.New("commit SHA is empty")
	}
	if repositoryURL == "" {
		return nil, errors.New("repository URL is empty")
	}
	return &GitData{
		commitSHA:         commitSHA,
		repositoryURL:     repositoryURL,
		repositoryPayload: repositoryPayload,
	}, nil
}

// CommitSHA ...
func (d *GitData) CommitSHA() string {
	return d.commitSHA
}

// RepositoryURL ...
func (d *GitData) RepositoryURL() string {
	return d.repositoryURL
}

// RepositoryPayload returns the serialized list of tracked files, if any.
func (d *GitData) RepositoryPayload() (string, bool) {
	return d.repositoryPayload, d.repositoryPayload != ""
}

// Sourcemap is one sourcemap file and the minified file it maps.
type Sourcemap struct {
	MinifiedFilePath   string
	MinifiedURL        string
	SourcemapPath      string
	RelativePath       string
	MinifiedPathPrefix string

	release Release
	gitData *GitData
}

// NewSourcemap ...
func NewSourcemap(minifiedFilePath, minifiedURL, sourcemapPath, relativePath, minifiedPathPrefix string, release Release) *Sourcemap {
	return &Sourcemap{
		MinifiedFilePath:   minifiedFilePath,
		MinifiedURL:        minifiedURL,
		SourcemapPath:      sourcemapPath,
		RelativePath:       relativePath,
		MinifiedPathPrefix: minifiedPathPrefix,
		release:            release,
	}
}

// Release ...
func (s *Sourcemap) Release() Release {
	return s.release
}

// GitData returns the attached repository data, or nil.
func (s *Sourcemap) GitData() *GitData {
	return s.gitData
}

// AddRepositoryData attaches repository data. It can be called once.
func (s *Sourcemap) AddRepositoryData(data *GitData) error {
	if data == nil {
		return errors.New("repository data is nil")
	}
	if s.gitData != nil {
		return ErrGitDataAttached
	}
	s.gitData = data
	return nil
}

// Name is the sourcemap path relative to the base directory, using forward slashes.
func (s *Sourcemap) Name() string {
	return strings.TrimPrefix(filepath.ToSlash(s.RelativePath), "/") + ".map"
}

type metadata struct {
	AssetPath        string `json:"assetPath"`
	Service          string `json:"service"`
	Version          string `json:"version"`
	GitRepositoryURL string `json:"git_repository_url,omitempty"`
	GitCommitSHA     string `json:"git_commit_sha,omitempty"`
}

// MultipartPayload builds the metadata, sourcemap and optional repository parts.
func (s *Sourcemap) MultipartPayload() (*multipart.Payload, error) {
	meta := metadata{
		AssetPath: s.MinifiedURL,
		Service:   s.release.Service,
		Version:   s.release.Version,
	}
	if s.gitData != nil {
		meta.GitRepositoryURL = s.gitData.repositoryURL
		meta.GitCommitSHA = s.gitData.commitSHA
	}

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	payload := multipart.NewPayload()
	payload.Set(multipart.MetadataPart, multipart.StringValue{
		Value:       string(metaJSON),
		ContentType: "application/json",
		Filename:    multipart.MetadataPart,
	})
	payload.Set(SourcemapPart, multipart.FileValue{
		Path:        s.SourcemapPath,
		ContentType: "application/gzip",
		Filename:    SourcemapPart,
	})
	if s.gitData != nil {
		if repository, ok := s.gitData.RepositoryPayload(); ok {
			payload.Set(RepositoryPart, multipart.StringValue{
				Value:       repository,
				ContentType: "application/json",
				Filename:    RepositoryPart,
			})
		}
	}

	return payload, nil
}

type repositoryEntry struct {
	Files         []string `json:"files"`
	Hash          string   `json:"hash"`
	RepositoryURL string   `json:"repository_url"`
}

type repositoryPayload struct {
	Data    []repositoryEntry `json:"data"`
	Version int               `json:"version"`
}

// NewRepositoryPayload serializes the tracked files matching one sourcemap.
func NewRepositoryPayload(hash, repositoryURL string, files []string) (string, error) {
	b, err := json.Marshal(repositoryPayload{
		Data: []repositoryEntry{{
			Files:         files,
			Hash:          hash,
			RepositoryURL: repositoryURL,
		}},
		Version: repositoryPayloadVersion,
	})
	if err != nil {
		return "", fmt.Errorf("marshal repository payload: %w", err)
	}
	return string(b), nil
}
