package main

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kloudfuse/go-uploadutils/sourcemaps"
)

type fakeEnvRepo struct {
	envVars map[string]string
}

func (repo fakeEnvRepo) Get(key string) string {
	return repo.envVars[key]
}

func (repo fakeEnvRepo) Set(key, value string) error {
	repo.envVars[key] = value
	return nil
}

func (repo fakeEnvRepo) Unset(key string) error {
	delete(repo.envVars, key)
	return nil
}

func (repo fakeEnvRepo) List() []string {
	envs := []string{}
	for k, v := range repo.envVars {
		envs = append(envs, fmt.Sprintf("%s=%s", k, v))
	}
	return envs
}

func TestUploadCommand_ConcurrencyFlag(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "zero", args: []string{"--max-concurrency=0"}, wantErr: "--max-concurrency should be a positive integer, got 0"},
		{name: "negative", args: []string{"--max-concurrency=-3"}, wantErr: "--max-concurrency should be a positive integer, got -3"},
		{name: "default", args: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := fakeEnvRepo{envVars: map[string]string{"KF_API_KEY": "key", "KF_SITE": "http://127.0.0.1:1"}}
			cmd := newRootCommand(env, newLineLogger())
			cmd.SetArgs(append([]string{
				"sourcemaps", "upload", t.TempDir(),
				"--service", "web",
				"--release-version", "1.0.0",
				"--minified-path-prefix", "https://example.com/static",
				"--disable-git",
			}, tt.args...))

			err := cmd.ExecuteContext(context.Background())
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, sourcemaps.IsConfigurationError(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
