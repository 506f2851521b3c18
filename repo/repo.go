// Package repo fetches a repository and harvests the files that describe its
// runtime environment.
package repo

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/envagent/envboot/fault"
)

// MaxFileBytes caps how much of each environment file is read; anything past
// it is truncated.
const MaxFileBytes = 10_000

// environmentCandidates is the fixed list of files worth reading, in the
// order they are reported.
var environmentCandidates = []string{
	"README.md",
	"README.rst",
	"requirements.txt",
	"pyproject.toml",
	"setup.py",
	"environment.yml",
	"environment.yaml",
	"Dockerfile",
	"docker-compose.yml",
	"Makefile",
	"package.json",
	"go.mod",
	"Cargo.toml",
}

// Clone checks out url into dir, shallowly. An optional branch narrows the
// checkout. Failures carry the git output and the CloneError kind.
func Clone(ctx context.Context, url, branch, dir string) error {
	if url == "" {
		return fault.New(fault.Validation, "repository url is required")
	}

	args := []string{"clone", "--depth", "1"}
	if branch != "" {
		args = append(args, "--branch", branch)
	}
	args = append(args, url, dir)

	cmd := exec.CommandContext(ctx, "git", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fault.Wrap(fault.Clone, err, "git clone of %s failed: %s", url, strings.TrimSpace(string(out)))
	}
	return nil
}

// EnvironmentFiles reads the candidate environment files present in dir,
// keyed by file name, each truncated at MaxFileBytes.
func EnvironmentFiles(dir string) (map[string]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fault.Wrap(fault.NotFound, err, "repository directory %s is not readable", dir)
	}
	if !info.IsDir() {
		return nil, fault.New(fault.Validation, "%s is not a directory", dir)
	}

	files := make(map[string]string)
	for _, name := range environmentCandidates {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		if len(raw) > MaxFileBytes {
			raw = raw[:MaxFileBytes]
		}
		files[name] = string(raw)
	}
	return files, nil
}
