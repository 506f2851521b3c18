package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/envagent/envboot/fault"
	"github.com/envagent/envboot/repo"
)

type deployData struct {
	ReservationID string   `json:"reservation_id"`
	Repo          string   `json:"repo"`
	Branch        string   `json:"branch,omitempty"`
	Workdir       string   `json:"workdir"`
	CloneDir      string   `json:"clone_dir,omitempty"`
	EnvFiles      []string `json:"env_files,omitempty"`
	Artifact      string   `json:"artifact,omitempty"`
	DryRun        bool     `json:"dry_run,omitempty"`
}

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Clone a repository and stage it against a reservation",

	RunE: func(cmd *cobra.Command, args []string) error {
		started := time.Now()
		out := cmd.OutOrStdout()

		leaseID := lo.Must(cmd.Flags().GetString("reservation-id"))
		repoURL := lo.Must(cmd.Flags().GetString("repo"))
		branch := lo.Must(cmd.Flags().GetString("branch"))
		workdir := lo.Must(cmd.Flags().GetString("workdir"))
		timeout := lo.Must(cmd.Flags().GetDuration("timeout"))

		if repoURL == "" {
			return emit(out, nil, fault.New(fault.Validation, "repository URL is required"), started)
		}
		if workdir == "" {
			workdir = "."
		}

		data := deployData{
			ReservationID: leaseID,
			Repo:          repoURL,
			Branch:        branch,
			Workdir:       workdir,
		}

		if dryRun() {
			data.DryRun = true
			data.CloneDir = filepath.Join(workdir, repoDirName(repoURL))
			return emit(out, data, nil, started)
		}

		ctx := cmd.Context()
		if timeout > 0 {
			var cancel func()
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		cloneDir := filepath.Join(workdir, repoDirName(repoURL))
		if err := repo.Clone(ctx, repoURL, branch, cloneDir); err != nil {
			return emit(out, data, err, started)
		}
		data.CloneDir = cloneDir

		files, err := repo.EnvironmentFiles(cloneDir)
		if err != nil {
			return emit(out, data, err, started)
		}
		names := lo.Keys(files)
		sort.Strings(names)
		data.EnvFiles = names

		artifact := filepath.Join(workdir, "provision.json")
		if err := writeDeployArtifact(artifact, data); err != nil {
			return emit(out, data, err, started)
		}
		data.Artifact = artifact

		return emit(out, data, nil, started)
	},
}

// repoDirName mirrors git's default checkout directory for a clone URL.
func repoDirName(url string) string {
	base := filepath.Base(url)
	if ext := filepath.Ext(base); ext == ".git" {
		base = base[:len(base)-len(ext)]
	}
	if base == "" || base == "." || base == "/" {
		return "repo"
	}
	return base
}

func writeDeployArtifact(path string, data deployData) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fault.Wrap(fault.Backend, err, "cannot encode deploy artifact")
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fault.Wrap(fault.Backend, err, "cannot write %s", path)
	}
	return nil
}

func init() {
	deployCmd.Flags().String("reservation-id", "", "lease id the deployment is staged against")
	deployCmd.Flags().String("repo", "", "repository URL to clone")
	deployCmd.Flags().String("branch", "", "branch to check out")
	deployCmd.Flags().String("workdir", ".", "directory receiving the clone and artifact")
	deployCmd.Flags().Duration("timeout", 5*time.Minute, "clone timeout")

	lo.Must0(deployCmd.MarkFlagRequired("repo"))
}
