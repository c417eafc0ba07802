package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/korosuke613/ghadist/config"
	"github.com/korosuke613/ghadist/github"
)

// Resolution errors. Each one aborts the chain before the next API call
// and maps to exit code 1 in the CLI.
var (
	ErrWorkflowNotFound  = errors.New("workflow not found")
	ErrRunsNotFound      = errors.New("workflow runs not found")
	ErrArtifactsNotFound = errors.New("artifacts not found")
)

// IsResolutionErr reports whether err is one of the empty-lookup errors.
func IsResolutionErr(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound) ||
		errors.Is(err, ErrRunsNotFound) ||
		errors.Is(err, ErrArtifactsNotFound)
}

// Client is the GitHub API surface the fetcher needs.
type Client interface {
	ListWorkflows(ctx context.Context, owner, repo string) ([]github.Workflow, error)
	ListRuns(ctx context.Context, owner, repo string, workflowID int64) ([]github.WorkflowRun, error)
	ListArtifacts(ctx context.Context, owner, repo string, runID int64) ([]github.Artifact, error)
	DownloadArtifact(ctx context.Context, owner, repo string, artifactID int64) (io.ReadCloser, error)
}

// Result summarizes one completed fetch.
type Result struct {
	Workflow  github.Workflow
	Run       github.WorkflowRun
	Artifact  github.Artifact
	Dest      string
	Extracted int // files written
	Skipped   int // files already up to date
}

// Fetcher resolves a workflow name to its latest run's artifact and
// materializes the archive contents under the target's dest directory.
type Fetcher struct {
	client Client
}

// New creates a new Fetcher.
func New(client Client) *Fetcher {
	return &Fetcher{client: client}
}

// Fetch runs the full chain for a target: resolve workflow, latest run,
// artifact, then download and extract.
func (f *Fetcher) Fetch(ctx context.Context, target config.Target) (*Result, error) {
	return f.fetch(ctx, target, 0)
}

// FetchIfNew runs the chain but skips download and extraction when the
// resolved artifact is the one identified by lastArtifactID. It returns
// (nil, nil) in that case.
func (f *Fetcher) FetchIfNew(ctx context.Context, target config.Target, lastArtifactID int64) (*Result, error) {
	return f.fetch(ctx, target, lastArtifactID)
}

func (f *Fetcher) fetch(ctx context.Context, target config.Target, lastArtifactID int64) (*Result, error) {
	workflow, err := f.resolveWorkflow(ctx, target)
	if err != nil {
		return nil, err
	}

	run, err := f.resolveLatestRun(ctx, target, workflow.ID)
	if err != nil {
		return nil, err
	}

	artifact, err := f.resolveArtifact(ctx, target, run.ID)
	if err != nil {
		return nil, err
	}

	if lastArtifactID != 0 && artifact.ID == lastArtifactID {
		slog.Debug("artifact unchanged, skipping download",
			"target", target.Key(),
			"artifact_id", artifact.ID,
		)
		return nil, nil
	}

	extracted, skipped, err := f.downloadAndExtract(ctx, target, artifact)
	if err != nil {
		return nil, err
	}

	slog.Info("artifact fetched",
		"target", target.Key(),
		"run_id", run.ID,
		"artifact", artifact.Name,
		"artifact_id", artifact.ID,
		"dest", target.Dest,
		"extracted", extracted,
		"skipped", skipped,
	)

	return &Result{
		Workflow:  workflow,
		Run:       run,
		Artifact:  artifact,
		Dest:      target.Dest,
		Extracted: extracted,
		Skipped:   skipped,
	}, nil
}

// resolveWorkflow scans the repository's workflows for an exact,
// case-sensitive display-name match.
func (f *Fetcher) resolveWorkflow(ctx context.Context, target config.Target) (github.Workflow, error) {
	workflows, err := f.client.ListWorkflows(ctx, target.Owner, target.Repo)
	if err != nil {
		return github.Workflow{}, err
	}

	for _, w := range workflows {
		if w.Name == target.Workflow {
			return w, nil
		}
	}

	return github.Workflow{}, fmt.Errorf("%w: %q in %s/%s", ErrWorkflowNotFound, target.Workflow, target.Owner, target.Repo)
}

// resolveLatestRun selects the newest run by creation time. The API
// returns runs newest first, but the ordering is not part of its
// contract, so it is not trusted.
func (f *Fetcher) resolveLatestRun(ctx context.Context, target config.Target, workflowID int64) (github.WorkflowRun, error) {
	runs, err := f.client.ListRuns(ctx, target.Owner, target.Repo, workflowID)
	if err != nil {
		return github.WorkflowRun{}, err
	}
	if len(runs) == 0 {
		return github.WorkflowRun{}, fmt.Errorf("%w: %q in %s/%s", ErrRunsNotFound, target.Workflow, target.Owner, target.Repo)
	}

	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})

	return runs[0], nil
}

// resolveArtifact picks the run's artifact: the one pinned by name if the
// target sets one, otherwise the newest. Expired artifacts can no longer
// be downloaded and are ignored.
func (f *Fetcher) resolveArtifact(ctx context.Context, target config.Target, runID int64) (github.Artifact, error) {
	artifacts, err := f.client.ListArtifacts(ctx, target.Owner, target.Repo, runID)
	if err != nil {
		return github.Artifact{}, err
	}

	candidates := artifacts[:0:0]
	for _, a := range artifacts {
		if a.Expired {
			continue
		}
		if target.Artifact != "" && a.Name != target.Artifact {
			continue
		}
		candidates = append(candidates, a)
	}

	if len(candidates) == 0 {
		return github.Artifact{}, fmt.Errorf("%w: run %d in %s/%s", ErrArtifactsNotFound, runID, target.Owner, target.Repo)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
	})

	return candidates[0], nil
}

// downloadAndExtract writes the artifact archive to <name>.zip inside the
// dest directory, unpacks it there, and removes the archive on every exit
// path.
func (f *Fetcher) downloadAndExtract(ctx context.Context, target config.Target, artifact github.Artifact) (extracted, skipped int, err error) {
	if err := os.MkdirAll(target.Dest, 0755); err != nil {
		return 0, 0, fmt.Errorf("failed to create dest directory %s: %w", target.Dest, err)
	}

	body, err := f.client.DownloadArtifact(ctx, target.Owner, target.Repo, artifact.ID)
	if err != nil {
		return 0, 0, err
	}
	defer body.Close()

	archivePath := filepath.Join(target.Dest, artifact.Name+".zip")
	if err := writeFile(archivePath, body); err != nil {
		return 0, 0, err
	}
	defer os.Remove(archivePath)

	return extractArchive(archivePath, target.Dest)
}

func writeFile(path string, r io.Reader) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	if _, err := io.Copy(file, r); err != nil {
		file.Close()
		os.Remove(path)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	if err := file.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("failed to close %s: %w", path, err)
	}

	return nil
}
