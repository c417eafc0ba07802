package github

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	gh "github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"
)

// maxDownloadRedirects bounds redirect chasing when resolving the
// artifact archive URL.
const maxDownloadRedirects = 3

// Client is a GitHub API client.
type Client struct {
	gh *gh.Client

	// Artifact archives are served from a signed storage URL that
	// rejects requests carrying an Authorization header, so downloads
	// go through an unauthenticated client.
	download *http.Client
}

// NewClient creates a new GitHub client authenticated with a bearer token
// (personal access token or installation token).
func NewClient(ctx context.Context, token string) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("token is required")
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(ctx, ts)

	return newClient(tc), nil
}

// NewAppClient creates a new GitHub client with App installation authentication.
func NewAppClient(appID int64, privateKeyPEM []byte) (*Client, error) {
	transport, err := NewAppTransport(appID, privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	return newClient(&http.Client{Transport: transport}), nil
}

func newClient(httpClient *http.Client) *Client {
	return &Client{
		gh:       gh.NewClient(httpClient),
		download: &http.Client{Timeout: 5 * time.Minute},
	}
}

// SetBaseURL overrides the API endpoint (GitHub Enterprise, tests).
// rawURL must end with a trailing slash.
func (c *Client) SetBaseURL(rawURL string) error {
	u, err := c.gh.BaseURL.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid base URL %q: %w", rawURL, err)
	}
	c.gh.BaseURL = u
	return nil
}

// ListWorkflows returns all workflows defined in the repository.
func (c *Client) ListWorkflows(ctx context.Context, owner, repo string) ([]Workflow, error) {
	var workflows []Workflow
	opts := &gh.ListOptions{PerPage: 100}

	for {
		result, resp, err := c.gh.Actions.ListWorkflows(ctx, owner, repo, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list workflows (%s/%s): %w", owner, repo, err)
		}

		for _, w := range result.Workflows {
			workflows = append(workflows, Workflow{
				ID:    w.GetID(),
				Name:  w.GetName(),
				Path:  w.GetPath(),
				State: w.GetState(),
			})
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return workflows, nil
}

// ListRuns returns the most recent runs of a workflow, newest first as
// reported by the API.
func (c *Client) ListRuns(ctx context.Context, owner, repo string, workflowID int64) ([]WorkflowRun, error) {
	opts := &gh.ListWorkflowRunsOptions{
		ListOptions: gh.ListOptions{PerPage: 50},
	}

	result, _, err := c.gh.Actions.ListWorkflowRunsByID(ctx, owner, repo, workflowID, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow runs (%s/%s, workflow=%d): %w", owner, repo, workflowID, err)
	}

	var runs []WorkflowRun
	for _, r := range result.WorkflowRuns {
		runs = append(runs, WorkflowRun{
			ID:         r.GetID(),
			RunNumber:  r.GetRunNumber(),
			Status:     r.GetStatus(),
			Conclusion: r.GetConclusion(),
			HeadBranch: r.GetHeadBranch(),
			CreatedAt:  r.GetCreatedAt().Time,
		})
	}

	return runs, nil
}

// ListArtifacts returns the artifacts attached to a workflow run.
func (c *Client) ListArtifacts(ctx context.Context, owner, repo string, runID int64) ([]Artifact, error) {
	opts := &gh.ListOptions{PerPage: 100}

	result, _, err := c.gh.Actions.ListWorkflowRunArtifacts(ctx, owner, repo, runID, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts (%s/%s, run=%d): %w", owner, repo, runID, err)
	}

	var artifacts []Artifact
	for _, a := range result.Artifacts {
		artifacts = append(artifacts, Artifact{
			ID:          a.GetID(),
			Name:        a.GetName(),
			SizeInBytes: a.GetSizeInBytes(),
			Expired:     a.GetExpired(),
			CreatedAt:   a.GetCreatedAt().Time,
		})
	}

	return artifacts, nil
}

// DownloadArtifact streams the zip archive of an artifact. The caller
// must close the returned reader.
func (c *Client) DownloadArtifact(ctx context.Context, owner, repo string, artifactID int64) (io.ReadCloser, error) {
	u, _, err := c.gh.Actions.DownloadArtifact(ctx, owner, repo, artifactID, maxDownloadRedirects)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve artifact download URL (%s/%s, artifact=%d): %w", owner, repo, artifactID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := c.download.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download artifact (%s/%s, artifact=%d): %w", owner, repo, artifactID, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("artifact download returned status %d (%s/%s, artifact=%d)", resp.StatusCode, owner, repo, artifactID)
	}

	return resp.Body, nil
}
