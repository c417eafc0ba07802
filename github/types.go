package github

import "time"

// Workflow is a workflow definition in a repository.
type Workflow struct {
	ID    int64
	Name  string // display name (the "name:" field of the workflow file)
	Path  string // e.g. ".github/workflows/build.yml"
	State string
}

// WorkflowRun is one execution of a workflow.
type WorkflowRun struct {
	ID         int64
	RunNumber  int
	Status     string
	Conclusion string
	HeadBranch string
	CreatedAt  time.Time
}

// Artifact is a named bundle of build outputs attached to a run.
type Artifact struct {
	ID          int64
	Name        string
	SizeInBytes int64
	Expired     bool
	CreatedAt   time.Time
}
