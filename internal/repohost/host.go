// Package repohost is the boundary to the document repository.
//
// A Host reads directory listings and files at a ref, writes and deletes
// files on a branch, creates branches, and opens and reports on change
// requests. Three hosts are
// provided: GitHub (pull requests through the REST API), a local git
// working copy driven by go-git, and an in-memory host for tests and dry
// runs. Name collisions on branches and change requests surface as
// ErrAlreadyExists so callers can retry with another name.
package repohost

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAlreadyExists indicates a branch or change request name is taken.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotFound indicates a missing repository, ref, directory or file.
	ErrNotFound = errors.New("not found")
)

// EntryType distinguishes files from directories.
type EntryType string

const (
	EntryFile EntryType = "file"
	EntryDir  EntryType = "dir"
)

// Entry is one item of a directory listing. Path is relative to the
// repository root and uses forward slashes.
type Entry struct {
	Path string
	Name string
	Type EntryType
}

// Info identifies the repository.
type Info struct {
	Owner         string
	Name          string
	DefaultBranch string
	// WebURL is the browsable host root, e.g. https://github.com.
	WebURL string
}

// BlobURL returns a browsable link to path on branch, or "" when any part
// of the configuration is missing.
func (i Info) BlobURL(branch, path string) string {
	if i.WebURL == "" || i.Owner == "" || i.Name == "" || branch == "" || path == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s/%s/blob/%s/%s", strings.TrimRight(i.WebURL, "/"), i.Owner, i.Name, branch, strings.TrimLeft(path, "/"))
}

// ChangeRequest describes a proposed merge of Head into Base.
type ChangeRequest struct {
	Title string
	Body  string
	Head  string
	Base  string
}

// ChangeRequestResult identifies an opened change request.
type ChangeRequestResult struct {
	ID  int
	URL string
}

// ChangeRequestState is the lifecycle state of a change request.
type ChangeRequestState string

const (
	StateOpen   ChangeRequestState = "open"
	StateClosed ChangeRequestState = "closed"
	StateMerged ChangeRequestState = "merged"
)

// ChangeRequestStatus describes an opened change request.
type ChangeRequestStatus struct {
	ID     int                `json:"id"`
	URL    string             `json:"url"`
	Title  string             `json:"title"`
	State  ChangeRequestState `json:"state"`
	Head   string             `json:"head"`
	Base   string             `json:"base"`
	Labels []string           `json:"labels,omitempty"`
}

// Host is a document repository.
type Host interface {
	Info() Info
	// ListDir lists the direct children of dir ("" for the root) at ref.
	ListDir(ctx context.Context, ref, dir string) ([]Entry, error)
	// ReadFile returns the content of path at ref.
	ReadFile(ctx context.Context, ref, path string) (string, error)
	// WriteFile creates or replaces path on branch with one commit.
	WriteFile(ctx context.Context, branch, path, content, message string) error
	// DeleteFile removes path from branch with one commit. A missing file
	// is ErrNotFound.
	DeleteFile(ctx context.Context, branch, path, message string) error
	// CreateBranch creates name pointing at fromRef.
	CreateBranch(ctx context.Context, name, fromRef string) error
	// OpenChangeRequest proposes merging cr.Head into cr.Base.
	OpenChangeRequest(ctx context.Context, cr ChangeRequest) (*ChangeRequestResult, error)
	// AddLabels applies labels to an open change request.
	AddLabels(ctx context.Context, id int, labels []string) error
	// ChangeRequestStatus reports the state of change request id.
	ChangeRequestStatus(ctx context.Context, id int) (*ChangeRequestStatus, error)
}

// LabelLister is implemented by hosts that restrict labels to a known set.
type LabelLister interface {
	ListLabels(ctx context.Context) ([]string, error)
}

// CleanPath normalizes a repository path: forward slashes, no leading or
// trailing slash.
func CleanPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	return strings.Trim(p, "/")
}

// JoinPath joins a directory and a name into a repository path.
func JoinPath(dir, name string) string {
	dir = CleanPath(dir)
	if dir == "" {
		return CleanPath(name)
	}
	return dir + "/" + CleanPath(name)
}
