// Package github provides functionality for interacting with the GitHub API.
package github

import (
	"context"
	"log/slog"
	"unicode/utf8"

	"github.com/google/go-github/v73/github"
	"golang.org/x/oauth2"

	"github.com/sevigo/regression-warden/internal/core"
)

// Client defines the host operations the review pipeline depends on. Every
// method returns errors already classified into a core error kind, so the
// job layer never inspects transport status codes.
type Client interface {
	FetchPRMetadata(ctx context.Context, prID int) (*core.PRMetadata, error)
	FetchChangedFiles(ctx context.Context, prID int, meta *core.PRMetadata) ([]core.ChangedFile, error)
	PostComment(ctx context.Context, prID int, body string) error
	SetVote(ctx context.Context, prID int, reject bool) error
	ValidateCredential(ctx context.Context) error
	FetchRepoConfigData(ctx context.Context, ref string) ([]byte, error)
}

type gitHubClient struct {
	client *github.Client
	owner  string
	repo   string
	logger *slog.Logger
}

// NewPATClient creates a host client authenticated with a Personal Access
// Token for a single fixed repository.
func NewPATClient(ctx context.Context, token, owner, repo string, logger *slog.Logger) Client {
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(ctx, ts)
	return &gitHubClient{
		client: github.NewClient(tc),
		owner:  owner,
		repo:   repo,
		logger: logger,
	}
}

// FetchPRMetadata retrieves title, author and the head/base refs of a PR.
func (g *gitHubClient) FetchPRMetadata(ctx context.Context, prID int) (*core.PRMetadata, error) {
	pr, _, err := g.client.PullRequests.Get(ctx, g.owner, g.repo, prID)
	if err != nil {
		g.logger.Error("failed to get pull request", "owner", g.owner, "repo", g.repo, "pr", prID, "error", err)
		return nil, classifyError(err)
	}
	return &core.PRMetadata{
		Title:     pr.GetTitle(),
		Author:    pr.GetUser().GetLogin(),
		SourceRef: pr.GetHead().GetRef(),
		TargetRef: pr.GetBase().GetRef(),
		HeadSHA:   pr.GetHead().GetSHA(),
		BaseSHA:   pr.GetBase().GetSHA(),
	}, nil
}

// FetchChangedFiles lists the files modified in a PR and loads the full
// before/after content of each from the base and head commits. It handles
// pagination; the GitHub API returns at most 100 files per page.
func (g *gitHubClient) FetchChangedFiles(ctx context.Context, prID int, meta *core.PRMetadata) ([]core.ChangedFile, error) {
	var changed []core.ChangedFile
	opts := &github.ListOptions{PerPage: 100}

	for {
		files, resp, err := g.client.PullRequests.ListFiles(ctx, g.owner, g.repo, prID, opts)
		if err != nil {
			g.logger.Error("failed to list files for pull request", "pr", prID, "error", err)
			return nil, classifyError(err)
		}

		for _, file := range files {
			cf := core.ChangedFile{
				Path:       file.GetFilename(),
				ChangeType: file.GetStatus(),
			}

			beforePath := cf.Path
			if prev := file.GetPreviousFilename(); prev != "" {
				beforePath = prev
			}

			if cf.ChangeType != "added" {
				before, err := g.fileContent(ctx, beforePath, meta.BaseSHA)
				if err != nil {
					return nil, err
				}
				cf.BeforeContent = before
			}
			if cf.ChangeType != "removed" {
				after, err := g.fileContent(ctx, cf.Path, meta.HeadSHA)
				if err != nil {
					return nil, err
				}
				cf.AfterContent = after
			}

			if isBinary(cf.BeforeContent) || isBinary(cf.AfterContent) {
				cf.IsBinary = true
				cf.BeforeContent = nil
				cf.AfterContent = nil
			}
			changed = append(changed, cf)
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return changed, nil
}

// fileContent fetches one file's content at a specific commit. A missing
// file is not an error: the version simply has no content, which happens
// for adds, deletes and renames.
func (g *gitHubClient) fileContent(ctx context.Context, path, ref string) (*string, error) {
	fc, _, resp, err := g.client.Repositories.GetContents(ctx, g.owner, g.repo, path,
		&github.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		if resp != nil && resp.StatusCode == 404 {
			g.logger.Debug("file not present in version", "path", path, "ref", shortSHA(ref))
			return nil, nil
		}
		g.logger.Error("failed to fetch file content", "path", path, "ref", shortSHA(ref), "error", err)
		return nil, classifyError(err)
	}
	if fc == nil {
		// Path resolved to a directory listing; nothing to review.
		return nil, nil
	}
	content, err := fc.GetContent()
	if err != nil {
		// Non-decodable content is treated as binary downstream.
		return nil, nil
	}
	return &content, nil
}

// PostComment posts a markdown comment on the PR conversation.
func (g *gitHubClient) PostComment(ctx context.Context, prID int, body string) error {
	comment := &github.IssueComment{Body: &body}
	_, _, err := g.client.Issues.CreateComment(ctx, g.owner, g.repo, prID, comment)
	if err != nil {
		g.logger.Error("failed to create comment", "pr", prID, "error", err)
		return classifyError(err)
	}
	return nil
}

// SetVote records the bot's verdict on the PR. A rejecting vote submits a
// REQUEST_CHANGES review so the merge is blocked until it is dismissed.
func (g *gitHubClient) SetVote(ctx context.Context, prID int, reject bool) error {
	event := "APPROVE"
	body := "Automated regression review passed."
	if reject {
		event = "REQUEST_CHANGES"
		body = "Automated regression review found blocking issues."
	}
	reviewRequest := &github.PullRequestReviewRequest{
		Body:  &body,
		Event: github.Ptr(event),
	}
	_, _, err := g.client.PullRequests.CreateReview(ctx, g.owner, g.repo, prID, reviewRequest)
	if err != nil {
		g.logger.Error("failed to submit review vote", "pr", prID, "reject", reject, "error", err)
		return classifyError(err)
	}
	return nil
}

// ValidateCredential performs a lightweight authenticated read to check
// that the configured token is still valid.
func (g *gitHubClient) ValidateCredential(ctx context.Context) error {
	_, _, err := g.client.Users.Get(ctx, "")
	if err != nil {
		g.logger.Error("credential validation failed", "error", err)
		return classifyError(err)
	}
	return nil
}

// FetchRepoConfigData loads the raw .regression-warden.yml from the repo
// root at the given ref. Returns nil data when the file does not exist.
func (g *gitHubClient) FetchRepoConfigData(ctx context.Context, ref string) ([]byte, error) {
	data, err := g.fileContent(ctx, ".regression-warden.yml", ref)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	return []byte(*data), nil
}

// isBinary reports whether content cannot be sent to the review backend as
// text. Anything that is not valid UTF-8 or contains NUL bytes counts.
func isBinary(content *string) bool {
	if content == nil {
		return false
	}
	if !utf8.ValidString(*content) {
		return true
	}
	for i := 0; i < len(*content); i++ {
		if (*content)[i] == 0 {
			return true
		}
	}
	return false
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
