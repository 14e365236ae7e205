// Package forgeimpl implements the capability.Forge contract against
// hosted forge APIs. The GitHub backend is the default: an oauth2
// token client wrapped in a rate limiter, paging through issues and
// pull requests updated since the extractor's stored cursor.
package forgeimpl

import (
	"context"
	"fmt"
	"time"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/homer-mine/homer/pkg/capability"
)

// Defaults for the GitHub client. requestsPerSecond stays well under
// the authenticated API budget (5000/hour) so a pipeline run shares
// the budget with whatever else the token is used for.
const (
	defaultRequestsPerSecond = 1.0
	defaultPageSize          = 100
)

// GitHub reads issues and pull requests from the GitHub API.
type GitHub struct {
	client  *github.Client
	limiter *rate.Limiter
	owner   string
	repo    string
}

// NewGitHub builds a GitHub forge client. An empty token yields a nil
// client, the signal the Forge extractor reads as "credential absent,
// skip the subsystem".
func NewGitHub(ctx context.Context, token, owner, repo, baseURL string) (*GitHub, error) {
	if token == "" {
		return nil, nil
	}

	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := oauth2.NewClient(ctx, src)

	client := github.NewClient(httpClient)

	if baseURL != "" {
		var err error

		client, err = client.WithEnterpriseURLs(baseURL, baseURL)
		if err != nil {
			return nil, fmt.Errorf("configure enterprise base url: %w", err)
		}
	}

	return &GitHub{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(defaultRequestsPerSecond), 1),
		owner:   owner,
		repo:    repo,
	}, nil
}

// Provider reports "github".
func (g *GitHub) Provider() string { return "github" }

// ListSince returns issues and pull requests updated after cursor (an
// RFC 3339 timestamp; empty means the beginning of time) plus the next
// cursor value: the newest update timestamp seen.
func (g *GitHub) ListSince(ctx context.Context, cursor string) ([]capability.ForgeIssue, string, error) {
	since, err := parseCursor(cursor)
	if err != nil {
		return nil, cursor, err
	}

	opts := &github.IssueListByRepoOptions{
		State:     "all",
		Since:     since,
		Sort:      "updated",
		Direction: "asc",
		ListOptions: github.ListOptions{
			PerPage: defaultPageSize,
		},
	}

	var (
		out       []capability.ForgeIssue
		newCursor = since
	)

	for {
		if waitErr := g.limiter.Wait(ctx); waitErr != nil {
			return out, formatCursor(newCursor), fmt.Errorf("rate limiter: %w", waitErr)
		}

		issues, resp, listErr := g.client.Issues.ListByRepo(ctx, g.owner, g.repo, opts)
		if listErr != nil {
			return out, formatCursor(newCursor), fmt.Errorf("list issues: %w", listErr)
		}

		for _, issue := range issues {
			converted := g.convertIssue(ctx, issue)
			out = append(out, converted)

			if updated := issue.GetUpdatedAt().Time; updated.After(newCursor) {
				newCursor = updated
			}
		}

		if resp.NextPage == 0 {
			break
		}

		opts.Page = resp.NextPage
	}

	return out, formatCursor(newCursor), nil
}

func (g *GitHub) convertIssue(ctx context.Context, issue *github.Issue) capability.ForgeIssue {
	out := capability.ForgeIssue{
		Number:    issue.GetNumber(),
		Title:     issue.GetTitle(),
		Body:      issue.GetBody(),
		Author:    issue.GetUser().GetLogin(),
		State:     issue.GetState(),
		CreatedAt: issue.GetCreatedAt().Time,
		ClosedAt:  issue.GetClosedAt().Time,
		IsPR:      issue.IsPullRequest(),
	}

	if !out.IsPR {
		return out
	}

	// The issues listing doesn't carry merge state or reviewers; one
	// extra lookup per PR fills both in. Failures degrade to the
	// issue-level fields rather than dropping the PR.
	if waitErr := g.limiter.Wait(ctx); waitErr != nil {
		return out
	}

	pr, _, prErr := g.client.PullRequests.Get(ctx, g.owner, g.repo, out.Number)
	if prErr != nil {
		return out
	}

	out.Merged = pr.GetMerged()

	for _, reviewer := range pr.RequestedReviewers {
		out.Reviewers = append(out.Reviewers, reviewer.GetLogin())
	}

	return out
}

func parseCursor(cursor string) (time.Time, error) {
	if cursor == "" {
		return time.Time{}, nil
	}

	t, err := time.Parse(time.RFC3339, cursor)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse forge cursor %q: %w", cursor, err)
	}

	return t, nil
}

func formatCursor(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	return t.UTC().Format(time.RFC3339)
}
