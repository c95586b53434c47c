package notify

import (
	"context"
	"errors"
	"strings"

	"github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"

	"qubeless/internal/bootstrap/config"
	"qubeless/internal/errs"
	"qubeless/internal/ports"
)

const statusContext = "qubeless/quality-gate"

// GitHubNotifier publishes analysis outcomes as commit statuses. Project
// keys follow the "owner/repo" convention.
type GitHubNotifier struct {
	client *github.Client
}

func NewGitHubNotifier(ctx context.Context, cfg config.SCMConfig) (*GitHubNotifier, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if cfg.Token == "" {
		return nil, errors.New("scm token is required")
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
	client := github.NewClient(oauth2.NewClient(ctx, ts))
	if cfg.BaseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(cfg.BaseURL, cfg.BaseURL)
		if err != nil {
			return nil, errs.Wrap(err, "configure enterprise base url")
		}
	}
	return &GitHubNotifier{client: client}, nil
}

func (n *GitHubNotifier) PublishStatus(ctx context.Context, notification ports.StatusNotification) error {
	owner, repo, ok := strings.Cut(notification.ProjectKey, "/")
	if !ok || owner == "" || repo == "" {
		return errors.New("project key must be owner/repo for scm status publication")
	}

	status := &github.RepoStatus{
		State:       github.Ptr(string(notification.State)),
		Context:     github.Ptr(statusContext),
		Description: github.Ptr(notification.Description),
	}
	if notification.TargetURL != "" {
		status.TargetURL = github.Ptr(notification.TargetURL)
	}

	_, _, err := n.client.Repositories.CreateStatus(ctx, owner, repo, notification.CommitSHA, status)
	if err != nil {
		return errs.Wrap(err, "create commit status")
	}
	return nil
}
