package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"area/database"

	"golang.org/x/oauth2"
)

const (
	ActionIssueOpened       = "issue_opened"
	ActionPullRequestOpened = "pull_request_opened"
	ActionPush              = "push"
	ReactionCreateIssue     = "create_issue"
)

// GithubHandler implements the GitHub capabilities. GitHub uses the stateless
// account-keyed webhook model: no channel is registered per Area, the inbound
// payload carries the event type and the repository owner. Trigger checks are
// therefore pure payload inspection.
type GithubHandler struct {
	// BaseURL is the GitHub REST endpoint, overridable in tests.
	BaseURL string
}

func GithubService() ServiceSpec {
	return ServiceSpec{
		Type:        database.ServiceGithub,
		DisplayName: "GitHub",
		Color:       "#24292F",
		IconURL:     "https://github.githubassets.com/images/modules/logos_page/GitHub-Mark.png",
		Description: "React to repository events or create issues.",
		Actions: []ActionSpec{
			{
				Name:         ActionIssueOpened,
				Description:  "Any new issue",
				Params:       []ParamSpec{{Name: "owner", Required: true, Description: "Repository owner login"}},
				AccountParam: "owner",
			},
			{
				Name:         ActionPullRequestOpened,
				Description:  "Any new pull request",
				Params:       []ParamSpec{{Name: "owner", Required: true, Description: "Repository owner login"}},
				AccountParam: "owner",
			},
			{
				Name:         ActionPush,
				Description:  "Any push",
				Params:       []ParamSpec{{Name: "owner", Required: true, Description: "Repository owner login"}},
				AccountParam: "owner",
			},
		},
		Reactions: []ReactionSpec{
			{
				Name:        ReactionCreateIssue,
				Description: "Create an issue",
				Params: []ParamSpec{
					{Name: "owner", Required: true, Description: "Repository owner login"},
					{Name: "repo", Required: true, Description: "Repository name"},
					{Name: "title", Required: true, Description: "Issue title"},
					{Name: "body", Description: "Issue body"},
				},
			},
		},
		Handler: &GithubHandler{BaseURL: "https://api.github.com"},
	}
}

func (h *GithubHandler) ServiceType() string {
	return database.ServiceGithub
}

type githubPayload struct {
	Action      string          `json:"action"`
	Issue       json.RawMessage `json:"issue"`
	PullRequest json.RawMessage `json:"pull_request"`
	Ref         string          `json:"ref"`
	Repository  struct {
		Name  string `json:"name"`
		Owner struct {
			Login string `json:"login"`
		} `json:"owner"`
	} `json:"repository"`
}

// GithubPayloadAccount extracts the repository owner login, the account
// identity the router matches candidate Areas against.
func GithubPayloadAccount(payload json.RawMessage) (string, error) {
	var p githubPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidParameters, err)
	}
	if p.Repository.Owner.Login == "" {
		return "", fmt.Errorf("%w: payload has no repository owner", ErrInvalidParameters)
	}
	return p.Repository.Owner.Login, nil
}

func (h *GithubHandler) CheckTrigger(ctx context.Context, actionName string, params map[string]string, connection *database.UserService, payload json.RawMessage) (bool, error) {
	var p githubPayload
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &p); err != nil {
			return false, fmt.Errorf("%w: %v", ErrInvalidParameters, err)
		}
	}

	switch actionName {
	case ActionIssueOpened:
		return p.Action == "opened" && len(p.Issue) > 0, nil
	case ActionPullRequestOpened:
		return p.Action == "opened" && len(p.PullRequest) > 0, nil
	case ActionPush:
		return p.Ref != "", nil
	default:
		return false, fmt.Errorf("%w: github action %q", ErrCapabilityNotSupported, actionName)
	}
}

func (h *GithubHandler) ExecuteReaction(ctx context.Context, reactionName string, params map[string]string, connection *database.UserService) error {
	if reactionName != ReactionCreateIssue {
		return fmt.Errorf("%w: github reaction %q", ErrCapabilityNotSupported, reactionName)
	}
	if params["owner"] == "" || params["repo"] == "" || params["title"] == "" {
		return fmt.Errorf("%w: %q, %q and %q are required", ErrInvalidParameters, "owner", "repo", "title")
	}

	ctx, cancel := context.WithTimeout(ctx, UpstreamTimeout)
	defer cancel()

	body, err := json.Marshal(map[string]string{
		"title": params["title"],
		"body":  params["body"],
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/repos/%s/%s/issues", h.BaseURL, params["owner"], params["repo"])
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: connection.AccessToken})
	resp, err := oauth2.NewClient(ctx, ts).Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return mapStatusError(resp.StatusCode, fmt.Errorf("github: create issue returned %s", resp.Status))
	}
	return nil
}

// SetupWebhook is not needed; GitHub webhooks are registered on the
// repository by the owner and keyed by account identity.
func (h *GithubHandler) SetupWebhook(ctx context.Context, connection *database.UserService, actionName string, params map[string]string) (*WatchChannel, error) {
	return nil, nil
}

func (h *GithubHandler) StopWebhook(ctx context.Context, connection *database.UserService, channelID string, resourceID string) error {
	return fmt.Errorf("%w: github has no watch channels", ErrCapabilityNotSupported)
}
