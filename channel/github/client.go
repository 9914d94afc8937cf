package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
)

func jsonReader(data []byte) *bytes.Reader { return bytes.NewReader(data) }

// HTTPClient is the live Client implementation, talking to the GitHub
// REST API over an oauth2-authenticated *http.Client.
type HTTPClient struct {
	BaseURL    string // default "https://api.github.com"
	Owner      string
	Repo       string
	BotLogin   string
	httpClient *http.Client
}

// NewHTTPClient builds an HTTPClient authenticated with a static
// access token, matching the teacher's oauth2.StaticTokenSource usage
// for server-to-server API calls.
func NewHTTPClient(ctx context.Context, owner, repo, botLogin, token string) *HTTPClient {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return &HTTPClient{
		BaseURL:    "https://api.github.com",
		Owner:      owner,
		Repo:       repo,
		BotLogin:   botLogin,
		httpClient: oauth2.NewClient(ctx, ts),
	}
}

func (c *HTTPClient) baseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return "https://api.github.com"
}

type ghIssue struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Labels []struct {
		Name string `json:"name"`
	} `json:"labels"`
	PullRequest json.RawMessage `json:"pull_request,omitempty"`
}

func (c *HTTPClient) ListIssues(ctx context.Context) ([]IssueRef, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/issues?state=open", c.baseURL(), c.Owner, c.Repo)
	var raw []ghIssue
	if err := c.getJSON(ctx, url, &raw); err != nil {
		return nil, err
	}
	refs := make([]IssueRef, 0, len(raw))
	for _, issue := range raw {
		if len(issue.PullRequest) > 0 {
			continue // exclude pull requests, which the issues endpoint also lists
		}
		labels := make([]string, 0, len(issue.Labels))
		for _, l := range issue.Labels {
			labels = append(labels, l.Name)
		}
		refs = append(refs, IssueRef{Number: issue.Number, Title: issue.Title, Labels: labels})
	}
	return refs, nil
}

type ghComment struct {
	ID   int64  `json:"id"`
	Body string `json:"body"`
	User struct {
		Login string `json:"login"`
		Type  string `json:"type"`
	} `json:"user"`
}

func (c *HTTPClient) ListComments(ctx context.Context, issueNumber int) ([]Comment, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/issues/%d/comments", c.baseURL(), c.Owner, c.Repo, issueNumber)
	var raw []ghComment
	if err := c.getJSON(ctx, url, &raw); err != nil {
		return nil, err
	}
	comments := make([]Comment, 0, len(raw))
	for _, cm := range raw {
		comments = append(comments, Comment{
			ID:          cm.ID,
			Body:        cm.Body,
			AuthorLogin: cm.User.Login,
			IsBot:       cm.User.Type == "Bot" || cm.User.Login == c.BotLogin,
		})
	}
	return comments, nil
}

func (c *HTTPClient) CreateComment(ctx context.Context, issueNumber int, body string) (int64, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/issues/%d/comments", c.baseURL(), c.Owner, c.Repo, issueNumber)
	var created ghComment
	if err := c.postJSON(ctx, url, map[string]string{"body": body}, &created); err != nil {
		return 0, err
	}
	return created.ID, nil
}

func (c *HTTPClient) UpdateComment(ctx context.Context, issueNumber int, commentID int64, body string) error {
	url := fmt.Sprintf("%s/repos/%s/%s/issues/comments/%d", c.baseURL(), c.Owner, c.Repo, commentID)
	return c.patchJSON(ctx, url, map[string]string{"body": body})
}

func (c *HTTPClient) DownloadAttachment(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("download attachment: unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (c *HTTPClient) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	return c.doJSON(req, out)
}

func (c *HTTPClient) postJSON(ctx context.Context, url string, body, out any) error {
	return c.bodyJSON(ctx, http.MethodPost, url, body, out)
}

func (c *HTTPClient) patchJSON(ctx context.Context, url string, body any) error {
	return c.bodyJSON(ctx, http.MethodPatch, url, body, nil)
}

func (c *HTTPClient) bodyJSON(ctx context.Context, method, url string, body, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, url, jsonReader(encoded))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.doJSON(req, out)
}

func (c *HTTPClient) doJSON(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/vnd.github+json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("github api %s: unexpected status %d", req.URL.Path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
