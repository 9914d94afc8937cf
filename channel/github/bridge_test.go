package github

import (
	"context"
	"testing"

	"github.com/njfio/tau/channel"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	issues        []IssueRef
	comments      map[int][]Comment
	nextCommentID int64
	created       []string
	updated       []string
	updateFails   bool
}

func (f *fakeClient) ListIssues(ctx context.Context) ([]IssueRef, error) { return f.issues, nil }

func (f *fakeClient) ListComments(ctx context.Context, issueNumber int) ([]Comment, error) {
	return f.comments[issueNumber], nil
}

func (f *fakeClient) CreateComment(ctx context.Context, issueNumber int, body string) (int64, error) {
	f.nextCommentID++
	f.created = append(f.created, body)
	return f.nextCommentID, nil
}

func (f *fakeClient) UpdateComment(ctx context.Context, issueNumber int, commentID int64, body string) error {
	if f.updateFails {
		return assertErr
	}
	f.updated = append(f.updated, body)
	return nil
}

func (f *fakeClient) DownloadAttachment(ctx context.Context, url string) ([]byte, error) {
	return []byte("data"), nil
}

var assertErr = &stubErr{"update failed"}

type stubErr struct{ msg string }

func (e *stubErr) Error() string { return e.msg }

func newFixtureBridge(client *fakeClient) *Bridge {
	return &Bridge{
		Client: client,
		Filter: Filter{RequiredLabels: []string{"tau"}},
		Store:  nil,
		Execute: func(ctx context.Context, issue IssueRef, prompt string) (string, error) {
			return "reply to: " + prompt, nil
		},
		NowUnixMs: func() int64 { return 1000 },
	}
}

func TestPollProcessesUnseenCommentAndUpdatesPlaceholder(t *testing.T) {
	client := &fakeClient{
		issues: []IssueRef{{Number: 1, Title: "bug", Labels: []string{"tau"}}},
		comments: map[int][]Comment{
			1: {{ID: 10, Body: "please fix", AuthorLogin: "alice"}},
		},
	}
	bridge := newFixtureBridge(client)

	report, err := bridge.Poll(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.CommentsHandled)
	require.Equal(t, 0, report.Denied)
	require.Len(t, client.created, 1)
	require.Contains(t, client.created[0], "tau-event-key:issue-comment-created:10")
	require.Len(t, client.updated, 1)
	require.Contains(t, client.updated[0], "reply to: please fix")
}

func TestPollSkipsFilteredOutIssues(t *testing.T) {
	client := &fakeClient{
		issues: []IssueRef{{Number: 2, Title: "other", Labels: []string{"unrelated"}}},
	}
	bridge := newFixtureBridge(client)

	report, err := bridge.Poll(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, report.IssuesPolled)
}

func TestPollFallsBackOnUpdateFailure(t *testing.T) {
	client := &fakeClient{
		issues: []IssueRef{{Number: 1, Labels: []string{"tau"}}},
		comments: map[int][]Comment{
			1: {{ID: 11, Body: "hello", AuthorLogin: "bob"}},
		},
		updateFails: true,
	}
	bridge := newFixtureBridge(client)

	report, err := bridge.Poll(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.CommentsHandled)
	require.Len(t, client.created, 2) // placeholder + fallback
	require.Contains(t, client.created[1], "warning: placeholder update failed")
}

func TestPollHydratesProcessedKeysFromBotComments(t *testing.T) {
	client := &fakeClient{
		issues: []IssueRef{{Number: 1, Labels: []string{"tau"}}},
		comments: map[int][]Comment{
			1: {
				{ID: 20, Body: "please help", AuthorLogin: "carol"},
				{ID: 21, Body: "done\n\ntau-event-key:issue-comment-created:20", AuthorLogin: "bot", IsBot: true},
			},
		},
	}
	bridge := newFixtureBridge(client)

	report, err := bridge.Poll(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, report.CommentsHandled) // comment 20 already replied, recognized via hydration
}

func TestPollDeniesUnpairedActorUnderStrictMode(t *testing.T) {
	client := &fakeClient{
		issues: []IssueRef{{Number: 1, Labels: []string{"tau"}}},
		comments: map[int][]Comment{
			1: {{ID: 30, Body: "hi", AuthorLogin: "mallory"}},
		},
	}
	bridge := newFixtureBridge(client)
	bridge.ActorPolicy = ActorPolicy{StrictModeAllowlist: map[string]bool{"alice": true}}

	report, err := bridge.Poll(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Denied)
	require.Equal(t, 0, report.CommentsHandled)
}

func TestDemoIndexReportsRowsWithoutWriting(t *testing.T) {
	client := &fakeClient{
		issues: []IssueRef{{Number: 1, Labels: []string{"tau"}}},
		comments: map[int][]Comment{
			1: {{ID: 40, Body: "please fix", AuthorLogin: "dave"}},
		},
	}
	bridge := newFixtureBridge(client)
	bridge.ActorPolicy = ActorPolicy{StrictModeAllowlist: map[string]bool{"dave": true}}

	rows, err := bridge.DemoIndex(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, int64(40), rows[0].CommentID)
	require.Equal(t, "", rows[0].WouldDeny)
	require.Empty(t, client.created)
	require.Empty(t, client.updated)
}

func TestAttachmentPolicyDeniesDisallowedExtension(t *testing.T) {
	client := &fakeClient{}
	bridge := newFixtureBridge(client)
	bridge.AttachmentPolicy = AttachmentPolicy{AllowedExtensions: []string{"png", "txt"}}
	bridge.Store = channel.OpenStore(t.TempDir(), channel.TransportGitHub, "conv-1")

	decision, reasonCode := bridge.AttachmentPolicy.decide("payload.exe")
	require.Equal(t, channel.PolicyDenied, decision)
	require.Equal(t, "extension_not_allowlisted", reasonCode)

	err := bridge.IngestAttachment(context.Background(), channel.EventKey("issue-comment-created:1"), "payload.exe", "https://example.invalid/payload.exe", nil)
	require.NoError(t, err)
}
