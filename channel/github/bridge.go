// Package github implements the GitHub Issues Bridge live runtime of
// spec §4.3: poll → filter → comment → placeholder-update → fallback
// post → event-key hydration → policy enforcement → attachment
// download, built on the shared channel.Store and the channel runtime
// framework's idempotency-key conventions.
package github

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/njfio/tau/channel"
	"github.com/njfio/tau/tauerrors"
)

// IssueRef is one polled issue's identity and labels.
type IssueRef struct {
	Number int
	Title  string
	Labels []string
}

// Comment is one issue comment, as read from the provider.
type Comment struct {
	ID          int64
	Body        string
	AuthorLogin string
	IsBot       bool
}

// Client abstracts the GitHub REST surface the bridge needs, so the
// bridge itself can be tested without a live API.
type Client interface {
	ListIssues(ctx context.Context) ([]IssueRef, error)
	ListComments(ctx context.Context, issueNumber int) ([]Comment, error)
	CreateComment(ctx context.Context, issueNumber int, body string) (int64, error)
	UpdateComment(ctx context.Context, issueNumber int, commentID int64, body string) error
	DownloadAttachment(ctx context.Context, url string) ([]byte, error)
}

// Filter selects which polled issues are in scope.
type Filter struct {
	RequiredLabels  []string
	RequiredNumbers []int
}

func (f Filter) matches(issue IssueRef) bool {
	if len(f.RequiredNumbers) > 0 {
		found := false
		for _, n := range f.RequiredNumbers {
			if n == issue.Number {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, required := range f.RequiredLabels {
		has := false
		for _, label := range issue.Labels {
			if strings.EqualFold(label, required) {
				has = true
				break
			}
		}
		if !has {
			return false
		}
	}
	return true
}

// ActorPolicy is the pairing/RBAC enforcement the bridge applies to a
// comment author before executing their prompt.
type ActorPolicy struct {
	StrictModeAllowlist map[string]bool // pairing strict mode: unpaired actors denied
	RBACTeamMode        bool
	BoundPrincipals     map[string]bool // RBAC team mode: unbound principals denied
}

// Check returns a deny reason code, or "" if the actor is allowed.
func (p ActorPolicy) Check(actorLogin string) string {
	if p.StrictModeAllowlist != nil && !p.StrictModeAllowlist[actorLogin] {
		return "pairing_strict_mode_unpaired_actor"
	}
	if p.RBACTeamMode && (p.BoundPrincipals == nil || !p.BoundPrincipals[actorLogin]) {
		return "rbac_team_mode_unbound_principal"
	}
	return ""
}

// AttachmentPolicy is the extension allow/deny list attachments are
// screened against.
type AttachmentPolicy struct {
	AllowedExtensions []string // empty means allow all except denied
	DeniedExtensions  []string
}

func (p AttachmentPolicy) decide(fileName string) (channel.PolicyDecision, string) {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(fileName), "."))
	for _, denied := range p.DeniedExtensions {
		if strings.EqualFold(denied, ext) {
			return channel.PolicyDenied, "extension_denied"
		}
	}
	if len(p.AllowedExtensions) == 0 {
		return channel.PolicyAccepted, ""
	}
	for _, allowed := range p.AllowedExtensions {
		if strings.EqualFold(allowed, ext) {
			return channel.PolicyAccepted, ""
		}
	}
	return channel.PolicyDenied, "extension_not_allowlisted"
}

// Executor runs the prompt for an accepted comment and returns the
// reply body; it stands in for the out-of-scope embedded LLM client.
type Executor func(ctx context.Context, issue IssueRef, prompt string) (string, error)

// Bridge wires a Client, issue Filter, and policy set to one channel
// Store, implementing the poll cycle of §4.3.
type Bridge struct {
	Client           Client
	Filter           Filter
	ActorPolicy      ActorPolicy
	AttachmentPolicy AttachmentPolicy
	Store            *channel.Store
	Execute          Executor
	NowUnixMs        func() int64
}

const eventKeyTagPrefix = "tau-event-key:"

var eventKeyTagPattern = regexp.MustCompile(`tau-event-key:(\S+)`)

func eventKeyForComment(commentID int64) channel.EventKey {
	return channel.EventKey("issue-comment-created:" + strconv.FormatInt(commentID, 10))
}

// hydrateProcessedKeys extracts event keys embedded in bot comments via
// the tau-event-key:{event_key} tag, so a restarted bridge recognizes
// replays without a separate state handoff.
func hydrateProcessedKeys(comments []Comment) map[channel.EventKey]bool {
	processed := make(map[channel.EventKey]bool)
	for _, c := range comments {
		if !c.IsBot {
			continue
		}
		matches := eventKeyTagPattern.FindStringSubmatch(c.Body)
		if len(matches) == 2 {
			processed[channel.EventKey(matches[1])] = true
		}
	}
	return processed
}

// PollReport summarizes one poll cycle across all filtered issues.
type PollReport struct {
	IssuesPolled    int
	CommentsHandled int
	Denied          int
	Failed          int
}

// Poll lists issues, filters them, and processes unseen comments on
// each, per the §4.3 bridge algorithm.
func (b *Bridge) Poll(ctx context.Context) (PollReport, error) {
	issues, err := b.Client.ListIssues(ctx)
	if err != nil {
		return PollReport{}, tauerrors.New(tauerrors.CodeRetryableFailure, "github_list_issues_failed").WithCause(err)
	}

	var report PollReport
	for _, issue := range issues {
		if !b.Filter.matches(issue) {
			continue
		}
		report.IssuesPolled++

		comments, err := b.Client.ListComments(ctx, issue.Number)
		if err != nil {
			report.Failed++
			continue
		}
		processed := hydrateProcessedKeys(comments)

		for _, comment := range comments {
			if comment.IsBot {
				continue
			}
			eventKey := eventKeyForComment(comment.ID)
			if processed[eventKey] {
				continue
			}

			if reason := b.ActorPolicy.Check(comment.AuthorLogin); reason != "" {
				report.Denied++
				b.logSystem(issue, eventKey, "denied: "+reason)
				continue
			}

			if err := b.handleComment(ctx, issue, comment, eventKey); err != nil {
				report.Failed++
				continue
			}
			report.CommentsHandled++
		}
	}
	return report, nil
}

func (b *Bridge) handleComment(ctx context.Context, issue IssueRef, comment Comment, eventKey channel.EventKey) error {
	placeholderBody := fmt.Sprintf("working on run for %s\n\n%s%s", eventKey, eventKeyTagPrefix, eventKey)
	placeholderID, err := b.Client.CreateComment(ctx, issue.Number, placeholderBody)
	if err != nil {
		return tauerrors.New(tauerrors.CodeRetryableFailure, "github_create_placeholder_failed").WithCause(err)
	}

	reply, execErr := b.Execute(ctx, issue, comment.Body)
	if execErr != nil {
		reply = "run failed: " + execErr.Error()
	}

	finalBody := reply + "\n\n" + eventKeyTagPrefix + string(eventKey)
	if err := b.Client.UpdateComment(ctx, issue.Number, placeholderID, finalBody); err != nil {
		fallbackBody := "(warning: placeholder update failed, posting fallback)\n\n" + finalBody
		if _, fallbackErr := b.Client.CreateComment(ctx, issue.Number, fallbackBody); fallbackErr != nil {
			return tauerrors.New(tauerrors.CodeRetryableFailure, "github_fallback_post_failed").WithCause(fallbackErr)
		}
	}

	b.logSystem(issue, eventKey, "handled comment")
	return nil
}

func (b *Bridge) logSystem(issue IssueRef, eventKey channel.EventKey, detail string) {
	if b.Store == nil {
		return
	}
	now := int64(0)
	if b.NowUnixMs != nil {
		now = b.NowUnixMs()
	}
	_ = b.Store.AppendLog(channel.ChannelLogEntry{
		TimestampUnixMs: now,
		Direction:       channel.DirectionSystem,
		EventKey:        string(eventKey),
		Source:          "github_issues_bridge",
		Payload:         map[string]any{"issue_number": issue.Number, "detail": detail},
	})
}

// IngestAttachment downloads an attachment through the bridge's
// AttachmentPolicy, recording the accept/deny decision in the Store's
// attachment manifest.
func (b *Bridge) IngestAttachment(ctx context.Context, eventKey channel.EventKey, fileName, url string, expiresUnixMs *int64) error {
	decision, reasonCode := b.AttachmentPolicy.decide(fileName)
	entry := channel.AttachmentManifestEntry{
		PolicyDecision:   decision,
		PolicyReasonCode: reasonCode,
		ExpiresUnixMs:    expiresUnixMs,
	}

	var data []byte
	if decision == channel.PolicyAccepted {
		downloaded, err := b.Client.DownloadAttachment(ctx, url)
		if err != nil {
			return tauerrors.New(tauerrors.CodeRetryableFailure, "github_attachment_download_failed").WithCause(err)
		}
		data = downloaded
	}
	if b.Store == nil {
		return nil
	}
	return b.Store.PutAttachment(eventKey, fileName, data, entry)
}

// DemoIndexRow is one issue/comment pair DemoIndex would have handled,
// without creating, updating, or downloading anything.
type DemoIndexRow struct {
	IssueNumber int
	CommentID   int64
	AuthorLogin string
	WouldDeny   string // deny reason code, or "" if the comment would be processed
}

// DemoIndex runs the same poll/filter/hydrate/policy logic as Poll but
// performs no writes: no placeholder comment, no update, no attachment
// download. It supports a --demo-index dry run of the bridge wiring
// against a real repository before granting write scopes.
func (b *Bridge) DemoIndex(ctx context.Context) ([]DemoIndexRow, error) {
	issues, err := b.Client.ListIssues(ctx)
	if err != nil {
		return nil, tauerrors.New(tauerrors.CodeRetryableFailure, "github_list_issues_failed").WithCause(err)
	}

	var rows []DemoIndexRow
	for _, issue := range issues {
		if !b.Filter.matches(issue) {
			continue
		}
		comments, err := b.Client.ListComments(ctx, issue.Number)
		if err != nil {
			continue
		}
		processed := hydrateProcessedKeys(comments)

		for _, comment := range comments {
			if comment.IsBot {
				continue
			}
			if processed[eventKeyForComment(comment.ID)] {
				continue
			}
			rows = append(rows, DemoIndexRow{
				IssueNumber: issue.Number,
				CommentID:   comment.ID,
				AuthorLogin: comment.AuthorLogin,
				WouldDeny:   b.ActorPolicy.Check(comment.AuthorLogin),
			})
		}
	}
	return rows, nil
}
