package github

import (
	"encoding/json"
	"strings"
	"time"
)

// RawGitHubEvent represents the raw event structure from the GitHub Events API
type RawGitHubEvent struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Actor     EventActor      `json:"actor"`
	Repo      EventRepo       `json:"repo"`
	Payload   json.RawMessage `json:"payload"`
	Public    bool            `json:"public"`
	CreatedAt time.Time       `json:"created_at"`
}

// EventActor represents the user who triggered the event
type EventActor struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
}

// EventRepo represents the repository in the event
type EventRepo struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// PushEventPayload for PushEvent
type PushEventPayload struct {
	Ref     string `json:"ref"` // refs/heads/branch-name
	Commits []struct {
		SHA     string `json:"sha"`
		Message string `json:"message"`
		Author  struct {
			Name  string `json:"name"`
			Email string `json:"email"`
		} `json:"author"`
	} `json:"commits"`
	Size         int `json:"size"`
	DistinctSize int `json:"distinct_size"`
}

// EventType is the subset of activity kinds the checker cares about
type EventType string

const (
	EventPush              EventType = "PushEvent"
	EventCreate            EventType = "CreateEvent"
	EventPullRequest       EventType = "PullRequestEvent"
	EventIssues            EventType = "IssuesEvent"
	EventPullRequestReview EventType = "PullRequestReviewEvent"
	EventCommitComment     EventType = "CommitCommentEvent"
	EventOther             EventType = "Other"
)

// IsContribution reports whether the event counts towards a streak
func (t EventType) IsContribution() bool {
	switch t {
	case EventPush, EventCreate, EventPullRequest, EventIssues, EventPullRequestReview, EventCommitComment:
		return true
	}
	return false
}

// PushedCommit is one commit embedded in a push event
type PushedCommit struct {
	SHA         string `json:"sha"`
	Message     string `json:"message"`
	AuthorName  string `json:"authorName"`
	AuthorEmail string `json:"authorEmail"`
}

// IsMerge reports whether the commit message looks like a merge
func (c PushedCommit) IsMerge() bool {
	return strings.Contains(strings.ToLower(c.Message), "merge")
}

// HasAuthor reports whether the commit carries an author identity
func (c PushedCommit) HasAuthor() bool {
	return c.AuthorName != "" && c.AuthorEmail != ""
}

// ActivityEvent is a user activity entry reduced to what detection needs
type ActivityEvent struct {
	Type          EventType      `json:"type"`
	CreatedAt     time.Time      `json:"createdAt"`
	Repository    string         `json:"repository"`
	PushedCommits []PushedCommit `json:"pushedCommits,omitempty"`
	// PushSize is the payload's commit count, set even when the commit list is omitted
	PushSize int `json:"pushSize,omitempty"`
}

// CommitCount returns the number of commits a push carried
func (e ActivityEvent) CommitCount() int {
	if len(e.PushedCommits) > 0 {
		return len(e.PushedCommits)
	}
	return e.PushSize
}

// ToActivity converts a raw API event. Unknown types map to EventOther and
// malformed push payloads keep the event with no commits.
func (raw *RawGitHubEvent) ToActivity() ActivityEvent {
	ev := ActivityEvent{
		Type:       EventOther,
		CreatedAt:  raw.CreatedAt,
		Repository: raw.Repo.Name,
	}

	t := EventType(raw.Type)
	if t.IsContribution() {
		ev.Type = t
	}

	if ev.Type != EventPush || len(raw.Payload) == 0 {
		return ev
	}

	var payload PushEventPayload
	if err := json.Unmarshal(raw.Payload, &payload); err != nil {
		return ev
	}

	ev.PushSize = payload.Size
	for _, c := range payload.Commits {
		ev.PushedCommits = append(ev.PushedCommits, PushedCommit{
			SHA:         c.SHA,
			Message:     c.Message,
			AuthorName:  c.Author.Name,
			AuthorEmail: c.Author.Email,
		})
	}
	return ev
}
