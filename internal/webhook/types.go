// Package webhook parses inbound GitHub issue webhook payloads. Signature
// validation happens upstream of this service; handlers here accept
// pre-validated payloads.
package webhook

import "strings"

// Payload mirrors the subset of a GitHub issues webhook this service
// consumes.
type Payload struct {
	Action     string     `json:"action"`
	Issue      Issue      `json:"issue"`
	Repository Repository `json:"repository"`
}

// Issue is the subset of GitHub's issue object the pipeline needs.
type Issue struct {
	Number int     `json:"number"`
	Title  string  `json:"title"`
	Body   *string `json:"body"`
	Labels []Label `json:"labels"`
	User   User    `json:"user"`
}

// Label is a GitHub label reference.
type Label struct {
	Name string `json:"name"`
}

// User is a GitHub account reference.
type User struct {
	Login string `json:"login"`
}

// Repository identifies the GitHub repository the issue belongs to.
type Repository struct {
	Name  string `json:"name"`
	Owner User   `json:"owner"`
}

var supportedActions = map[string]bool{"opened": true, "edited": true, "labeled": true}

// Event is the normalized form of Payload the orchestrator consumes:
// strings trimmed, body defaulted to empty, label names collected.
type Event struct {
	Action     string
	Owner      string
	Repository string
	Number     int
	Title      string
	Body       string
	Labels     []string
	Author     string
}

// Supported reports whether the action is one the orchestrator reacts to.
// Unsupported or invalid actions are accepted with a 200 and ignored.
func (p Payload) Supported() bool {
	return supportedActions[p.Action]
}

// Normalize extracts and trims the fields the orchestrator needs.
func (p Payload) Normalize() Event {
	body := ""
	if p.Issue.Body != nil {
		body = strings.TrimSpace(*p.Issue.Body)
	}

	labels := make([]string, 0, len(p.Issue.Labels))
	for _, l := range p.Issue.Labels {
		if name := strings.TrimSpace(l.Name); name != "" {
			labels = append(labels, name)
		}
	}

	return Event{
		Action:     p.Action,
		Owner:      strings.TrimSpace(p.Repository.Owner.Login),
		Repository: strings.TrimSpace(p.Repository.Name),
		Number:     p.Issue.Number,
		Title:      strings.TrimSpace(p.Issue.Title),
		Body:       body,
		Labels:     labels,
		Author:     strings.TrimSpace(p.Issue.User.Login),
	}
}
