// Package revalidate turns data changes into cache tags and frontend paths,
// drops matching local cache entries and asks the frontend to rebuild pages.
package revalidate

import (
	"context"
	"slices"
)

const (
	Candidates    = "candidates"
	Employers     = "employers"
	Skills        = "skills"
	Plans         = "plans"
	Interviews    = "interviews"
	Notifications = "notifications"
	Purchases     = "purchases"
)

// Change reports one written document. The related ids are filled in when the
// collection is scoped to a party.
type Change struct {
	Collection  string
	ID          string
	EmployerID  string
	CandidateID string
	RecipientID string
}

type Target struct {
	Paths []string `json:"paths"`
	Tags  []string `json:"tags"`
}

func (t Target) Empty() bool {
	return len(t.Paths) == 0 && len(t.Tags) == 0
}

// Merge appends other, skipping values already present.
func (t Target) Merge(other Target) Target {
	for _, p := range other.Paths {
		if !slices.Contains(t.Paths, p) {
			t.Paths = append(t.Paths, p)
		}
	}
	for _, tag := range other.Tags {
		if !slices.Contains(t.Tags, tag) {
			t.Tags = append(t.Tags, tag)
		}
	}
	return t
}

// Hooks maps changes to targets. LocalePrefixes lists the path prefix of each
// frontend locale; English pages live at the root.
type Hooks struct {
	LocalePrefixes []string
}

func DefaultHooks() Hooks {
	return Hooks{LocalePrefixes: []string{"", "/ar"}}
}

func (h Hooks) For(c Change) Target {
	var t Target
	switch c.Collection {
	case Candidates:
		t.Paths = h.localized("/candidates")
		t.Tags = []string{"candidates"}
		if c.ID != "" {
			t.Paths = append(t.Paths, h.localized("/candidates/"+c.ID)...)
			t.Tags = append(t.Tags, "candidate:"+c.ID)
		}
	case Employers:
		t.Tags = []string{"employer:" + c.ID}
	case Skills:
		t.Paths = h.localized("/skills")
		t.Tags = []string{"skills", "candidates"}
	case Plans:
		t.Paths = h.localized("/pricing")
		t.Tags = []string{"plans"}
	case Interviews:
		t.Tags = []string{"interviews"}
		if c.EmployerID != "" {
			t.Tags = append(t.Tags, "interviews:employer:"+c.EmployerID)
		}
		if c.CandidateID != "" {
			t.Tags = append(t.Tags, "interviews:candidate:"+c.CandidateID)
		}
	case Notifications:
		t.Tags = []string{"notifications:" + c.RecipientID}
	case Purchases:
		t.Tags = []string{"purchases:employer:" + c.EmployerID, "employer:" + c.EmployerID}
	}
	return t
}

func (h Hooks) localized(path string) []string {
	out := make([]string, 0, len(h.LocalePrefixes))
	for _, prefix := range h.LocalePrefixes {
		out = append(out, prefix+path)
	}
	return out
}

type disabledKey struct{}

// Disable returns a context under which Notify does nothing. Seeds and
// migrations write through it.
func Disable(ctx context.Context) context.Context {
	return context.WithValue(ctx, disabledKey{}, true)
}

func Disabled(ctx context.Context) bool {
	v, _ := ctx.Value(disabledKey{}).(bool)
	return v
}

// Notifier is what the domain services report their writes to.
type Notifier interface {
	Notify(ctx context.Context, changes ...Change)
}

type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, ...Change) {}
