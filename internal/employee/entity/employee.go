package entity

import (
	"fmt"
	"time"
)

// TargetType names the collection a Reference points into.
type TargetType string

const (
	TargetEmployee  TargetType = "Employee"
	TargetCandidate TargetType = "Candidate"
	TargetJob       TargetType = "Job"
)

// Valid reports whether t is one of the known collections.
func (t TargetType) Valid() bool {
	switch t {
	case TargetEmployee, TargetCandidate, TargetJob:
		return true
	default:
		return false
	}
}

// Reference is a weak reference: an identifier plus the collection it lives in.
// It never implies ownership or cascading lifecycle.
type Reference struct {
	TargetType TargetType `json:"targetType" bson:"targetType"`
	TargetID   string     `json:"targetId" bson:"targetId"`
}

// RelationSet identifies one of the reference sequences held by an Employee.
type RelationSet string

const (
	SetConnectionsWithEmployees  RelationSet = "connectionsWithEmployees"
	SetConnectionsWithCandidates RelationSet = "connectionsWithCandidates"
	SetFollowedByEmployees       RelationSet = "followedByEmployees"
	SetFollowedByCandidates      RelationSet = "followedByCandidates"
	SetFollowsEmployees          RelationSet = "followsEmployees"
	SetFollowsCandidates         RelationSet = "followsCandidates"
	SetAppliedJobs               RelationSet = "appliedJobs"
	SetPreviewedJobs             RelationSet = "previewedJobs"
)

// TargetType returns the only collection entries of the set may reference.
func (s RelationSet) TargetType() (TargetType, error) {
	switch s {
	case SetConnectionsWithEmployees, SetFollowedByEmployees, SetFollowsEmployees:
		return TargetEmployee, nil
	case SetConnectionsWithCandidates, SetFollowedByCandidates, SetFollowsCandidates:
		return TargetCandidate, nil
	case SetAppliedJobs, SetPreviewedJobs:
		return TargetJob, nil
	default:
		return "", fmt.Errorf("unknown relation set %q", string(s))
	}
}

// Relations groups every reference sequence of an Employee.
type Relations struct {
	ConnectionsWithEmployees  []Reference `json:"connectionsWithEmployees" bson:"connectionsWithEmployees"`
	ConnectionsWithCandidates []Reference `json:"connectionsWithCandidates" bson:"connectionsWithCandidates"`
	FollowedByEmployees       []Reference `json:"followedByEmployees" bson:"followedByEmployees"`
	FollowedByCandidates      []Reference `json:"followedByCandidates" bson:"followedByCandidates"`
	FollowsEmployees          []Reference `json:"followsEmployees" bson:"followsEmployees"`
	FollowsCandidates         []Reference `json:"followsCandidates" bson:"followsCandidates"`
	AppliedJobs               []Reference `json:"appliedJobs" bson:"appliedJobs"`
	PreviewedJobs             []Reference `json:"previewedJobs" bson:"previewedJobs"`
}

// Sequence returns a pointer to the slice backing set so callers can mutate it in place.
func (r *Relations) Sequence(set RelationSet) (*[]Reference, error) {
	switch set {
	case SetConnectionsWithEmployees:
		return &r.ConnectionsWithEmployees, nil
	case SetConnectionsWithCandidates:
		return &r.ConnectionsWithCandidates, nil
	case SetFollowedByEmployees:
		return &r.FollowedByEmployees, nil
	case SetFollowedByCandidates:
		return &r.FollowedByCandidates, nil
	case SetFollowsEmployees:
		return &r.FollowsEmployees, nil
	case SetFollowsCandidates:
		return &r.FollowsCandidates, nil
	case SetAppliedJobs:
		return &r.AppliedJobs, nil
	case SetPreviewedJobs:
		return &r.PreviewedJobs, nil
	default:
		return nil, fmt.Errorf("unknown relation set %q", string(set))
	}
}

// Employment holds the organization details of an Employee.
type Employment struct {
	OrganizationName string     `json:"organizationName" bson:"organizationName"`
	Department       string     `json:"department,omitempty" bson:"department,omitempty"`
	Position         string     `json:"position,omitempty" bson:"position,omitempty"`
	JoinDate         *time.Time `json:"joinDate,omitempty" bson:"joinDate,omitempty"`
}

// Message is a single chat line.
type Message struct {
	ID   string    `json:"id" bson:"id"`
	Text string    `json:"text" bson:"text"`
	Time time.Time `json:"time" bson:"time"`
}

// Conversation is the embedded chat log with one counterpart connection.
type Conversation struct {
	PeerConnectionID string    `json:"peerConnectionId" bson:"peerConnectionId"`
	ReceivedMessages []Message `json:"receivedMessages" bson:"receivedMessages"`
	SentMessages     []Message `json:"sentMessages" bson:"sentMessages"`
}

// Employee is the profile record of an employer-side user.
// Secret holds the bcrypt hash once persisted and is never serialized to JSON.
type Employee struct {
	ID            string         `json:"id" bson:"_id"`
	EmailAddress  string         `json:"emailAddress" bson:"emailAddress"`
	FullName      string         `json:"fullName" bson:"fullName"`
	Secret        string         `json:"-" bson:"secret"`
	Employment    Employment     `json:"employment" bson:"employment"`
	LastLogin     *time.Time     `json:"lastLogin,omitempty" bson:"lastLogin,omitempty"`
	LastLogout    *time.Time     `json:"lastLogout,omitempty" bson:"lastLogout,omitempty"`
	IsActive      bool           `json:"isActive" bson:"isActive"`
	AvatarURL     string         `json:"avatarUrl,omitempty" bson:"avatarUrl,omitempty"`
	Relations     Relations      `json:"relations" bson:"relations"`
	Conversations []Conversation `json:"conversations" bson:"conversations"`
	Version       int64          `json:"version" bson:"version"`
	CreatedAt     time.Time      `json:"createdAt" bson:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt" bson:"updatedAt"`
}

// Conversation returns the conversation with peer, or nil.
func (e *Employee) Conversation(peerConnectionID string) *Conversation {
	for i := range e.Conversations {
		if e.Conversations[i].PeerConnectionID == peerConnectionID {
			return &e.Conversations[i]
		}
	}
	return nil
}

// Clone returns a deep copy so callers can mutate it without aliasing the original.
func (e *Employee) Clone() *Employee {
	if e == nil {
		return nil
	}
	c := *e
	c.LastLogin = cloneTime(e.LastLogin)
	c.LastLogout = cloneTime(e.LastLogout)
	c.Employment.JoinDate = cloneTime(e.Employment.JoinDate)
	c.Relations = Relations{
		ConnectionsWithEmployees:  cloneRefs(e.Relations.ConnectionsWithEmployees),
		ConnectionsWithCandidates: cloneRefs(e.Relations.ConnectionsWithCandidates),
		FollowedByEmployees:       cloneRefs(e.Relations.FollowedByEmployees),
		FollowedByCandidates:      cloneRefs(e.Relations.FollowedByCandidates),
		FollowsEmployees:          cloneRefs(e.Relations.FollowsEmployees),
		FollowsCandidates:         cloneRefs(e.Relations.FollowsCandidates),
		AppliedJobs:               cloneRefs(e.Relations.AppliedJobs),
		PreviewedJobs:             cloneRefs(e.Relations.PreviewedJobs),
	}
	if e.Conversations != nil {
		c.Conversations = make([]Conversation, len(e.Conversations))
		for i, conv := range e.Conversations {
			c.Conversations[i] = Conversation{
				PeerConnectionID: conv.PeerConnectionID,
				ReceivedMessages: append([]Message(nil), conv.ReceivedMessages...),
				SentMessages:     append([]Message(nil), conv.SentMessages...),
			}
		}
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneRefs(in []Reference) []Reference {
	if in == nil {
		return nil
	}
	return append([]Reference(nil), in...)
}
