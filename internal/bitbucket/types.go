package bitbucket

import "strings"

// ErrorList encapsulates API error responses.
type ErrorList struct {
	Errors []Error `json:"errors"`
}

func (l ErrorList) String() string {
	msgs := make([]string, 0, len(l.Errors))
	for _, e := range l.Errors {
		msgs = append(msgs, e.Message)
	}
	return strings.Join(msgs, "; ")
}

// Error provides detailed information about an error occurred during API interactions.
type Error struct {
	Context       string `json:"context"`
	Message       string `json:"message"`
	ExceptionName string `json:"exceptionName"`
}

type Repository struct {
	Slug    string   `json:"slug"`
	ID      int      `json:"id"`
	Name    string   `json:"name"`
	Project *Project `json:"project,omitempty"`
	Links   Links    `json:"links"`
}

type Project struct {
	Key  string `json:"key"`
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type Links struct {
	Self []SelfLink `json:"self,omitempty"`
}

type SelfLink struct {
	Href string `json:"href"`
}

// PullRequest is the part of a Bitbucket pull request the tool reads.
type PullRequest struct {
	ID            int       `json:"id"`
	Version       int       `json:"version"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	State         string    `json:"state"`
	Open          bool      `json:"open,omitempty"`
	FromReference Reference `json:"fromRef"`
	ToReference   Reference `json:"toRef"`
	Links         Links     `json:"links"`
}

// Reference represents a branch in a repository.
type Reference struct {
	ID           string     `json:"id"`
	DisplayID    string     `json:"displayId"`
	LatestCommit string     `json:"latestCommit"`
	Repository   Repository `json:"repository"`
}
