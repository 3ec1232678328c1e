package vcsurl

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	ErrMissingRepository = errors.New("namespace and repository are required")
	ErrMissingRef        = errors.New("ref (branch, tag, or commit SHA) is required")
	ErrMissingHost       = errors.New("host is required for a generic VCS")
)

var defaultHosts = map[VCSType]string{
	Github:    "github.com",
	Gitlab:    "gitlab.com",
	Bitbucket: "bitbucket.org",
}

// PermalinkParams holds parameters for building links into a repository.
type PermalinkParams struct {
	VCSType   VCSType
	Host      string // defaults to the public host of VCSType
	Namespace string
	Project   string
	Ref       string
	File      string // repository relative, empty links the ref itself
	StartLine int
	EndLine   int
}

// BuildPermalink links to a file, or to the tree of the ref when File is empty.
//   - GitHub, generic: https://{host}/{ns}/{proj}/blob/{ref}/{file}#L{start}-L{end}
//   - GitLab:          https://{host}/{ns}/{proj}/-/blob/{ref}/{file}#L{start}-{end}
//   - Bitbucket:       https://{host}/projects/{ns}/repos/{proj}/browse/{file}?at={ref}#{start}-{end}
func BuildPermalink(p PermalinkParams) (string, error) {
	if p.Namespace == "" || p.Project == "" {
		return "", ErrMissingRepository
	}
	if p.Ref == "" {
		return "", ErrMissingRef
	}
	host := p.Host
	if host == "" {
		host = defaultHosts[p.VCSType]
	}
	if host == "" {
		return "", ErrMissingHost
	}
	file := strings.TrimLeft(strings.ReplaceAll(p.File, "\\", "/"), "/")

	switch p.VCSType {
	case Gitlab:
		kind := "blob"
		if file == "" {
			kind = "tree"
		}
		link := fmt.Sprintf("https://%s/%s/%s/-/%s/%s/%s", host, p.Namespace, p.Project, kind, p.Ref, file)
		return strings.TrimSuffix(link, "/") + lineAnchor(p.VCSType, file, p.StartLine, p.EndLine), nil
	case Bitbucket:
		link := fmt.Sprintf("https://%s/projects/%s/repos/%s/browse/%s?at=%s", host, p.Namespace, p.Project, file, url.QueryEscape(p.Ref))
		return link + lineAnchor(p.VCSType, file, p.StartLine, p.EndLine), nil
	default:
		kind := "blob"
		if file == "" {
			kind = "tree"
		}
		link := fmt.Sprintf("https://%s/%s/%s/%s/%s/%s", host, p.Namespace, p.Project, kind, p.Ref, file)
		return strings.TrimSuffix(link, "/") + lineAnchor(p.VCSType, file, p.StartLine, p.EndLine), nil
	}
}

func lineAnchor(vcsType VCSType, file string, start, end int) string {
	if file == "" || start <= 0 {
		return ""
	}
	if end < start {
		end = start
	}
	prefix, sep := "#L", "-L"
	switch vcsType {
	case Gitlab:
		sep = "-"
	case Bitbucket:
		prefix, sep = "#", "-"
	}
	if end == start {
		return fmt.Sprintf("%s%d", prefix, start)
	}
	return fmt.Sprintf("%s%d%s%d", prefix, start, sep, end)
}
