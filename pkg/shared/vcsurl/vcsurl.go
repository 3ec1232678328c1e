package vcsurl

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
)

type VCSType int

const (
	UnknownVCS VCSType = iota // determined from the host name
	GenericVCS
	Github
	Gitlab
	Bitbucket
)

// StringToVCSType converts a provider name to a VCSType.
func StringToVCSType(s string) VCSType {
	switch strings.ToLower(s) {
	case "github":
		return Github
	case "gitlab":
		return Gitlab
	case "bitbucket":
		return Bitbucket
	case "generic", "none":
		return GenericVCS
	default:
		return UnknownVCS
	}
}

func (t VCSType) String() string {
	switch t {
	case Github:
		return "github"
	case Gitlab:
		return "gitlab"
	case Bitbucket:
		return "bitbucket"
	case GenericVCS:
		return "generic"
	default:
		return "unknown"
	}
}

var scpLike = regexp.MustCompile(`^(?:[\w.-]+@)?([^:/]+):(.*)$`)

// Remote is the parsed remote of a repository the fixes are pushed to.
type Remote struct {
	VCSType      VCSType
	Host         string
	Port         string
	Namespace    string
	Repository   string
	HTTPRepoLink string
	Raw          string
}

// FullName is namespace/repository.
func (r *Remote) FullName() string {
	return path.Join(r.Namespace, r.Repository)
}

// determineVCSType guesses the VCS from a host name.
func determineVCSType(host string) VCSType {
	switch {
	case strings.Contains(host, "github"):
		return Github
	case strings.Contains(host, "gitlab"):
		return Gitlab
	case strings.Contains(host, "bitbucket"):
		return Bitbucket
	default:
		return GenericVCS
	}
}

func pathDirs(p string) []string {
	var dirs []string
	for _, dir := range strings.Split(p, "/") {
		if dir != "" {
			dirs = append(dirs, dir)
		}
	}
	return dirs
}

// ParseRemote parses a clone URL (https, ssh, or git@host:path) of a single
// repository. vcsType may be UnknownVCS to detect it from the host.
func ParseRemote(raw string, vcsType VCSType) (*Remote, error) {
	spec := strings.TrimSpace(raw)
	if !strings.Contains(spec, "://") {
		if parts := scpLike.FindStringSubmatch(spec); len(parts) == 3 {
			spec = fmt.Sprintf("ssh://%s/%s", parts[1], parts[2])
		}
	}
	spec = strings.TrimSuffix(strings.TrimSuffix(spec, "/"), ".git")

	u, err := url.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid remote %q: %w", raw, err)
	}
	switch u.Scheme {
	case "http", "https", "ssh":
	default:
		return nil, fmt.Errorf("invalid scheme of remote %q", raw)
	}

	r := &Remote{VCSType: vcsType, Host: u.Hostname(), Port: u.Port(), Raw: raw}
	if r.VCSType == UnknownVCS {
		r.VCSType = determineVCSType(r.Host)
	}

	dirs := pathDirs(u.Path)
	if r.VCSType == Bitbucket && u.Scheme != "ssh" {
		// Bitbucket Server serves clones below /scm
		if len(dirs) > 0 && dirs[0] == "scm" {
			dirs = dirs[1:]
		}
		if len(dirs) == 4 && (dirs[0] == "projects" || dirs[0] == "users") && dirs[2] == "repos" {
			dirs = []string{dirs[1], dirs[3]}
		}
	}
	if len(dirs) < 2 {
		return nil, fmt.Errorf("remote %q does not name a repository", raw)
	}

	r.Namespace = path.Join(dirs[:len(dirs)-1]...)
	r.Repository = dirs[len(dirs)-1]
	if r.VCSType == Bitbucket {
		r.Namespace = strings.TrimPrefix(r.Namespace, "~")
		r.HTTPRepoLink = fmt.Sprintf("https://%s/projects/%s/repos/%s", r.Host, r.Namespace, r.Repository)
	} else {
		r.HTTPRepoLink = fmt.Sprintf("https://%s/%s/%s", r.Host, r.Namespace, r.Repository)
	}
	return r, nil
}
