package buildspec

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/mod/semver"
)

// ErrEmptySpec is returned when no build specification is given
var ErrEmptySpec = errors.New("build specification is empty")

// RuntimeParams describe where to send the user once the server is running
type RuntimeParams struct {
	URLPath string
}

// RuntimeParamsFromOptions derives the runtime params from the launch options.
// labpath wins over filepath, and both win over urlpath.
func RuntimeParamsFromOptions(urlPath, labPath, filePath string) RuntimeParams {
	switch {
	case labPath != "":
		return RuntimeParams{URLPath: "doc/tree/" + escapePath(strings.TrimRight(labPath, "/"))}
	case filePath != "":
		return RuntimeParams{URLPath: "tree/" + escapePath(strings.TrimRight(filePath, "/"))}
	default:
		return RuntimeParams{URLPath: urlPath}
	}
}

func escapePath(p string) string {
	return (&url.URL{Path: p}).EscapedPath()
}

// Spec identifies what to build and where to go afterwards
type Spec struct {
	BuildSpec     string
	RuntimeParams RuntimeParams
}

// New validates the build specification and returns a Spec
func New(buildSpec string, params RuntimeParams) (Spec, error) {
	buildSpec = strings.Trim(strings.TrimSpace(buildSpec), "/")
	if buildSpec == "" {
		return Spec{}, ErrEmptySpec
	}

	if !strings.Contains(buildSpec, "/") {
		return Spec{}, fmt.Errorf("invalid build specification %q: expected <provider>/<spec>", buildSpec)
	}

	return Spec{BuildSpec: buildSpec, RuntimeParams: params}, nil
}

// Provider returns the repository provider prefix, e.g. "gh"
func (s Spec) Provider() string {
	provider, _, _ := strings.Cut(s.BuildSpec, "/")
	return provider
}

// refProviders carry the ref as the last path segment
var refProviders = map[string]bool{
	"gh":   true,
	"gl":   true,
	"gist": true,
	"git":  true,
}

// Ref returns the requested ref for providers that carry one
func (s Spec) Ref() string {
	if !refProviders[s.Provider()] {
		return ""
	}

	idx := strings.LastIndex(s.BuildSpec, "/")
	if idx == -1 || idx == len(s.BuildSpec)-1 {
		return ""
	}

	ref, err := url.PathUnescape(s.BuildSpec[idx+1:])
	if err != nil {
		return s.BuildSpec[idx+1:]
	}

	return ref
}

// RefKind classifies a ref
type RefKind string

const (
	RefNone   RefKind = "none"
	RefHead   RefKind = "head"
	RefTag    RefKind = "tag"
	RefCommit RefKind = "commit"
	RefBranch RefKind = "branch"
)

func (k RefKind) String() string {
	return string(k)
}

var commitRe = regexp.MustCompile(`^[0-9a-f]{7,40}$`)

// RefKind classifies the ref of the build spec
func (s Spec) RefKind() RefKind {
	ref := s.Ref()

	switch {
	case ref == "":
		return RefNone
	case ref == "HEAD":
		return RefHead
	case semver.IsValid(ref):
		return RefTag
	case commitRe.MatchString(ref):
		return RefCommit
	default:
		return RefBranch
	}
}

func (s Spec) String() string {
	if s.RuntimeParams.URLPath == "" {
		return s.BuildSpec
	}

	return fmt.Sprintf("%s (%s)", s.BuildSpec, s.RuntimeParams.URLPath)
}
