// Package version reports which relay build is running. The values are
// stamped at link time:
//
//	go build -ldflags "\
//	  -X github.com/NicolasHaas/gorelay/pkg/version.tag=v0.3.0 \
//	  -X github.com/NicolasHaas/gorelay/pkg/version.commit=abc1234 \
//	  -X github.com/NicolasHaas/gorelay/pkg/version.date=2026-01-01" ./cmd/server
package version

import "strings"

// Left empty in local builds.
var (
	tag    string
	commit string
	date   string
)

// Info is the link-time build stamp.
type Info struct {
	Tag    string `json:"tag,omitempty"`
	Commit string `json:"commit,omitempty"`
	Date   string `json:"date,omitempty"`
}

// Get returns the build stamp.
func Get() Info {
	return Info{Tag: tag, Commit: commit, Date: date}
}

// String is the short form used by --version: the tag, else the commit,
// else "dev".
func (i Info) String() string {
	switch {
	case i.Tag != "":
		return i.Tag
	case i.Commit != "":
		return i.Commit
	default:
		return "dev"
	}
}

// Full is String plus whatever of commit and build date is known, e.g.
// "v0.3.0 (abc1234) built 2026-01-01".
func (i Info) Full() string {
	var b strings.Builder
	b.WriteString(i.String())
	if i.Tag != "" && i.Commit != "" {
		b.WriteString(" (" + i.Commit + ")")
	}
	if i.Date != "" && (i.Tag != "" || i.Commit != "") {
		b.WriteString(" built " + i.Date)
	}
	return b.String()
}

// String returns Get().String().
func String() string { return Get().String() }

// Full returns Get().Full().
func Full() string { return Get().Full() }
