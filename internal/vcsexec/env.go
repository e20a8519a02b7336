package vcsexec

import (
	"os"
	"sort"
	"sync"
)

// allowedEnv is the fixed set of variables forwarded from the caller's own
// environment into every VCS subprocess. Everything else is dropped: the
// VCS binary doesn't need the rest of the caller's environment, and not
// forwarding it keeps invocations reproducible across shells.
var allowedEnv = []string{
	"HOME",
	"PATH",
	"TZ",
	"LANG",
	"all_proxy",
	"http_proxy",
	"HTTP_PROXY",
	"https_proxy",
	"HTTPS_PROXY",
	"no_proxy",
	"NO_PROXY",
	"GIT_SSH",
	"GIT_SSH_COMMAND",
	"SSH_AUTH_SOCK",
	"SSH_AGENT_PID",
	"GIT_TRACE",
	"GIT_TRACE_PACK_ACCESS",
	"GIT_TRACE_PACKET",
	"GIT_TRACE_PERFORMANCE",
	"GIT_TRACE_SETUP",
}

var baseEnviron = sync.OnceValue(func() []string {
	cleanEnv := make([]string, 0, len(allowedEnv))
	for _, k := range allowedEnv {
		if v, ok := os.LookupEnv(k); ok {
			cleanEnv = append(cleanEnv, k+"="+v)
		}
	}
	sort.Strings(cleanEnv)
	return cleanEnv
})

// Environ returns the allow-listed environment forwarded to every VCS
// invocation by default.
func Environ() []string {
	return baseEnviron()
}

// Identity is an author or committer identity used to build the extra
// environment entries commit-tree needs when preserving the original
// commit's metadata across a rewrite.
type Identity struct {
	Name  string
	Email string
	Date  string // raw "<unix-seconds> <tz-offset>" form, as read with --date=raw
}

// CommitEnv returns the GIT_AUTHOR_*/GIT_COMMITTER_* extra environment
// entries for a commit-tree invocation that must faithfully re-emit the
// original commit's author and committer metadata.
func CommitEnv(author, committer Identity) []string {
	return []string{
		"GIT_AUTHOR_NAME=" + author.Name,
		"GIT_AUTHOR_EMAIL=" + author.Email,
		"GIT_AUTHOR_DATE=" + author.Date,
		"GIT_COMMITTER_NAME=" + committer.Name,
		"GIT_COMMITTER_EMAIL=" + committer.Email,
		"GIT_COMMITTER_DATE=" + committer.Date,
	}
}
