package search

import (
	"net/url"
	"strconv"
	"strings"
)

type hit struct {
	HTMLURL    string `json:"html_url"`
	Repository struct {
		HTMLURL string `json:"html_url"`
	} `json:"repository"`
}

// repositoryURL prefers the repository's own URL and falls back to trimming
// the file URL down to its owner/repo root.
func (h hit) repositoryURL() string {
	if u := strings.TrimSpace(h.Repository.HTMLURL); u != "" {
		return u
	}
	return RepoRoot(h.HTMLURL)
}

// RepoRoot reduces a file URL such as
// https://github.com/owner/repo/blob/<sha>/serverless.yml to
// https://github.com/owner/repo. It returns "" when the URL has no
// owner/repo path.
func RepoRoot(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host + "/" + parts[0] + "/" + parts[1]
}

// LastPage extracts the page number of the rel="last" link from an RFC 8288
// Link header. With no header, or no last link, the result is one page.
func LastPage(link string) int {
	for _, part := range strings.Split(link, ",") {
		segs := strings.Split(part, ";")
		if len(segs) < 2 {
			continue
		}
		isLast := false
		for _, p := range segs[1:] {
			if strings.EqualFold(strings.TrimSpace(p), `rel="last"`) {
				isLast = true
				break
			}
		}
		if !isLast {
			continue
		}
		target := strings.Trim(strings.TrimSpace(segs[0]), "<>")
		u, err := url.Parse(target)
		if err != nil {
			continue
		}
		if n, err := strconv.Atoi(u.Query().Get("page")); err == nil && n > 0 {
			return n
		}
	}
	return 1
}
