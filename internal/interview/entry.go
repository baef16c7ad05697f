package interview

import (
	"net/url"
	"strings"
)

// Query parameter names a survey platform may use for the correlation
// token, in lookup order.
var tokenParams = []string{"uid", "UID", "user_id", "userId", "participant_id", "ResponseID", "response_id"}

var returnParams = []string{"return_url", "returnUrl", "redirect_url"}

// CompletedParam is appended to the return URL when a session ends.
const CompletedParam = "completed"

// Entry is what the entry URL tells us about the respondent.
type Entry struct {
	Token     string
	ReturnURL string
}

func ParseEntry(q url.Values) Entry {
	return Entry{
		Token:     first(q, tokenParams),
		ReturnURL: first(q, returnParams),
	}
}

func first(q url.Values, keys []string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(q.Get(k)); v != "" {
			return v
		}
	}
	return ""
}

// CompletionURL returns the return URL with the completion flag set. ok is
// false when no usable http(s) return URL was given.
func (e Entry) CompletionURL() (string, bool) {
	if e.ReturnURL == "" {
		return "", false
	}
	u, err := url.Parse(e.ReturnURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", false
	}
	q := u.Query()
	q.Set(CompletedParam, "1")
	u.RawQuery = q.Encode()
	return u.String(), true
}
