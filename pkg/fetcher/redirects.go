package fetcher

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

const (
	maxRedirectsSize  = 64 << 10
	maxRedirectsRules = 1000
)

// RedirectRule is one line of a _redirects file: "from to [status]". A
// trailing * in from matches any suffix, which :splat in to substitutes.
type RedirectRule struct {
	From   string
	To     string
	Status int
}

type RedirectRules []RedirectRule

// ParseRedirects reads a _redirects file. Blank lines and # comments are
// skipped.
func ParseRedirects(r io.Reader) (RedirectRules, error) {
	var rules RedirectRules
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) < 2 || len(fields) > 3 {
			return nil, fmt.Errorf("_redirects line %d: want \"from to [status]\"", line)
		}
		rule := RedirectRule{From: fields[0], To: fields[1], Status: http.StatusMovedPermanently}
		if len(fields) == 3 {
			status, err := strconv.Atoi(strings.TrimSuffix(fields[2], "!"))
			if err != nil || http.StatusText(status) == "" {
				return nil, fmt.Errorf("_redirects line %d: bad status %q", line, fields[2])
			}
			rule.Status = status
		}
		rules = append(rules, rule)
		if len(rules) > maxRedirectsRules {
			return nil, fmt.Errorf("_redirects: more than %d rules", maxRedirectsRules)
		}
	}
	return rules, sc.Err()
}

// Match returns the first rule matching p and its expanded target.
func (rules RedirectRules) Match(p string) (RedirectRule, string, bool) {
	for _, rule := range rules {
		if prefix, ok := strings.CutSuffix(rule.From, "*"); ok {
			if strings.HasPrefix(p, prefix) {
				return rule, strings.ReplaceAll(rule.To, ":splat", strings.TrimPrefix(p, prefix)), true
			}
			continue
		}
		if p == rule.From || strings.TrimSuffix(p, "/") == strings.TrimSuffix(rule.From, "/") {
			return rule, rule.To, true
		}
	}
	return RedirectRule{}, "", false
}
