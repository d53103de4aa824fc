// Package dnslink inlines DNSLink names into a single DNS label.
//
// DNSLink names include dots, so they must be squeezed into one label to get a
// unique origin on a subdomain gateway and to work with wildcard TLS
// certificates: en.wikipedia-on-ipfs.org becomes en-wikipedia--on--ipfs-org.
package dnslink

import (
	"regexp"
	"strings"

	"github.com/ipfs/go-cid"
)

// DNS labels can have up to 63 characters, consisting of alphanumeric
// characters or hyphens, but must not start or end with a hyphen.
var dnsLabelRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?$`)

// sentinel never appears in a valid label, so it is safe as a placeholder
// for escaped hyphens while decoding.
const sentinel = "%"

// IsValidDNSLabel reports whether label is a syntactically valid DNS label
// that is not itself a content identifier.
func IsValidDNSLabel(label string) bool {
	if _, err := cid.Decode(label); err == nil {
		return false
	}
	return dnsLabelRegex.MatchString(label)
}

// IsInlinedDNSLink reports whether label looks like an inlined DNSLink name.
func IsInlinedDNSLink(label string) bool {
	return IsValidDNSLabel(label) && strings.Contains(label, "-") && !strings.Contains(label, ".")
}

// EncodeLabel inlines a DNSLink domain: every - becomes -- and every . becomes -.
func EncodeLabel(domain string) string {
	return strings.ReplaceAll(strings.ReplaceAll(domain, "-", "--"), ".", "-")
}

// DecodeLabel reverses EncodeLabel: every standalone - becomes . and every
// remaining -- becomes -.
func DecodeLabel(label string) string {
	label = strings.ReplaceAll(label, "--", sentinel)
	label = strings.ReplaceAll(label, "-", ".")
	return strings.ReplaceAll(label, sentinel, "-")
}
