// Package privacy strips credentials and identifying detail from camera URLs
// and free-form messages before they reach logs or telemetry.
package privacy

import (
	"crypto/sha256"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	urlPattern  = regexp.MustCompile(`\b(?:https?|rtsps?|rtmp)://\S+`)
	ipv4Pattern = regexp.MustCompile(`^\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}$`)
)

// ScrubMessage replaces every URL in message with an anonymized token.
func ScrubMessage(message string) string {
	return urlPattern.ReplaceAllStringFunc(message, AnonymizeURL)
}

// AnonymizeURL hashes a URL's scheme, host class, port and path shape into a
// stable token. The same camera always maps to the same token.
func AnonymizeURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		hash := sha256.Sum256([]byte(rawURL))
		return fmt.Sprintf("url-hash-%x", hash[:8])
	}

	var parts []string
	if parsed.Scheme != "" {
		parts = append(parts, parsed.Scheme)
	}
	if host := parsed.Hostname(); host != "" {
		parts = append(parts, categorizeHost(host))
	}
	if port := parsed.Port(); port != "" {
		parts = append(parts, "port-"+port)
	}
	if parsed.Path != "" && parsed.Path != "/" {
		parts = append(parts, anonymizePath(parsed.Path))
	}

	hash := sha256.Sum256([]byte(strings.Join(parts, ":")))
	return fmt.Sprintf("url-%x", hash[:12])
}

// SanitizeStreamURL returns scheme://host[:port] for a stream URL, dropping
// credentials, path and query. Passwords may contain '@', so the last '@'
// before the path separates userinfo from host. Non-URL sources such as
// device indices or file paths are returned unchanged.
func SanitizeStreamURL(source string) string {
	schemeEnd := strings.Index(source, "://")
	if schemeEnd <= 0 {
		return source
	}
	scheme := source[:schemeEnd]
	rest := source[schemeEnd+3:]

	authority := rest
	if end := strings.IndexAny(authority, "/?#"); end >= 0 {
		authority = authority[:end]
	}
	if at := strings.LastIndex(authority, "@"); at >= 0 {
		authority = authority[at+1:]
	}

	return scheme + "://" + authority
}

// categorizeHost anonymizes hostnames while preserving useful categorization
func categorizeHost(host string) string {
	switch {
	case host == "localhost" || host == "127.0.0.1" || host == "::1":
		return "localhost"
	case isPrivateIP(host):
		return "private-ip"
	case ipv4Pattern.MatchString(host) || strings.Contains(host, ":"):
		return "public-ip"
	}

	if parts := strings.Split(host, "."); len(parts) >= 2 {
		return "domain-" + parts[len(parts)-1]
	}
	return "unknown-host"
}

// anonymizePath keeps path depth, hashing each segment that is not a
// generic stream or channel name.
func anonymizePath(path string) string {
	path = strings.Trim(path, "/")
	if path == "" {
		return "root"
	}

	var out []string
	for segment := range strings.SplitSeq(path, "/") {
		switch {
		case segment == "":
			continue
		case isCommonStreamName(segment):
			out = append(out, "stream")
		case isNumeric(segment):
			out = append(out, "numeric")
		default:
			hash := sha256.Sum256([]byte(segment))
			out = append(out, fmt.Sprintf("seg-%x", hash[:4]))
		}
	}

	return strings.Join(out, "/")
}

func isPrivateIP(host string) bool {
	host = strings.ToLower(host)
	if strings.HasPrefix(host, "172.") {
		var second int
		if _, err := fmt.Sscanf(host, "172.%d.", &second); err == nil {
			return second >= 16 && second <= 31
		}
		return false
	}
	for _, prefix := range []string{"10.", "192.168.", "169.254.", "fc00:", "fd00:", "fe80:"} {
		if strings.HasPrefix(host, prefix) {
			return true
		}
	}
	return false
}

func isCommonStreamName(segment string) bool {
	segment = strings.ToLower(segment)
	for _, name := range []string{"stream", "live", "channel", "video", "cam", "h264", "h265"} {
		if strings.Contains(segment, name) {
			return true
		}
	}
	return false
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
