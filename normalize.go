/*
File: normalize.go
Version: 1.1.0
Description: URL normalization and the lexical splitter every analysis stage shares.
             The splitter follows the generic-URL rules the feature columns were computed with:
             netloc keeps userinfo and port, ";params" come off the last path segment, nothing
             is decoded or case-folded except the scheme. It never resolves anything.
*/

package main

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

var (
	errInvalidUTF8 = errors.New("url is not valid UTF-8")
	errInvalidIPv6 = errors.New("invalid IPv6 URL")
)

// Schemes whose last path segment may carry ";params".
var paramSchemes = map[string]bool{
	"": true, "ftp": true, "hdl": true, "prospero": true, "http": true, "imap": true,
	"https": true, "shttp": true, "rtsp": true, "rtsps": true, "rtspu": true, "sip": true,
	"sips": true, "mms": true, "sftp": true, "tel": true,
}

// ParsedURL is the read-only split view of one URL, built once per call.
type ParsedURL struct {
	Scheme   string
	Netloc   string // raw authority, case preserved
	Host     string // lower-cased Netloc
	Path     string
	Params   string
	Query    string
	Fragment string
}

// NormalizeURL prepends "https://" unless raw already starts with "http://" or "https://".
// The check is case-sensitive and nothing else is changed.
func NormalizeURL(raw string) string {
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	return "https://" + raw
}

// stripWWW removes a single leading "www.".
func stripWWW(host string) string {
	return strings.TrimPrefix(host, "www.")
}

// parseURL splits raw into its components.
func parseURL(raw string) (*ParsedURL, error) {
	if !utf8.ValidString(raw) {
		return nil, errInvalidUTF8
	}

	// Leading C0 controls and spaces are ignored, tabs and newlines anywhere are dropped
	s := strings.TrimLeft(raw, "\x00\x01\x02\x03\x04\x05\x06\x07\x08\x09\x0a\x0b\x0c\x0d\x0e\x0f"+
		"\x10\x11\x12\x13\x14\x15\x16\x17\x18\x19\x1a\x1b\x1c\x1d\x1e\x1f ")
	if strings.ContainsAny(s, "\t\r\n") {
		s = strings.NewReplacer("\t", "", "\r", "", "\n", "").Replace(s)
	}

	p := &ParsedURL{}

	if i := strings.IndexByte(s, ':'); i > 0 && isSchemeStart(s[0]) {
		valid := true
		for j := 1; j < i; j++ {
			if !isSchemeChar(s[j]) {
				valid = false
				break
			}
		}
		if valid {
			p.Scheme = strings.ToLower(s[:i])
			s = s[i+1:]
		}
	}

	if strings.HasPrefix(s, "//") {
		end := len(s)
		if i := strings.IndexAny(s[2:], "/?#"); i >= 0 {
			end = i + 2
		}
		p.Netloc, s = s[2:end], s[end:]

		hasOpen := strings.Contains(p.Netloc, "[")
		hasClose := strings.Contains(p.Netloc, "]")
		if hasOpen != hasClose {
			return nil, errInvalidIPv6
		}
		if hasOpen {
			if err := checkBracketedNetloc(p.Netloc); err != nil {
				return nil, err
			}
		}
	}

	if i := strings.IndexByte(s, '#'); i >= 0 {
		s, p.Fragment = s[:i], s[i+1:]
	}
	if i := strings.IndexByte(s, '?'); i >= 0 {
		s, p.Query = s[:i], s[i+1:]
	}
	if err := checkNetlocNormalization(p.Netloc); err != nil {
		return nil, err
	}

	if paramSchemes[p.Scheme] && strings.Contains(s, ";") {
		from := strings.LastIndexByte(s, '/')
		if from < 0 {
			from = 0
		}
		if i := strings.IndexByte(s[from:], ';'); i >= 0 {
			s, p.Params = s[:from+i], s[from+i+1:]
		}
	}

	p.Path = s
	p.Host = lowerFull(p.Netloc)
	return p, nil
}

// lowerFull lower-cases s with full case mapping: U+0130 becomes "i" + U+0307
// instead of the bare ASCII "i" the simple mapping yields.
func lowerFull(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, "\u0130", "i\u0307"))
}

func isSchemeStart(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isSchemeChar(c byte) bool {
	return isSchemeStart(c) || (c >= '0' && c <= '9') || c == '+' || c == '-' || c == '.'
}

// checkBracketedNetloc validates "[v6]" or "[v6]:port" after any userinfo.
func checkBracketedNetloc(netloc string) error {
	hostport := netloc
	if i := strings.LastIndexByte(hostport, '@'); i >= 0 {
		hostport = hostport[i+1:]
	}
	open := strings.IndexByte(hostport, '[')
	if open < 0 {
		return nil
	}
	if open > 0 {
		return errInvalidIPv6
	}
	inner, port, _ := strings.Cut(hostport[1:], "]")
	if port != "" && !strings.HasPrefix(port, ":") {
		return errInvalidIPv6
	}

	// IPvFuture: "v" hexdig "." ...
	if strings.HasPrefix(inner, "v") || strings.HasPrefix(inner, "V") {
		ver, rest, ok := strings.Cut(inner[1:], ".")
		if !ok || ver == "" || rest == "" || strings.Trim(ver, "0123456789abcdefABCDEF") != "" {
			return fmt.Errorf("%w: invalid IPvFuture address", errInvalidIPv6)
		}
		return nil
	}

	addr, err := netip.ParseAddr(inner)
	if err != nil || !addr.Is6() {
		return fmt.Errorf("%w: %q is not an IPv6 address", errInvalidIPv6, inner)
	}
	return nil
}

// checkNetlocNormalization rejects non-ASCII authorities whose NFKC form smuggles in a
// delimiter, e.g. a fullwidth solidus that would re-split the URL elsewhere.
func checkNetlocNormalization(netloc string) error {
	if netloc == "" || isASCII(netloc) {
		return nil
	}
	n := strings.NewReplacer("@", "", ":", "", "#", "", "?", "").Replace(netloc)
	folded := norm.NFKC.String(n)
	if folded == n {
		return nil
	}
	if strings.ContainsAny(folded, "/?#@:") {
		return fmt.Errorf("netloc %q contains invalid characters under NFKC normalization", netloc)
	}
	return nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
