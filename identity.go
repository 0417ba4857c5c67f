/*
File: identity.go
Version: 1.0.0
Description: Host identity report: IDNA forms, registrable domain, punycode and mixed-script
             flags. Shown next to the verdict so a reviewer can see what a homograph host
             really is. Nothing here feeds the score.
*/

package main

import (
	"net/netip"
	"strings"
	"unicode"

	"github.com/miekg/dns"
	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"
)

// Scripts whose mixing inside one host is reported.
var identityScripts = []*unicode.RangeTable{
	unicode.Latin, unicode.Cyrillic, unicode.Greek, unicode.Armenian,
	unicode.Hebrew, unicode.Arabic, unicode.Hiragana, unicode.Katakana, unicode.Han,
}

// DescribeHost reports what host (a lower-cased netloc) is. Userinfo and port are ignored.
func DescribeHost(host string) HostIdentity {
	name := hostOnly(host)
	if name == "" {
		return HostIdentity{}
	}

	if addr, err := netip.ParseAddr(name); err == nil {
		s := addr.String()
		return HostIdentity{ASCII: s, Unicode: s, IPLiteral: true}
	}

	id := HostIdentity{ASCII: name, Unicode: name}
	if ascii, err := idna.Lookup.ToASCII(name); err == nil && ascii != "" {
		id.ASCII = ascii
	} else if ascii, err := idna.Punycode.ToASCII(name); err == nil && ascii != "" {
		id.ASCII = ascii
	}
	if uni, err := idna.Lookup.ToUnicode(id.ASCII); err == nil && uni != "" {
		id.Unicode = uni
	}

	for _, label := range strings.Split(id.ASCII, ".") {
		if strings.HasPrefix(label, "xn--") {
			id.Punycode = true
			break
		}
	}
	id.MixedScript = hasMixedScript(id.Unicode)
	id.ValidHostname = isValidHostname(id.ASCII)

	if etld1, err := publicsuffix.EffectiveTLDPlusOne(id.ASCII); err == nil {
		id.RegistrableDomain = etld1
	}
	if suffix, _ := publicsuffix.PublicSuffix(id.ASCII); suffix != "" && suffix != id.ASCII {
		id.PublicSuffix = suffix
	}
	return id
}

// hostOnly drops userinfo, port, IPv6 brackets and a trailing root dot.
func hostOnly(netloc string) string {
	if i := strings.LastIndexByte(netloc, '@'); i >= 0 {
		netloc = netloc[i+1:]
	}
	if strings.HasPrefix(netloc, "[") {
		if end := strings.IndexByte(netloc, ']'); end > 0 {
			return netloc[1:end]
		}
		return ""
	}
	if i := strings.LastIndexByte(netloc, ':'); i >= 0 {
		netloc = netloc[:i]
	}
	return strings.TrimSuffix(netloc, ".")
}

// isValidHostname requires a syntactically valid name with at least two labels.
func isValidHostname(ascii string) bool {
	if ascii == "" || !strings.Contains(ascii, ".") {
		return false
	}
	if _, ok := dns.IsDomainName(ascii); !ok {
		return false
	}
	for _, label := range strings.Split(ascii, ".") {
		if label == "" || strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
			return false
		}
		for i := 0; i < len(label); i++ {
			c := label[i]
			if !isASCIIAlnum(c) && c != '-' {
				return false
			}
		}
	}
	return true
}

func hasMixedScript(host string) bool {
	var seen *unicode.RangeTable
	for _, r := range host {
		for _, table := range identityScripts {
			if !unicode.Is(table, r) {
				continue
			}
			if seen != nil && seen != table {
				return true
			}
			seen = table
			break
		}
	}
	return false
}
