package main

import (
	"errors"
	"testing"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"google.com", "https://google.com"},
		{"http://google.com", "http://google.com"},
		{"https://google.com", "https://google.com"},
		{"HTTP://google.com", "https://HTTP://google.com"},
		{"ftp://files.example.com", "https://ftp://files.example.com"},
		{"", "https://"},
		{"192.168.1.1/admin/login", "https://192.168.1.1/admin/login"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := NormalizeURL(tt.in)
			if got != tt.want {
				t.Errorf("NormalizeURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if again := NormalizeURL(got); again != got {
				t.Errorf("NormalizeURL not idempotent: %q -> %q", got, again)
			}
		})
	}
}

func TestStripWWW(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"www.google.com", "google.com"},
		{"google.com", "google.com"},
		{"www.www.google.com", "www.google.com"},
		{"mail.www.google.com", "mail.www.google.com"},
	}
	for _, tt := range tests {
		if got := stripWWW(tt.in); got != tt.want {
			t.Errorf("stripWWW(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want ParsedURL
	}{
		{
			name: "full",
			in:   "https://User@Example.COM:8443/a/b;p=1?q=2#frag",
			want: ParsedURL{
				Scheme: "https", Netloc: "User@Example.COM:8443", Host: "user@example.com:8443",
				Path: "/a/b", Params: "p=1", Query: "q=2", Fragment: "frag",
			},
		},
		{
			name: "bare host",
			in:   "https://google.com",
			want: ParsedURL{Scheme: "https", Netloc: "google.com", Host: "google.com"},
		},
		{
			name: "params only on last segment",
			in:   "http://h/a;x/b",
			want: ParsedURL{Scheme: "http", Netloc: "h", Host: "h", Path: "/a;x/b"},
		},
		{
			name: "query before fragment",
			in:   "https://h?a#b?c",
			want: ParsedURL{Scheme: "https", Netloc: "h", Host: "h", Query: "a", Fragment: "b?c"},
		},
		{
			name: "tabs and newlines removed",
			in:   "  https://exa\tmple.com/pa\nth",
			want: ParsedURL{Scheme: "https", Netloc: "example.com", Host: "example.com", Path: "/path"},
		},
		{
			name: "ipv6 literal",
			in:   "https://[::1]:8080/x",
			want: ParsedURL{Scheme: "https", Netloc: "[::1]:8080", Host: "[::1]:8080", Path: "/x"},
		},
		{
			name: "no scheme",
			in:   "//host/path",
			want: ParsedURL{Netloc: "host", Host: "host", Path: "/path"},
		},
		{
			name: "dotted capital I keeps its combining dot",
			in:   "https://lİnkedin.com/LOGİN",
			want: ParsedURL{Scheme: "https", Netloc: "lİnkedin.com", Host: "li\u0307nkedin.com", Path: "/LOGİN"},
		},
		{
			name: "double scheme keeps the first",
			in:   "https://ftp://files.example.com",
			want: ParsedURL{Scheme: "https", Netloc: "ftp:", Host: "ftp:", Path: "//files.example.com"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseURL(tt.in)
			if err != nil {
				t.Fatalf("parseURL(%q) error: %v", tt.in, err)
			}
			if *got != tt.want {
				t.Errorf("parseURL(%q) =\n  %+v\nwant\n  %+v", tt.in, *got, tt.want)
			}
		})
	}
}

func TestParseURLErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		is   error
	}{
		{"unbalanced bracket", "https://[::1/path", errInvalidIPv6},
		{"closing bracket only", "https://::1]/path", errInvalidIPv6},
		{"not an address", "https://[not-an-ip]/", errInvalidIPv6},
		{"ipv4 in brackets", "https://[192.168.1.1]/", errInvalidIPv6},
		{"text after bracket", "https://[::1]]h", errInvalidIPv6},
		{"text before bracket", "https://x[::1]/", errInvalidIPv6},
		{"invalid utf8", "https://ex\xffample.com", errInvalidUTF8},
		{"nfkc delimiter", "https://evil／example.com/", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseURL(tt.in)
			if err == nil {
				t.Fatalf("parseURL(%q) succeeded, want error", tt.in)
			}
			if tt.is != nil && !errors.Is(err, tt.is) {
				t.Errorf("parseURL(%q) error = %v, want %v", tt.in, err, tt.is)
			}
		})
	}
}

func TestParseURLIPvFuture(t *testing.T) {
	if _, err := parseURL("https://[v1.fe80::a+en1]/"); err != nil {
		t.Errorf("IPvFuture literal rejected: %v", err)
	}
	if _, err := parseURL("https://[vz.x]/"); err == nil {
		t.Error("IPvFuture with non-hex version accepted")
	}
}
