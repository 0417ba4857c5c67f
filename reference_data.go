/*
File: reference_data.go
Version: 1.1.0
Description: Static reference datasets for the URL risk engine.
             Kept apart from reference.go so the lists can be reviewed on their own.
             Order matters: rules walk these slices in order and findings follow it.
*/

package main

// --- 1. Whitelist (exact host match after stripping a leading "www.") ---
var defaultWhitelist = []string{
	"google.com", "whatsapp.com", "microsoft.com", "facebook.com", "apple.com",
	"instagram.com", "linkedin.com", "amazon.com", "youtube.com", "github.com",
	"paypal.com", "dropbox.com", "twitter.com", "netflix.com", "spotify.com",
	"slack.com", "zoom.us", "skype.com", "discord.com", "reddit.com",
	"stackoverflow.com", "stackexchange.com", "wikipedia.org", "wikimedia.org",
	"cloudflare.com", "godaddy.com", "wordpress.com", "medium.com", "quora.com",
	"sap.com",
}

// --- 2. Brand keywords (impersonation inside subdomains) ---
var defaultBrandKeywords = []string{
	"google", "facebook", "apple", "microsoft", "amazon", "paypal", "netflix",
	"instagram", "linkedin", "twitter", "github", "dropbox", "spotify", "slack",
	"whatsapp", "youtube", "zoom", "skype", "discord", "reddit", "ebay",
}

// --- 3. Suspicious TLDs (first match wins) ---
var defaultSuspiciousTLDs = []string{
	".tk", ".ml", ".ga", ".cf", ".gq", ".top", ".click", ".download",
	".work", ".review", ".shop", ".tech", ".xyz", ".club", ".online",
	".site", ".website", ".space", ".info", ".biz",
}

// --- 4. Suspicious host keywords (every match scores) ---
var defaultSuspiciousKeywords = []string{
	"login", "signin", "secure", "verify", "update", "confirm", "account",
	"banking", "payment", "billing", "suspended", "limited", "urgent",
	"security", "support", "help", "service", "notification", "alert",
}

// --- 5. Suspicious path keywords ---
var defaultSuspiciousPaths = []string{
	"login", "signin", "verify", "secure", "update", "confirm",
}

// --- 6. Trusted domain types ---
var defaultEducationalSuffixes = []string{
	".edu", ".ac.in", ".edu.in", ".ac.uk", ".edu.au", ".ac.za",
	".edu.sg", ".ac.nz", ".edu.my", ".ac.th", ".edu.pk", ".ac.bd",
}

var defaultGovernmentSuffixes = []string{
	".gov", ".gov.in", ".gov.uk", ".gov.au", ".mil", ".org.in",
}

// .org hosts containing any of these are not trusted as organizations
var defaultOrganizationBlocklist = []string{
	"free", "win", "prize", "alert",
}

// --- 7. URL shorteners (substring of host) ---
var defaultURLShorteners = []string{
	"bit.ly", "tinyurl.com", "short.link", "t.co", "goo.gl", "ow.ly",
}

// --- 8. Adversarial samples served by /test-samples ---
func getTestSampleURLs() []string {
	return []string{
		"https://google.com",
		"https://signin-apple.com",
		"https://dropbox.com.getstorage.app",
		"https://www.linkedin.com-login-page-review.com",
		"https://xn--googl-fsa.com",                               // IDN
		"https://аpple.com",                                       // Cyrillic 'а'
		"https://paypal.com.login.verify.secure-banking.net",      // subdomain abuse
		"https://secureupdate.shop",                               // clean structure
		"https://drive.google.com/file/d/123/phishing-login.html", // trusted platform abuse
	}
}
