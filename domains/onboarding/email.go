package onboarding

import "strings"

// publicProviders lists consumer email domains that are rejected during
// business-email validation. Matching is exact on the domain part after
// lowercasing.
var publicProviders = map[string]struct{}{
	"gmail.com":         {},
	"googlemail.com":    {},
	"yahoo.com":         {},
	"yahoo.co.uk":       {},
	"yahoo.fr":          {},
	"ymail.com":         {},
	"outlook.com":       {},
	"hotmail.com":       {},
	"hotmail.co.uk":     {},
	"live.com":          {},
	"msn.com":           {},
	"aol.com":           {},
	"icloud.com":        {},
	"me.com":            {},
	"mac.com":           {},
	"mail.com":          {},
	"gmx.com":           {},
	"gmx.net":           {},
	"proton.me":         {},
	"protonmail.com":    {},
	"pm.me":             {},
	"publicmail.com":    {},
	"yandex.com":        {},
	"yandex.ru":         {},
	"zoho.com":          {},
	"fastmail.com":      {},
	"tutanota.com":      {},
	"mail.ru":           {},
	"qq.com":            {},
	"163.com":           {},
	"126.com":           {},
	"rediffmail.com":    {},
	"rocketmail.com":    {},
	"mailinator.com":    {},
	"guerrillamail.com": {},
}

// IsBusinessEmail reports whether the address belongs to a business domain,
// i.e. one not on the known public-consumer-provider list. Malformed
// addresses are not business emails.
func IsBusinessEmail(email string) bool {
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return false
	}
	domain := strings.ToLower(strings.TrimSpace(email[at+1:]))
	if domain == "" || !strings.Contains(domain, ".") {
		return false
	}
	_, public := publicProviders[domain]
	return !public
}

// EmailLocalPart returns the part before the '@', used as a last-resort
// name source during registration.
func EmailLocalPart(email string) string {
	at := strings.Index(email, "@")
	if at <= 0 {
		return email
	}
	return email[:at]
}
