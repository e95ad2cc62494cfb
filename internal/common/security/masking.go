// Package security masks credentials and identifiers before they reach logs
// or the console.
package security

import "strings"

// MaskUsername masks a username for safe logging.
// Shows first 2 and last 2 characters with **** in between.
// Short usernames (4 characters or less) are fully masked.
func MaskUsername(username string) string {
	if len(username) <= 4 {
		return "****"
	}
	return username[:2] + "****" + username[len(username)-2:]
}

// MaskAccessToken masks a bearer token.
// Shows first 8 and last 4 characters for long tokens; shorter tokens are fully masked.
func MaskAccessToken(token string) string {
	if len(token) == 0 {
		return ""
	}
	if len(token) <= 16 {
		return "****"
	}
	return token[:8] + "..." + token[len(token)-4:]
}

// MaskSecret masks a client secret, SMTP password or PFX password.
func MaskSecret(secret string) string {
	if len(secret) == 0 {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return secret[:4] + "****"
}

// MaskGUID masks a tenant, client, workspace or dataset ID.
// Shows first 8 characters, enough to tell resources apart in a log.
func MaskGUID(guid string) string {
	if len(guid) <= 8 {
		return guid + "****"
	}
	return guid[:8] + "****"
}

// MaskEmail masks an email address for safe logging.
// Example: "user@example.com" becomes "us****@ex****"
func MaskEmail(email string) string {
	if len(email) == 0 {
		return ""
	}

	localPart, domain, found := strings.Cut(email, "@")
	if !found {
		return MaskUsername(email)
	}

	maskedLocal := "****"
	if len(localPart) > 2 {
		maskedLocal = localPart[:2] + "****"
	}

	maskedDomain := "****"
	if len(domain) > 2 {
		maskedDomain = domain[:2] + "****"
	}

	return maskedLocal + "@" + maskedDomain
}

// MaskEmails masks every address of a recipient list.
func MaskEmails(emails []string) []string {
	masked := make([]string, len(emails))
	for i, e := range emails {
		masked[i] = MaskEmail(e)
	}
	return masked
}
