package auth

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/golang-jwt/jwt/v5"

	"pbirefresh/internal/common/security"
)

// TokenClaims holds the Entra ID access token claims the tools care about.
type TokenClaims struct {
	Name              string   `json:"name"`
	UPN               string   `json:"upn"`
	PreferredUsername string   `json:"preferred_username"`
	UniqueName        string   `json:"unique_name"`
	TenantID          string   `json:"tid"`
	AppDisplayName    string   `json:"app_displayname"`
	Roles             []string `json:"roles"`         // application permissions
	Scope             string   `json:"scp,omitempty"` // delegated permissions, space separated
	jwt.RegisteredClaims
}

// ParseClaims decodes an access token without verifying its signature.
// The token was already accepted by the identity library that issued it.
func ParseClaims(token string) (*TokenClaims, error) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, &TokenClaims{})
	if err != nil {
		return nil, fmt.Errorf("failed to parse JWT: %w", err)
	}
	claims, ok := parsed.Claims.(*TokenClaims)
	if !ok {
		return nil, errors.New("failed to extract claims from token")
	}
	return claims, nil
}

// Username returns the signed-in user's principal name, or "" for app-only tokens.
func (c *TokenClaims) Username() string {
	for _, v := range []string{c.UPN, c.PreferredUsername, c.UniqueName} {
		if v != "" {
			return v
		}
	}
	return ""
}

// Expiry returns the exp claim, or the zero time when absent.
func (c *TokenClaims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// Permissions lists roles for app-only tokens or scopes for delegated ones.
func (c *TokenClaims) Permissions() []string {
	if len(c.Roles) > 0 {
		return c.Roles
	}
	return strings.Fields(c.Scope)
}

// PrintTokenInfo writes a masked summary of tok to w.
func PrintTokenInfo(w io.Writer, tok azcore.AccessToken) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Token Information:")
	fmt.Fprintln(w, "------------------")
	fmt.Fprintf(w, "Expires at: %s\n", tok.ExpiresOn.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(w, "Valid for: %s\n", time.Until(tok.ExpiresOn).Round(time.Second))
	fmt.Fprintf(w, "Token (masked): %s\n", security.MaskAccessToken(tok.Token))
	fmt.Fprintf(w, "Token length: %d characters\n", len(tok.Token))

	claims, err := ParseClaims(tok.Token)
	if err != nil {
		fmt.Fprintf(w, "  (Could not parse JWT claims: %v)\n", err)
		return
	}

	fmt.Fprintln(w, "JWT Claims:")
	fmt.Fprintf(w, "  User: %s\n", ifEmpty(security.MaskEmail(claims.Username()), "(app-only)"))
	fmt.Fprintf(w, "  Application Name: %s\n", ifEmpty(claims.AppDisplayName, "(not available)"))
	tenant := "(not available)"
	if claims.TenantID != "" {
		tenant = security.MaskGUID(claims.TenantID)
	}
	fmt.Fprintf(w, "  Tenant: %s\n", tenant)
	fmt.Fprintf(w, "  Permissions: %s\n", ifEmpty(strings.Join(claims.Permissions(), ", "), "(none)"))
	fmt.Fprintln(w)
}

func ifEmpty(s, defaultVal string) string {
	if s == "" {
		return defaultVal
	}
	return s
}
