package auth

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/golang-jwt/jwt/v5"
)

func signedToken(t *testing.T, claims TokenClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	return s
}

func TestParseClaims(t *testing.T) {
	exp := time.Now().Add(30 * time.Minute).Truncate(time.Second)
	token := signedToken(t, TokenClaims{
		Name:           "Ana Souza",
		UPN:            "ana@contoso.com",
		TenantID:       "11111111-2222-3333-4444-555555555555",
		AppDisplayName: "Power BI refresher",
		Scope:          "Dataset.ReadWrite.All Workspace.Read.All",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})

	claims, err := ParseClaims(token)
	if err != nil {
		t.Fatalf("ParseClaims() error = %v", err)
	}
	if claims.Username() != "ana@contoso.com" {
		t.Errorf("Username() = %q", claims.Username())
	}
	if !claims.Expiry().Equal(exp) {
		t.Errorf("Expiry() = %v, want %v", claims.Expiry(), exp)
	}
	if got := claims.Permissions(); len(got) != 2 || got[0] != "Dataset.ReadWrite.All" {
		t.Errorf("Permissions() = %v", got)
	}
}

func TestParseClaims_Invalid(t *testing.T) {
	if _, err := ParseClaims("not-a-jwt"); err == nil {
		t.Fatal("ParseClaims() expected error")
	}
}

func TestUsername_Fallbacks(t *testing.T) {
	tests := []struct {
		name   string
		claims TokenClaims
		want   string
	}{
		{"upn first", TokenClaims{UPN: "a@x", PreferredUsername: "b@x", UniqueName: "c@x"}, "a@x"},
		{"preferred username", TokenClaims{PreferredUsername: "b@x", UniqueName: "c@x"}, "b@x"},
		{"unique name", TokenClaims{UniqueName: "c@x"}, "c@x"},
		{"app-only", TokenClaims{Roles: []string{"Tenant.Read.All"}}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.claims.Username(); got != tt.want {
				t.Errorf("Username() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPermissions_PrefersRoles(t *testing.T) {
	c := TokenClaims{Roles: []string{"Mail.Send"}, Scope: "User.Read"}
	if got := c.Permissions(); len(got) != 1 || got[0] != "Mail.Send" {
		t.Errorf("Permissions() = %v, want [Mail.Send]", got)
	}
}

func TestPrintTokenInfo(t *testing.T) {
	token := signedToken(t, TokenClaims{UPN: "ana@contoso.com", AppDisplayName: "refresher"})

	var buf bytes.Buffer
	PrintTokenInfo(&buf, azcore.AccessToken{Token: token, ExpiresOn: time.Now().Add(time.Hour)})
	out := buf.String()

	if strings.Contains(out, token) {
		t.Error("output contains the raw token")
	}
	for _, want := range []string{"Token Information:", "an****@co****", "refresher"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
