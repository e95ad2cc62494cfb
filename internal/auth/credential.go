// Package auth builds Microsoft Entra ID credentials for the Power BI and
// Graph APIs and inspects the tokens they return.
package auth

import (
	"context"
	"crypto"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"software.sslmate.com/src/go-pkcs12"

	"pbirefresh/internal/common/logger"
	"pbirefresh/internal/common/security"
)

const (
	// DefaultTenantID lets any work or school account sign in.
	DefaultTenantID = "organizations"

	// DefaultClientID is Microsoft's first-party public client, usable for
	// device code sign-in without an app registration.
	DefaultClientID = "04b07795-8ddb-461a-bbee-02f9e1bf7b46"
)

// Method is an authentication method.
type Method string

const (
	MethodDeviceCode  Method = "devicecode"
	MethodSecret      Method = "secret"
	MethodCertificate Method = "certificate"
	MethodToken       Method = "token"
)

// Config selects and parameterizes the credential.
// The first non-empty of AccessToken, Secret and PfxPath picks the method;
// with none of them the interactive device code flow is used.
type Config struct {
	TenantID    string
	ClientID    string
	Secret      string
	PfxPath     string
	PfxPass     string
	AccessToken string

	// Prompt receives the device code sign-in instructions. Defaults to stderr.
	Prompt io.Writer
	Logger *slog.Logger
}

// Method reports which authentication method cfg selects.
func (c Config) Method() Method {
	switch {
	case c.AccessToken != "":
		return MethodToken
	case c.Secret != "":
		return MethodSecret
	case c.PfxPath != "":
		return MethodCertificate
	default:
		return MethodDeviceCode
	}
}

// NewCredential returns the credential selected by cfg.
func NewCredential(cfg Config) (azcore.TokenCredential, error) {
	if cfg.TenantID == "" {
		cfg.TenantID = DefaultTenantID
	}
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultClientID
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Discard()
	}

	method := cfg.Method()
	log.Debug("Authentication method selected", "method", method,
		"tenantID", security.MaskGUID(cfg.TenantID), "clientID", security.MaskGUID(cfg.ClientID))

	switch method {
	case MethodToken:
		return NewStaticCredential(cfg.AccessToken), nil

	case MethodSecret:
		return azidentity.NewClientSecretCredential(cfg.TenantID, cfg.ClientID, cfg.Secret, nil)

	case MethodCertificate:
		pfxData, err := os.ReadFile(cfg.PfxPath)
		if err != nil {
			log.Error("Failed to read PFX file", "path", cfg.PfxPath, "error", err)
			return nil, fmt.Errorf("failed to read PFX file: %w", err)
		}
		log.Debug("PFX file read successfully", "bytes", len(pfxData))
		return newCertCredential(cfg.TenantID, cfg.ClientID, pfxData, cfg.PfxPass)

	default:
		w := cfg.Prompt
		if w == nil {
			w = os.Stderr
		}
		return azidentity.NewDeviceCodeCredential(&azidentity.DeviceCodeCredentialOptions{
			TenantID: cfg.TenantID,
			ClientID: cfg.ClientID,
			UserPrompt: func(ctx context.Context, msg azidentity.DeviceCodeMessage) error {
				_, err := fmt.Fprintln(w, msg.Message)
				return err
			},
		})
	}
}

func newCertCredential(tenantID, clientID string, pfxData []byte, password string) (*azidentity.ClientCertificateCredential, error) {
	// DecodeChain handles SHA-256 and other modern PFX encodings
	key, cert, caCerts, err := pkcs12.DecodeChain(pfxData, password)
	if err != nil {
		return nil, fmt.Errorf("failed to decode PFX: %w", err)
	}

	privKey, ok := key.(crypto.Signer)
	if !ok {
		return nil, errors.New("decoded PFX key cannot sign")
	}

	// leaf first
	certs := append([]*x509.Certificate{cert}, caCerts...)

	return azidentity.NewClientCertificateCredential(tenantID, clientID, certs, privKey,
		&azidentity.ClientCertificateCredentialOptions{SendCertificateChain: true})
}

// AcquireToken fetches a token for scope. Callers use it once before a run so
// that sign-in problems surface before any dataset is touched.
func AcquireToken(ctx context.Context, cred azcore.TokenCredential, scope string) (azcore.AccessToken, error) {
	tok, err := cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{scope}})
	if err != nil {
		return azcore.AccessToken{}, fmt.Errorf("acquire token for %s: %w", scope, err)
	}
	if tok.Token == "" {
		return azcore.AccessToken{}, errors.New("identity provider returned an empty token")
	}
	return tok, nil
}

// StaticCredential serves a token obtained elsewhere. It never renews it.
type StaticCredential struct {
	token azcore.AccessToken
}

// NewStaticCredential wraps a raw bearer token. The expiry comes from the
// token's exp claim when it is a readable JWT, otherwise one hour from now.
func NewStaticCredential(token string) *StaticCredential {
	expires := time.Now().Add(time.Hour)
	if claims, err := ParseClaims(token); err == nil {
		if exp := claims.Expiry(); !exp.IsZero() {
			expires = exp
		}
	}
	return &StaticCredential{token: azcore.AccessToken{Token: token, ExpiresOn: expires}}
}

func (s *StaticCredential) GetToken(ctx context.Context, _ policy.TokenRequestOptions) (azcore.AccessToken, error) {
	if time.Now().After(s.token.ExpiresOn) {
		return azcore.AccessToken{}, fmt.Errorf("access token expired at %s", s.token.ExpiresOn.Format(time.RFC3339))
	}
	return s.token, nil
}
