// Package auth obtains and persists Azure AD credentials for the Graph API.
// First-run sign-in uses the OAuth2 device-code flow so the tool can run on a
// headless host; refreshed tokens are written back to the token store
// transparently.
package auth

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"
)

// Scopes requested from Azure AD. offline_access is required for refresh
// tokens to be issued at all.
var Scopes = []string{
	"offline_access",
	"Calendars.ReadWrite",
	"Calendars.ReadWrite.Shared",
	"Mail.Send",
	"User.Read",
}

// TokenStore is an interface for saving and loading OAuth tokens.
type TokenStore interface {
	SaveToken(token *oauth2.Token) error
	LoadToken() (*oauth2.Token, error)
}

// NewOAuthConfig builds the oauth2 configuration for the tenant's Azure AD
// endpoint.
func NewOAuthConfig(tenantID, clientID string) *oauth2.Config {
	return &oauth2.Config{
		ClientID: clientID,
		Endpoint: microsoft.AzureADEndpoint(tenantID),
		Scopes:   Scopes,
	}
}

// autoSaveTokenSource wraps an oauth2.TokenSource and persists tokens
// whenever the access token changes.
type autoSaveTokenSource struct {
	source     oauth2.TokenSource
	tokenStore TokenStore
	lastToken  *oauth2.Token
}

func (a *autoSaveTokenSource) Token() (*oauth2.Token, error) {
	token, err := a.source.Token()
	if err != nil {
		return nil, err
	}

	if a.lastToken == nil || a.lastToken.AccessToken != token.AccessToken {
		if err := a.tokenStore.SaveToken(token); err != nil {
			return nil, fmt.Errorf("failed to save refreshed token: %w", err)
		}
		a.lastToken = token
	}

	return token, nil
}

// Login runs the device-code flow and stores the resulting token. The user
// is told where to browse and which code to enter; the call blocks until the
// grant completes or ctx expires.
func Login(ctx context.Context, oauthConfig *oauth2.Config, tokenStore TokenStore) (*oauth2.Token, error) {
	deviceAuth, err := oauthConfig.DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start device authorization: %w", err)
	}

	fmt.Printf("To sign in, visit %s and enter the code %s\n",
		deviceAuth.VerificationURI, deviceAuth.UserCode)
	fmt.Println("Waiting for authorization...")

	token, err := oauthConfig.DeviceAccessToken(ctx, deviceAuth)
	if err != nil {
		return nil, fmt.Errorf("device authorization failed: %w", err)
	}

	if err := tokenStore.SaveToken(token); err != nil {
		return nil, fmt.Errorf("failed to save token: %w", err)
	}

	fmt.Println("Authorization successful!")
	return token, nil
}

// GetAuthenticatedClient returns an HTTP client carrying Graph credentials.
// A stored token is used when present; otherwise the device-code flow runs
// first. Refreshed tokens are saved back to the store.
func GetAuthenticatedClient(ctx context.Context, oauthConfig *oauth2.Config, tokenStore TokenStore) (*http.Client, error) {
	token, err := tokenStore.LoadToken()
	if err != nil {
		return nil, fmt.Errorf("failed to load token: %w", err)
	}

	if token == nil {
		token, err = Login(ctx, oauthConfig, tokenStore)
		if err != nil {
			return nil, err
		}
	}

	autoSaveSource := &autoSaveTokenSource{
		source:     oauth2.ReuseTokenSource(token, oauthConfig.TokenSource(ctx, token)),
		tokenStore: tokenStore,
		lastToken:  token,
	}

	return oauth2.NewClient(ctx, autoSaveSource), nil
}
