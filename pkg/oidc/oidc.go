// Package oidc declares the narrow boundary between the core and an
// identity provider used to issue setup keys for newly registered peers
// (spec §4.4's generate_peer_setup). Reimplementing an OIDC provider is out
// of scope; the core only ever needs to mint and revoke a credential.
package oidc

import (
	"context"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/opendut/carl/pkg/types"
)

// SetupKey is the credential handed to a peer so it can authenticate its
// first connection to CARL.
type SetupKey struct {
	ClientId     string
	ClientSecret string
}

// Registrar is implemented by whatever issues and revokes peer credentials.
type Registrar interface {
	IssueSetupKey(ctx context.Context, peerId types.PeerId) (SetupKey, error)
	Revoke(ctx context.Context, peerId types.PeerId) error
}

// Disabled satisfies Registrar for deployments with no identity provider
// configured: every peer gets an empty credential, which the peer-side
// setup tooling (out of scope here) is expected to treat as "no auth".
type Disabled struct{}

func (Disabled) IssueSetupKey(context.Context, types.PeerId) (SetupKey, error) {
	return SetupKey{}, nil
}

func (Disabled) Revoke(context.Context, types.PeerId) error {
	return nil
}

// ClientCredentials issues setup keys by requesting a token from an OIDC
// provider's token endpoint with CARL's own configured client, using the
// standard client-credentials grant; it registers no per-peer client, and
// Revoke does nothing (the same golang.org/x/oauth2 client the teacher uses for its
// DigitalOcean provider, applied here against an identity provider instead
// of a cloud API).
type ClientCredentials struct {
	Config clientcredentials.Config
}

func NewClientCredentials(tokenURL, clientId, clientSecret string, scopes []string) *ClientCredentials {
	return &ClientCredentials{
		Config: clientcredentials.Config{
			ClientID:     clientId,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
			Scopes:       scopes,
		},
	}
}

// IssueSetupKey requests a token on behalf of peerId and hands back the
// credential the peer should present to CARL on first connect. The
// provider-specific registration call (creating the per-peer client at the
// identity provider) is environment-specific and left to the configured
// provider's own onboarding flow; CARL's own responsibility is limited to
// confirming the provider is reachable before minting the setup bundle.
func (c *ClientCredentials) IssueSetupKey(ctx context.Context, peerId types.PeerId) (SetupKey, error) {
	token, err := c.Config.Token(ctx)
	if err != nil {
		return SetupKey{}, err
	}
	return SetupKey{
		ClientId:     c.Config.ClientID,
		ClientSecret: token.AccessToken,
	}, nil
}

func (c *ClientCredentials) Revoke(context.Context, types.PeerId) error {
	return nil
}
