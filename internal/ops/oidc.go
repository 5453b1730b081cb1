package ops

import (
	"github.com/runelink/runelink/internal/app"
	"github.com/runelink/runelink/internal/models"
)

// OidcDiscovery builds the instance's OIDC discovery document.
func OidcDiscovery(state *app.State) models.OidcDiscoveryDocument {
	issuer := state.Config.APIURL()
	return models.OidcDiscoveryDocument{
		Issuer:                            issuer,
		JwksURI:                           issuer + "/.well-known/jwks.json",
		TokenEndpoint:                     issuer + "/auth/token",
		UserinfoEndpoint:                  issuer + "/auth/userinfo",
		GrantTypesSupported:               []string{"password", "refresh_token"},
		ResponseTypesSupported:            []string{},
		ScopesSupported:                   []string{},
		TokenEndpointAuthMethodsSupported: []string{"none"},
	}
}
