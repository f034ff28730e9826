// Package auth outbound credential handling
// Per-route auth strategies that decorate upstream requests, and the
// exchange-token source that trades username/password for a session token
package auth

import (
	"errors"
	"fmt"
	"net/http"

	"control-room/gateway/internal/types"
	"control-room/gateway/pkg/utils"
)

// ErrMissingCredential the route's credential is absent
var ErrMissingCredential = errors.New("credential not set")

// Apply attaches the credential to req according to spec
// Pure request decoration, no I/O. soap-token is a no-op here because the
// token travels inside the SOAP envelope.
func Apply(req *http.Request, spec types.AuthSpec, cred types.Credential) error {
	switch spec.Strategy {
	case types.AuthNone, "":
		return nil
	case types.AuthSOAPToken:
		if cred.Empty() {
			return ErrMissingCredential
		}
		return nil
	}

	if cred.Empty() {
		return ErrMissingCredential
	}

	switch spec.Strategy {
	case types.AuthBasic:
		if cred.Kind == types.CredentialUsernamePassword {
			req.Header.Set(types.HeaderAuthorization, utils.BasicAuth(cred.Username, cred.Password))
		} else {
			// API key as username, empty password
			req.Header.Set(types.HeaderAuthorization, utils.BasicAuth(cred.Key, ""))
		}

	case types.AuthBearer:
		req.Header.Set(types.HeaderAuthorization, "Bearer "+cred.Key)

	case types.AuthAPIKeyHeader:
		if spec.Param == "" {
			return fmt.Errorf("apikey-header strategy requires a header name")
		}
		req.Header.Set(spec.Param, cred.Key)

	case types.AuthAPIKeyQuery:
		if spec.Param == "" {
			return fmt.Errorf("apikey-query strategy requires a parameter name")
		}
		q := req.URL.Query()
		q.Set(spec.Param, cred.Key)
		req.URL.RawQuery = q.Encode()

	case types.AuthExchangeToken:
		req.Header.Set(types.HeaderAuthToken, cred.Key)

	default:
		return fmt.Errorf("unknown auth strategy: %s", spec.Strategy)
	}

	return nil
}

// StaticKey wraps a configured key as a credential
func StaticKey(provider, key string) types.Credential {
	return types.Credential{Provider: provider, Kind: types.CredentialStaticKey, Key: key}
}

// UsernamePassword wraps configured username/password as a credential
func UsernamePassword(provider, username, password string) types.Credential {
	return types.Credential{
		Provider: provider,
		Kind:     types.CredentialUsernamePassword,
		Username: username,
		Password: password,
	}
}

// TokenCredential wraps an exchanged or direct token as a credential
func TokenCredential(provider, token string) types.Credential {
	return types.Credential{Provider: provider, Kind: types.CredentialDirectToken, Key: token}
}
