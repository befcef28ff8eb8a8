package request

import "net/http"

// AuthorizeParams are the query parameters of the authorize endpoint
// (RFC 6749 §4.1.1 plus RFC 7636).
type AuthorizeParams struct {
	ResponseType        string
	ClientID            string
	RedirectURI         string
	Scope               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
}

func ParseAuthorize(r *http.Request) AuthorizeParams {
	q := r.URL.Query()
	return AuthorizeParams{
		ResponseType:        q.Get("response_type"),
		ClientID:            q.Get("client_id"),
		RedirectURI:         q.Get("redirect_uri"),
		Scope:               q.Get("scope"),
		State:               q.Get("state"),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: q.Get("code_challenge_method"),
	}
}

// TokenParams are the form parameters of the token endpoint. Client
// credentials may arrive as form fields or as HTTP Basic authentication;
// Basic wins when both are present.
type TokenParams struct {
	GrantType    string
	Code         string
	RedirectURI  string
	CodeVerifier string
	ClientID     string
	ClientSecret string
	Scope        string
}

func ParseToken(r *http.Request) TokenParams {
	p := TokenParams{
		GrantType:    r.PostFormValue("grant_type"),
		Code:         r.PostFormValue("code"),
		RedirectURI:  r.PostFormValue("redirect_uri"),
		CodeVerifier: r.PostFormValue("code_verifier"),
		ClientID:     r.PostFormValue("client_id"),
		ClientSecret: r.PostFormValue("client_secret"),
		Scope:        r.PostFormValue("scope"),
	}
	if id, secret, ok := r.BasicAuth(); ok {
		p.ClientID = id
		p.ClientSecret = secret
	}
	return p
}
