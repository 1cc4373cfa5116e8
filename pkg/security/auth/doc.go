/*
Package auth derives the request principal from API keys and JWTs.

A request may carry credentials in one of two places:

	X-API-Key: sk-live-0123456789
	Authorization: Bearer <api key or HS256 JWT>

A bearer value with the three dot-separated segments of a compact JWT is
validated as a token when JWT support is enabled; anything else is looked
up as an API key. The principal is stored in the request context:

	authn, err := auth.NewAuthenticator(&cfg.Security)
	if err != nil {
		return err
	}
	handler = authn.Handle(handler)

	// downstream
	if p, ok := auth.PrincipalFromContext(r.Context()); ok {
		fmt.Println(p.UserID, p.Premium)
	}

Requests without credentials pass through anonymously. Requests with
credentials that fail validation are rejected with 401, so a mistyped key
is not silently counted against the caller's IP address.

# Premium principals

An API key marks its principal premium through the premium flag in the
configuration; a JWT does so through a boolean claim, "premium" unless
security.jwt.premium_claim names another.
*/
package auth
