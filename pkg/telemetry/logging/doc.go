// Package logging configures structured logging on top of log/slog.
//
// # Usage
//
//	logger, err := logging.New(logging.Config{Level: "info", Format: "json"})
//	if err != nil {
//	    return err
//	}
//	slog.SetDefault(logger)
//
// Components keep taking a *slog.Logger; the handler built here adds the
// request-scoped fields stored in the context by the HTTP middleware:
//
//	ctx = logging.WithRequestID(ctx, "9b2c...")
//	ctx = logging.WithClientID(ctx, "ip:203.0.113.7")
//	logger.InfoContext(ctx, "request admitted") // includes request_id and client_id
//
// # Redaction
//
// Attributes named like credentials (api_key, authorization, password,
// secret, token) are replaced with "[REDACTED]", and bearer tokens or API
// keys embedded in string values are masked.
package logging
