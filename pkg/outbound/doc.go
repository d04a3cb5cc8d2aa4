// Package outbound posts JSON documents to third-party HTTP gateways such as
// SMS carriers and push services.
//
// A Client targets a single endpoint, makes exactly one attempt per Post and
// classifies failures so callers can decide whether to retry:
//
//	c, err := outbound.New(cfg.GatewayURL,
//	    outbound.WithBearerToken(cfg.Token),
//	    outbound.WithTimeout(5*time.Second),
//	)
//	err = c.Post(ctx, payload)
//	switch {
//	case outbound.IsPermanent(err):
//	    // 4xx: do not retry
//	case errors.Is(err, outbound.ErrGatewayUnavailable):
//	    // gateway is failing, back off
//	}
//
// Each client owns a Breaker that opens after consecutive transport failures
// or 5xx responses and admits single trial calls once its cooldown passes. Optional HMAC signing binds the body to a
// timestamp; see Sign and Verify.
package outbound
