// Package validator builds declarative input checks out of small Rule values.
//
// Each rule pairs a Check func with the ValidationError reported when the
// check fails. Apply runs a set of rules and collects every failure into a
// ValidationErrors, which is an error and matches ErrValidationFailed:
//
//	err := validator.Apply(
//	    validator.Required("recipientId", req.RecipientID),
//	    validator.RequiredSlice("channels", req.Channels),
//	    validator.MinNum("page", page, 1),
//	)
//	if verrs := validator.ExtractValidationErrors(err); verrs != nil {
//	    for _, f := range verrs.Fields() { ... }
//	}
//
// Rules are plain values with no shared state, so they are safe to build
// from any goroutine.
package validator
