// Package providers delivers rendered notifications over their channels.
//
// Each channel has one Provider: SMS and PUSH post JSON to HTTP gateways
// through pkg/outbound, EMAIL goes through pkg/email (SMTP or Postmark) and
// IN_APP is emitted to the realtime gateway. A Registry built at startup
// maps channels to providers and implements notifications.Deliverer.
//
// Providers built without credentials run in dry-run mode: they log the
// send they would have made and report success without any network I/O.
package providers
