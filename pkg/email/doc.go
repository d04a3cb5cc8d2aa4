// Package email sends transactional email through a provider-agnostic
// EmailSender.
//
// Implementations:
//   - NewPostmarkClient delivers through the Postmark API
//   - NewSMTPClient delivers over SMTP with mandatory STARTTLS
//   - NewLogSender only logs, for environments without credentials
//
// New picks one from Config.Driver; the "auto" driver prefers Postmark, then
// SMTP, and falls back to the log sender.
//
//	sender, err := email.New(cfg, log)
//	if err != nil {
//	    return err
//	}
//	err = sender.SendEmail(ctx, email.SendEmailParams{
//	    SendTo:   "donor@example.com",
//	    Subject:  "Donation reminder",
//	    BodyText: body,
//	})
//
// All failures wrap ErrFailedToSendEmail, ErrInvalidParams or
// ErrInvalidConfig.
package email
