// Package suppression implements the standing suppression list service.
//
// This is the single source of truth for whether an address may receive a
// notification on a given channel. Entries flow in from provider feedback
// (SES bounce and complaint webhooks), manual operator action, and bulk
// imports, and are checked on the hot path of every delivery attempt.
//
// The service layer contains pure business logic and depends on the
// Repository interface defined in repository.go. It never imports
// net/http or database/sql directly.
package suppression
