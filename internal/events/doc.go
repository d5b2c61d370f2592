// Package events owns the append-only delivery audit log.
//
// One row is appended per delivery attempt per channel per recipient, and
// provider webhooks (delivered, bounced, complained) append further rows
// referencing the same notification. Rows are never updated or deleted by
// the pipeline; the archiver moves expired rows to cold storage.
//
// Bounce and complaint feedback also drives the suppression list: a hard
// bounce or any complaint suppresses the address automatically.
package events
