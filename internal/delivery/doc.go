// Package delivery sends claimed queue items through channel providers.
//
// Each channel has a Sender (SES for email, an HTTP gateway for sms). The
// Dispatcher fans a claimed item out to every channel and recipient,
// checking the suppression list immediately before each provider call and
// appending one audit event per attempt. Provider errors are classified as
// retriable or permanent; the aggregate outcome decides whether the item is
// marked SENT, RETRYING, or FAILED.
package delivery
