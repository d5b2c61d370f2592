// Package hooks maps signal events to queued notifications.
//
// A hook names a signal type, a conjunction of payload conditions, a
// template, channels, and recipients. The matcher evaluates every enabled
// hook against an incoming signal, resolves recipients (static addresses,
// directory roles, payload fields), and enqueues one notification per
// matching hook. A signal is marked processed only after all hooks have
// been evaluated, even when none matched.
package hooks
