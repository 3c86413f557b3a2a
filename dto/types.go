package dto

type SessionState string

const (
	SessionUnknown       SessionState = "unknown"
	SessionAuthenticated SessionState = "authenticated"
	SessionAnonymous     SessionState = "anonymous"
)

type NotificationKind string

const (
	NotificationLoggedIn       NotificationKind = "logged_in"
	NotificationRenewed        NotificationKind = "renewed"
	NotificationLoggedOut      NotificationKind = "logged_out"
	NotificationSessionExpired NotificationKind = "session_expired"
	NotificationBootComplete   NotificationKind = "boot_complete"
)

// IsTerminal reports whether a notification ends a session.
func (k NotificationKind) IsTerminal() bool {
	return k == NotificationLoggedOut || k == NotificationSessionExpired
}

type RenewalTrigger string

const (
	TriggerScheduled RenewalTrigger = "scheduled"
	TriggerImmediate RenewalTrigger = "immediate"
	TriggerReactive  RenewalTrigger = "reactive"
)

type RenewalOutcome string

const (
	OutcomeSuccess   RenewalOutcome = "success"
	OutcomeFailure   RenewalOutcome = "failure"
	OutcomeDiscarded RenewalOutcome = "discarded"
)
