package session

// Capabilities describes what the host platform can offer. Terminals and
// tests use NoopCapabilities.
type Capabilities interface {
	SupportsInstallPrompt() bool
	SupportsPushPermission() bool
}

type NoopCapabilities struct{}

func (NoopCapabilities) SupportsInstallPrompt() bool  { return false }
func (NoopCapabilities) SupportsPushPermission() bool { return false }

// ShouldPrompt is true when the platform supports the prompt behind flag and
// the user has not dismissed it yet.
func ShouldPrompt(store *Store, caps Capabilities, flag Flag) bool {
	if caps == nil || store.Dismissed(flag) {
		return false
	}
	switch flag {
	case FlagInstallPrompt:
		return caps.SupportsInstallPrompt()
	case FlagPushPermission:
		return caps.SupportsPushPermission()
	}
	return false
}
