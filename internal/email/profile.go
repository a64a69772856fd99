package email

import "strings"

// ProviderProfile captures the quirks a provider needs worked around,
// derived from the capability set the server advertised at connect time.
// Keying behavior off capabilities keeps hostname sniffing out of the
// engine.
type ProviderProfile struct {
	// GmailExtensions marks servers advertising X-GM-EXT-1; these accept a
	// vendor search that forces the mailbox view to refresh.
	GmailExtensions bool

	// Sluggish marks servers without push support, which tend to need a
	// short pause and a second keepalive before reporting new mail.
	Sluggish bool

	// Idle marks servers advertising IDLE.
	Idle bool
}

// DetectProfile derives a provider profile from a capability set.
func DetectProfile(caps map[string]bool) ProviderProfile {
	normalized := make(map[string]bool, len(caps))
	for c, ok := range caps {
		if ok {
			normalized[strings.ToUpper(c)] = true
		}
	}
	return ProviderProfile{
		GmailExtensions: normalized["X-GM-EXT-1"],
		Sluggish:        !normalized["IDLE"],
		Idle:            normalized["IDLE"],
	}
}

// Profile returns the provider profile for this session's server.
func (s *ImapSession) Profile() ProviderProfile {
	return DetectProfile(s.caps)
}
