package agent

import "fmt"

// Profile captures the fixed personality configuration for one scripted
// conversational agent. Profiles are built once per session and never
// mutated afterwards.
type Profile struct {
	ID                string   `json:"id"`
	DisplayName       string   `json:"displayName"`
	Party             string   `json:"party"`
	Stance            string   `json:"stance"`
	SystemInstruction string   `json:"-"`
	TypingSpeed       float64  `json:"-"` // characters per second, pacing only
	Fillers           []string `json:"-"`
}

// Public is the profile view safe to expose to the participant-facing
// surface: display identity only, no instruction text.
type Public struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// Public returns the participant-facing view of the profile.
func (p Profile) Public() Public {
	return Public{ID: p.ID, DisplayName: p.DisplayName}
}

// displayName renders the fixed "{id} ({party})" label used in both the UI
// and persisted rows.
func displayName(id, party string) string {
	return fmt.Sprintf("%s (%s)", id, party)
}
