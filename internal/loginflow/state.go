package loginflow

// State is a checkpoint in the login journey.
type State int

const (
	StateStart State = iota
	StateHomepageLoaded
	StateOnSSOPage
	StateCredentialsFilled
	StateLoginVerified
)

var stateNames = map[State]string{
	StateStart:             "start",
	StateHomepageLoaded:    "homepage_loaded",
	StateOnSSOPage:         "on_sso_page",
	StateCredentialsFilled: "credentials_filled",
	StateLoginVerified:     "login_verified",
}

// stepNames label the action taken when leaving a state.
var stepNames = map[State]string{
	StateStart:             "Navigate to homepage",
	StateHomepageLoaded:    "Click login and redirect to SSO",
	StateOnSSOPage:         "Fill login credentials",
	StateCredentialsFilled: "Submit login and verify success",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Step returns the reporting name of the step that leaves s.
// The terminal state has no step.
func (s State) Step() string {
	return stepNames[s]
}

// Terminal reports whether the flow stops at s.
func (s State) Terminal() bool {
	return s == StateLoginVerified
}
