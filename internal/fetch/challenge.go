package fetch

import "strings"

// pageState is the browser channel's polling state machine.
type pageState int

const (
	stateLoading pageState = iota
	stateChallengeDetected
	stateReady
	stateFailed
)

func (s pageState) String() string {
	switch s {
	case stateLoading:
		return "loading"
	case stateChallengeDetected:
		return "challenge_detected"
	case stateReady:
		return "ready"
	default:
		return "failed"
	}
}

var challengeIndicators = []string{
	"unusual traffic",
	"captcha",
	"verify you are human",
	"i'm not a robot",
	"our systems have detected",
}

// classifyPage maps one observation of the rendered page to a state. A
// challenge indicator wins over everything; a usable page needs the search
// input back and some body text.
func classifyPage(bodyText string, hasSearchInput bool) pageState {
	lower := strings.ToLower(bodyText)
	for _, ind := range challengeIndicators {
		if strings.Contains(lower, ind) {
			return stateChallengeDetected
		}
	}
	if hasSearchInput && strings.TrimSpace(bodyText) != "" {
		return stateReady
	}
	return stateLoading
}
