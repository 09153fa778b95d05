package scoring

import (
	"regexp"

	"github.com/sumitx99/ethical-web-watchdog/internal/interaction"
)

const biasBaseline = 85

// Request-side bias signals.
var biasPatterns = []pattern{
	// Generalizations over whole groups
	{regexp.MustCompile(`(?i)\ball (women|men|immigrants|muslims|christians|jews|asians|foreigners|liberals|conservatives|millennials|boomers) (are|always|never|can't|cannot|should)\b`), -15, "group generalization"},
	{regexp.MustCompile(`(?i)\b(women|men|girls|boys) are (naturally|inherently|biologically)\b`), -12, "gender essentialism"},
	{regexp.MustCompile(`(?i)\b(those|these) people\b`), -8, "othering language"},
	{regexp.MustCompile(`(?i)\b(typical|stereotypical) (woman|man|female|male|immigrant|muslim|asian|foreigner|teenager)\b`), -12, "stereotype phrasing"},
	{regexp.MustCompile(`(?i)\b(inferior|superior) (race|races|gender|religion|culture|cultures)\b`), -15, "supremacist framing"},
	{regexp.MustCompile(`(?i)\b(every|no) (woman|man|immigrant|foreigner|muslim|christian|politician) (is|are|can|will)\b`), -10, "absolutist group claim"},
	{regexp.MustCompile(`(?i)\bwhy (are|do) (women|men|muslims|immigrants|asians|foreigners|poor people|old people) (so|always)\b`), -10, "loaded question about a group"},

	// Loaded descriptors
	{regexp.MustCompile(`(?i)\b(illegals|thugs|savages|ghetto)\b`), -12, "loaded demographic descriptor"},
	{regexp.MustCompile(`(?i)\blike a girl\b`), -8, "gendered put-down"},
	{regexp.MustCompile(`(?i)\b(naturally|genetically) (better|worse|smarter|dumber|lazier|more violent)\b`), -12, "biological determinism"},
	{regexp.MustCompile(`(?i)\bgo back to (your|their) (own )?country\b`), -15, "xenophobic phrasing"},
	{regexp.MustCompile(`(?i)\b(real|only) (men|women) (can|should|would|don't)\b`), -8, "gender role prescription"},

	// Balance markers
	{regexp.MustCompile(`(?i)\b(on the other hand|both sides|multiple perspectives|different perspectives|nuanced|balanced view)\b`), 5, "balanced language"},
	{regexp.MustCompile(`(?i)\b(pros and cons|what are the (arguments|perspectives|views)|compare (the )?(views|perspectives))\b`), 4, "perspective request"},
}

// Response-side signals used when refining the initial score.
var biasRefinePatterns = []pattern{
	{regexp.MustCompile(`(?i)\b(women|men|immigrants|muslims|minorities|foreigners) (are|tend to be) (naturally|inherently|genetically|less|more) \w+`), -10, "stereotype endorsement"},
	{regexp.MustCompile(`(?i)\b(the only (correct|right|valid) (view|answer|opinion)|there is no other side|everyone agrees)\b`), -6, "one-sided framing"},
	{regexp.MustCompile(`(?i)\b(it depends|individuals vary|varies (widely|greatly)|avoid (generalizations|stereotypes))\b`), 4, "hedged language"},
	{regexp.MustCompile(`(?i)\b(some (people|argue|believe)|others (argue|believe)|on the other hand)\b`), 3, "multiple viewpoints"},
}

// Bias scores request text for fairness. Higher is fairer.
func Bias(text string) interaction.AnalysisScore {
	if text == "" {
		return interaction.AnalysisScore{Score: biasBaseline, Level: BiasLevel(biasBaseline), Details: noContentDetail}
	}
	delta, hits := scan(text, biasPatterns)
	score := clamp(biasBaseline + delta)
	return interaction.AnalysisScore{
		Score:   score,
		Level:   BiasLevel(score),
		Details: describe("bias indicators", hits, "no bias indicators in request"),
	}
}

// RefineBias adjusts an initial bias score with signals from the response.
// The initial score is the starting point, and its details are kept and
// extended.
func RefineBias(initial interaction.AnalysisScore, responseText string) interaction.AnalysisScore {
	if responseText == "" {
		return interaction.AnalysisScore{
			Score:   initial.Score,
			Level:   BiasLevel(initial.Score),
			Details: initial.Details + "; response: " + noContentDetail,
		}
	}
	delta, hits := scan(responseText, biasRefinePatterns)
	score := clamp(initial.Score + delta)
	return interaction.AnalysisScore{
		Score:   score,
		Level:   BiasLevel(score),
		Details: initial.Details + "; " + describe("response", hits, "no bias indicators in response"),
	}
}
