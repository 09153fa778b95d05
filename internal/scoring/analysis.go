package scoring

import (
	"time"

	"github.com/sumitx99/ethical-web-watchdog/internal/classifier"
	"github.com/sumitx99/ethical-web-watchdog/internal/interaction"
)

// Input is the text the scorers see for one interaction.
type Input struct {
	Service      classifier.Service
	RequestText  string
	ResponseText string
}

// InputFor extracts text from the snapshots of it.
func InputFor(it interaction.Interaction) Input {
	in := Input{Service: it.Service}
	if it.Request != nil {
		in.RequestText = ExtractText(it.Request.Body)
	}
	if it.Response != nil {
		in.ResponseText = ExtractText(it.Response.Body)
	}
	return in
}

// Partial builds the request-only analysis. Safety is left unset until the
// response is known.
func Partial(in Input, now time.Time) interaction.AnalysisResult {
	return interaction.AnalysisResult{
		Bias:         Bias(in.RequestText),
		Privacy:      Privacy(in.RequestText, in.Service),
		Transparency: Transparency(in.Service, in.RequestText, ""),
		Status:       interaction.AnalysisPartial,
		Timestamp:    now,
	}
}

// Complete finishes prev with the response: it adds safety, refines bias and
// rescores transparency. Privacy carries over unchanged.
func Complete(prev interaction.AnalysisResult, in Input, now time.Time) interaction.AnalysisResult {
	safety := Safety(in.RequestText, in.ResponseText)
	return interaction.AnalysisResult{
		Bias:         RefineBias(prev.Bias, in.ResponseText),
		Privacy:      prev.Privacy,
		Safety:       &safety,
		Transparency: Transparency(in.Service, in.RequestText, in.ResponseText),
		Status:       interaction.AnalysisComplete,
		Timestamp:    now,
	}
}

// Overall is the unweighted mean of the four dimensions. A missing safety
// score counts as 0.
func Overall(r interaction.AnalysisResult) float64 {
	var safety float64
	if r.Safety != nil {
		safety = r.Safety.Score
	}
	return (r.Bias.Score + r.Privacy.Score + safety + r.Transparency.Score) / 4
}

// Rating buckets an overall score for display.
func Rating(overall float64) string {
	switch {
	case overall >= 60:
		return "Good"
	case overall >= 40:
		return "Moderate"
	default:
		return "Poor"
	}
}
