package domain

import (
	"fmt"
	"strings"
)

// Temperature bands for retrieval keywords, in °C. At or above the extreme
// band the query leads with "extreme heat"; at or above the elevated band
// with the weaker "heat risk".
const (
	ExtremeHeatBandC  = 32.0
	ElevatedHeatBandC = 28.0
)

// queryAnchor pins every retrieval query to the knowledge base's domain.
const queryAnchor = "health advice Kenya mothers"

// FallbackAdvice is substituted when the generation service fails. A
// triggered alert is never dropped purely because generation failed.
const FallbackAdvice = "Unable to generate personalized message at this time. Please check back later."

// BuildRetrievalQuery assembles the knowledge-base search string from
// recipient attributes and temperature-derived risk keywords.
func BuildRetrievalQuery(status MaternalStatus, medicalConditions string, temperatureMax float64) string {
	var keywords []string

	switch {
	case temperatureMax >= ExtremeHeatBandC:
		keywords = append(keywords, "extreme heat")
	case temperatureMax >= ElevatedHeatBandC:
		keywords = append(keywords, "heat risk")
	}

	switch status {
	case StatusAntenatal:
		keywords = append(keywords, "pregnancy")
	case StatusPostnatal:
		keywords = append(keywords, "postpartum")
	}

	if conds := strings.TrimSpace(medicalConditions); conds != "" && !strings.EqualFold(conds, "none") {
		keywords = append(keywords, conds)
	}

	keywords = append(keywords, queryAnchor)
	return strings.Join(keywords, " ")
}

// BuildAdvisoryPrompt composes the generation prompt for one triggered
// alert: recipient attributes, forecast temperature, retrieved context, a
// bounded-length actionable-guidance instruction, and the language routing
// directive.
func BuildAdvisoryPrompt(result WeatherResult, contextSnippets string) string {
	var b strings.Builder
	b.WriteString("You are drafting a weather-related health alert for a mother in Kenya.\n")
	fmt.Fprintf(&b, "User details: maternal status: %s; medical conditions: %s; forecasted max temperature: %.1f°C.\n\n",
		result.MaternalStatus, result.MedicalConditions, result.TemperatureMax)
	fmt.Fprintf(&b, "Relevant health advice snippets:\n%s\n\n", contextSnippets)
	b.WriteString("Write a supportive and actionable SMS using clear everyday language for Kenyan mothers. ")
	b.WriteString("Keep it concise (under 300 words) and include specific actions they should take.")

	if IsSwahili(result.Language) {
		b.WriteString(" Respond in Swahili.")
	} else {
		b.WriteString(" Respond in English.")
	}
	return b.String()
}
