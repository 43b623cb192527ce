package openai

import "fmt"

const extractionSystemPrompt = `You are an annotation assistant for pedagogical agent design research. You receive a text describing or discussing a pedagogical agent and return ONLY valid JSON following the PALD schema:
{
  "global_design_level": {
    "communication_modality": string,
    "embodiment": string,
    "agent_type": string
  },
  "middle_design_level": {
    "gender": string,
    "age": string,
    "role": string,
    "realism": string,
    "appearance_style": string
  },
  "detailed_level": {
    "hair": string,
    "clothing": string,
    "facial_features": string,
    "accessories": string,
    "voice": string,
    "body_features": string
  },
  "design_elements_not_in_PALD": string[]
}
Only include attributes the text actually mentions; omit keys you have no evidence for. Put design elements that fit no schema slot into design_elements_not_in_PALD. Never invent attributes, never add keys outside the schema, and never return prose outside the JSON object.`

// BuildExtractionPrompt embeds the source text into the user prompt for a
// PALD extraction request.
func BuildExtractionPrompt(text string) string {
	return fmt.Sprintf(
		"Extract the pedagogical agent design attributes from the following text.\n\nText:\n%s\n",
		text,
	)
}
