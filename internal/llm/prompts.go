package llm

import (
	"fmt"
	"strings"
)

// Comparison types accepted by ComparisonPrompt and ComparisonSchema.
const (
	CompareCopyDesign = "copy_design"
	CompareSemantic   = "semantic"
	CompareBriefCopy  = "brief_copy"
)

// Sampling temperatures per task.
const (
	ImageTemperature   float32 = 0.0
	CompareTemperature float32 = 0.1
	DesignTemperature  float32 = 0.3
)

const ImagePrompt = "Extract all text content from this image. Include all visible text, " +
	"preserving the layout and structure as much as possible. If there are " +
	"tables, format them clearly. If there are prices, promotions, or " +
	"special offers, make sure to include them."

const ImageSystemInstruction = "Extract only the raw text content visible in images. " +
	"Return text without explanations or commentary."

const CompareSystemInstruction = `You are a senior commercial design validator ensuring client deliverables meet marketing standards.

Compare copy (marketing blueprint) vs design (client deliverable) and validate:
- Business messaging alignment
- Pricing/promotional accuracy
- Legal compliance
- Customer experience consistency

Focus on commercial impact.

Always respond in FRENCH. Répond toujours en FRANÇAIS.`

const DesignSystemInstruction = `You are an expert HTML designer specializing in commercial layouts. Your task is to transform a provided text-based structure file into a complete, well-structured, and visually appealing HTML commercial design.

Design guidelines:

* Color palette:
  * #ff7900 (orange): all titles (<h1>, <h2>, ...), button backgrounds, highlighted text (<strong> or an inline-styled <span>).
  * #000000 (black): section backgrounds (e.g. the disclaimer) and default text color on non-black backgrounds.
  * #e5e5e5 (gray): section backgrounds.
  * #FFFFFF (white): section backgrounds.
* Text on a black (#000000) section background must be white (#FFFFFF); elsewhere text is black.
* Follow the hierarchy implied by the structure file and use semantic tags (<header>, <nav>, <section>, <footer>, <h1>-<h6>, <p>, <a>, <img>, <button>, <ul>, <ol>, <li>, <div>).
* Nest and close every tag. Embed all CSS in a <style> block in the <head>.
* Use placeholder image URLs when no image path is given (e.g. https://via.placeholder.com/X).
* Keep every placeholder token of the form [LABEL_xxxxxx] exactly as written.

You will first receive a few example HTML results, then the structure file to turn into HTML.

Answer ONLY with the complete, working HTML code as plain text:
- no useless line breaks, keep the markup inline
- no code fences
- no conversational text outside the HTML

Please answer in the language requested in the prompt.`

// ComparisonTypes lists the supported comparison types.
func ComparisonTypes() []string {
	return []string{CompareCopyDesign, CompareSemantic, CompareBriefCopy}
}

// ValidComparison reports whether t is a supported comparison type.
func ValidComparison(t string) bool {
	switch t {
	case CompareCopyDesign, CompareSemantic, CompareBriefCopy:
		return true
	}
	return false
}

// ComparisonPrompt builds the prompt comparing text1 (the reference) with
// text2. Unknown types fall back to copy_design.
func ComparisonPrompt(comparisonType, text1, text2 string) string {
	switch comparisonType {
	case CompareSemantic:
		return fmt.Sprintf(`Analyze the semantic similarity and meaning relationship between these two texts:

TEXT 1:
%s

TEXT 2:
%s

Focus on meaning, intent, and conceptual overlap rather than exact wording.`, text1, text2)

	case CompareBriefCopy:
		return fmt.Sprintf(`Check the factual consistency and accuracy between these two texts:

REFERENCE TEXT (assumed accurate):
%s

TEXT TO VERIFY:
%s

Identify any factual discrepancies, inconsistencies, or potential errors.`, text1, text2)
	}

	return fmt.Sprintf(`You are a senior french commercial design validator responsible for ensuring client deliverables meet marketing requirements.

VALIDATION CONTEXT:
- COPY document: base marketing blueprint with all business requirements and structure
- DESIGN document: final client-facing deliverable (HTML/PDF/SMS)
- Images in the design contain critical pricing/promotional information

VALIDATION CRITERIA:
- Marketing concepts and messaging alignment
- Pricing accuracy (including promotional offers)
- Legal disclaimers completeness
- Call-to-action consistency
- Contact information accuracy
- Image content integration

COPY DOCUMENT (Marketing Blueprint):
%s

DESIGN DOCUMENT (Client Deliverable):
%s

Provide a comprehensive validation analysis focusing on commercial accuracy and client experience.`, text1, text2)
}

// ComparisonSchema returns the JSON schema of the report for comparisonType.
// Unknown types fall back to copy_design. A fresh map is returned each call.
func ComparisonSchema(comparisonType string) map[string]any {
	switch comparisonType {
	case CompareSemantic:
		return object(map[string]any{
			"summary":          describedString("Executive summary of the comparison"),
			"similarity_score": score("Overall similarity score (0-100)"),
			"semantic_analysis": object(map[string]any{
				"conceptual_overlap": describedString("Analysis of shared concepts and themes"),
				"intent_similarity":  enum("IDENTICAL", "SIMILAR", "DIFFERENT", "CONTRADICTORY"),
				"key_differences":    stringArray(""),
			}, "conceptual_overlap", "intent_similarity", "key_differences"),
		}, "summary", "similarity_score", "semantic_analysis")

	case CompareBriefCopy:
		return object(map[string]any{
			"summary":          describedString("Executive summary of the comparison"),
			"similarity_score": score("Overall similarity score (0-100)"),
			"discrepancies": map[string]any{
				"type": "array",
				"items": object(map[string]any{
					"category":    map[string]any{"type": "string"},
					"description": map[string]any{"type": "string"},
					"severity":    enum("Basse", "Intermédiaire", "Haute"),
				}, "category", "description", "severity"),
			},
			"verified_facts": stringArray(""),
		}, "summary", "similarity_score", "discrepancies", "verified_facts")
	}

	finding := func(statuses ...string) map[string]any {
		return object(map[string]any{
			"status":   enum(statuses...),
			"findings": stringArray(""),
		}, "status", "findings")
	}
	return object(map[string]any{
		"content_blocks": map[string]any{
			"type": "array",
			"items": object(map[string]any{
				"block_name":            describedString("Content section identifier"),
				"copy_requirements":     stringArray("Key requirements from copy document"),
				"design_implementation": stringArray("How it's implemented in design"),
				"validation_status": withDescription(
					enum("✅ Valide", "⚠️ Problèmes mineures", "❌ Non conforme"),
					"Block validation result"),
				"validator_notes": describedString("Detailed validation feedback"),
			}, "block_name", "copy_requirements", "design_implementation", "validation_status", "validator_notes"),
		},
		"commercial_validation": object(map[string]any{
			"pricing_accuracy":   finding("✅ Précis", "⚠️ Petites erreurs", "❌ Erreurs majeures"),
			"promotional_offers": finding("✅ Consistent", "⚠️ Problème mineur", "❌ Inconsistent"),
			"legal_disclaimers":  finding("✅ Complet", "⚠️ Partiel", "❌ Incorrect"),
		}, "pricing_accuracy", "promotional_offers", "legal_disclaimers"),
		"similarity_score": score("Commercial validation score (0-100)"),
	}, "content_blocks", "commercial_validation", "similarity_score")
}

// DesignLanguage maps a language code to the language name given to the
// model: FR is French, anything else Flemish.
func DesignLanguage(code string) string {
	if strings.EqualFold(strings.TrimSpace(code), "FR") {
		return "FRENCH"
	}
	return "FLEMISH"
}

// FormatExamples numbers design examples from 1, each followed by a rule.
func FormatExamples(examples []string) string {
	var sb strings.Builder
	for i, ex := range examples {
		fmt.Fprintf(&sb, "Example %d :\n%s\n---\n", i+1, ex)
	}
	return sb.String()
}

// DesignPrompt builds the design generation prompt. examples is the output
// of FormatExamples and language a name from DesignLanguage.
func DesignPrompt(copyText, examples, language string) string {
	return fmt.Sprintf(`- Examples of generated design content:

%s

- COPY DOCUMENT (Marketing Blueprint):

%s

Ensure the design aligns with the brand guidelines and effectively communicates the marketing message.
Always responds in %s`, examples, copyText, language)
}

func object(props map[string]any, required ...string) map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

func describedString(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func stringArray(desc string) map[string]any {
	s := map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
	if desc != "" {
		s["description"] = desc
	}
	return s
}

func enum(values ...string) map[string]any {
	return map[string]any{"type": "string", "enum": values}
}

func score(desc string) map[string]any {
	return map[string]any{"type": "integer", "minimum": 0, "maximum": 100, "description": desc}
}

func withDescription(s map[string]any, desc string) map[string]any {
	s["description"] = desc
	return s
}
