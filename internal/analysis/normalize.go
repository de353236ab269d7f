package analysis

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// categoryKeywords maps each category to the keywords that imply it.
// Order matters: the first category with a match wins, so more specific
// materials come before ambiguous ones (e.g. "bottle" appears in both
// plastic and glass, plastic wins).
var categoryKeywords = []struct {
	category Category
	keywords []string
}{
	{CategoryPlastic, []string{"plastic", "bottle", "container", "bag", "wrap"}},
	{CategoryMetal, []string{"metal", "aluminum", "steel", "iron", "can", "tin"}},
	{CategoryPaper, []string{"paper", "cardboard", "book", "magazine", "newspaper"}},
	{CategoryGlass, []string{"glass", "bottle", "jar", "window"}},
	{CategoryElectronic, []string{"electronic", "computer", "phone", "battery", "cable", "device"}},
	{CategoryTextile, []string{"fabric", "cloth", "clothing", "shirt", "pants", "textile"}},
	{CategoryOrganic, []string{"food", "organic", "fruit", "vegetable", "compost"}},
}

var carbonFootprintRe = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*kg\s*co2`)

var (
	easyKeywords = []string{"use as", "place", "store", "hold"}
	hardKeywords = []string{"cut", "modify", "build", "construct", "paint", "drill"}
)

// Normalize parses a raw provider response into a canonical Result.
//
// It first tries the structured path: if the response embeds a JSON object
// matching the canonical schema it is deserialized directly. Otherwise it
// falls back to heuristic free-text extraction. Either way a valid Result is
// returned; Normalize never fails. Confidence is always recomputed from the
// raw text so scores stay comparable across providers and parse paths.
func Normalize(raw string) *Result {
	result, ok := parseStructured(raw)
	if !ok {
		result = parseFreeText(raw)
	}
	result.Confidence = scoreConfidence(raw)
	return result
}

// parseStructured extracts the first bracketed object from the response and
// deserializes it. Returns false when no parseable object is present.
func parseStructured(raw string) (*Result, bool) {
	text := strings.TrimSpace(raw)

	// Strip markdown code blocks if present
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	// Extract JSON object from response (handles chatty responses around it)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, false
	}
	text = text[start : end+1]

	var result Result
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return nil, false
	}

	if !result.ItemCategory.Valid() {
		result.ItemCategory = inferCategory(strings.ToLower(raw))
	}
	if result.ItemName == "" && result.Description != "" {
		result.ItemName = firstSentence(result.Description)
	}
	result.Environmental = clampEnvironmental(result.Environmental)
	result.ProcessingTimeMs = 0
	return &result, true
}

// parseFreeText runs the heuristic extractor over an unstructured response.
// Always returns a usable Result; a degenerate input yields boilerplate
// guidance with the lowest confidence rather than an error.
func parseFreeText(raw string) *Result {
	result := &Result{
		ItemCategory:    CategoryOther,
		Recommendations: Recommendations{},
		Environmental:   defaultEnvironmental(),
	}

	lines := nonEmptyLines(raw)
	if len(lines) > 0 {
		result.Description = stripLeadingNumber(lines[0])
		result.ItemName = firstSentence(result.Description)
	}

	lower := strings.ToLower(raw)
	result.ItemCategory = inferCategory(lower)

	foundSection := false

	if section := extractSection(raw, []string{"recycl", "recyl"}); section != "" {
		foundSection = true
		lowerSection := strings.ToLower(section)
		result.Recommendations.Recycle = RecycleRecommendation{
			Possible: strings.Contains(lowerSection, "yes") ||
				strings.Contains(lowerSection, "can be recycled") ||
				strings.Contains(lowerSection, "recyclable"),
			Instructions: section,
			Locations:    defaultLocations(),
		}
	}

	if section := extractSection(raw, []string{"reus", "repurpos"}); section != "" {
		foundSection = true
		result.Recommendations.Reuse = ReuseRecommendation{
			// Substantial content implies reuse is viable
			Possible: len(section) > 50,
			Ideas:    extractReuseIdeas(section),
		}
	}

	if section := extractSection(raw, []string{"donat", "give away", "charity"}); section != "" {
		foundSection = true
		lowerSection := strings.ToLower(section)
		result.Recommendations.Donate = DonateRecommendation{
			Possible: strings.Contains(lowerSection, "yes") ||
				strings.Contains(lowerSection, "suitable") ||
				strings.Contains(lowerSection, "can be donated"),
			Organizations: defaultOrganizations(),
		}
	}

	if !foundSection {
		// Nothing recognizable in the text, fall back to boilerplate
		result.Recommendations = defaultRecommendations()
	}

	if m := carbonFootprintRe.FindStringSubmatch(raw); m != nil {
		if footprint, err := strconv.ParseFloat(m[1], 64); err == nil {
			result.Environmental.CarbonFootprint = footprint
			// Diverting from landfill saves roughly 60% of the footprint
			result.Environmental.CarbonSaved = footprint * 0.6
		}
	}

	return result
}

// inferCategory matches the lowercased response against the keyword lexicon.
func inferCategory(lower string) Category {
	for _, entry := range categoryKeywords {
		for _, keyword := range entry.keywords {
			if strings.Contains(lower, keyword) {
				return entry.category
			}
		}
	}
	return CategoryOther
}

// extractSection returns the block of text beginning at the first line that
// mentions one of the keywords and ending at the next recognized section
// heading (numbered heading or another action keyword).
func extractSection(text string, keywords []string) string {
	var section strings.Builder
	capturing := false

	for _, line := range strings.Split(text, "\n") {
		lower := strings.ToLower(line)

		if containsAny(lower, keywords) {
			capturing = true
			section.WriteString(line)
			section.WriteString("\n")
			continue
		}

		if capturing && isSectionBoundary(lower) && !containsAny(lower, keywords) {
			break
		}

		if capturing {
			section.WriteString(line)
			section.WriteString("\n")
		}
	}

	return strings.TrimSpace(section.String())
}

func isSectionBoundary(lower string) bool {
	return strings.Contains(lower, "1.") ||
		strings.Contains(lower, "2.") ||
		strings.Contains(lower, "3.") ||
		strings.Contains(lower, "recycl") ||
		strings.Contains(lower, "reus") ||
		strings.Contains(lower, "donat")
}

func containsAny(s string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(s, keyword) {
			return true
		}
	}
	return false
}

var bulletPrefixRe = regexp.MustCompile(`^[•\-\d.\s]+`)
var numberedLineRe = regexp.MustCompile(`^\d+\.`)

// extractReuseIdeas pulls bulleted or numbered lines out of the reuse
// section and turns them into at most five ideas. The first line is the
// section heading that started the capture, not an idea.
func extractReuseIdeas(section string) []ReuseIdea {
	lines := nonEmptyLines(section)
	if len(lines) > 0 {
		lines = lines[1:]
	}

	var ideas []ReuseIdea
	for _, line := range lines {
		if !strings.Contains(line, "•") && !strings.Contains(line, "-") && !numberedLineRe.MatchString(line) {
			continue
		}
		idea := strings.TrimSpace(bulletPrefixRe.ReplaceAllString(line, ""))
		if len(idea) <= 10 {
			continue
		}
		title := firstSentence(idea)
		ideas = append(ideas, ReuseIdea{
			Title:       title,
			Description: idea,
			Difficulty:  assessDifficulty(idea),
		})
		if len(ideas) == 5 {
			break
		}
	}
	return ideas
}

// assessDifficulty grades a reuse idea by the kind of work it implies.
// Ideas that require tools or modification are hard, passive uses are easy.
func assessDifficulty(idea string) string {
	lower := strings.ToLower(idea)
	if containsAny(lower, hardKeywords) {
		return "hard"
	}
	if containsAny(lower, easyKeywords) {
		return "easy"
	}
	return "medium"
}

// scoreConfidence computes a provider-independent confidence score from the
// raw response text: 0.5 base, bumped for substance (length, each action
// keyword, numeric content), capped at 1.0.
func scoreConfidence(raw string) float64 {
	confidence := 0.5
	lower := strings.ToLower(raw)

	if len(raw) > 100 {
		confidence += 0.2
	}
	if strings.Contains(lower, "recycl") {
		confidence += 0.1
	}
	if strings.Contains(lower, "reus") {
		confidence += 0.1
	}
	if strings.Contains(lower, "donat") {
		confidence += 0.1
	}
	if strings.ContainsAny(raw, "0123456789") {
		confidence += 0.1
	}

	if confidence > 1.0 {
		confidence = 1.0
	}
	return confidence
}

// clampEnvironmental floors negative provider estimates at zero.
func clampEnvironmental(e Environmental) Environmental {
	if e.CarbonFootprint < 0 {
		e.CarbonFootprint = 0
	}
	if e.CarbonSaved < 0 {
		e.CarbonSaved = 0
	}
	if e.WasteReduction < 0 {
		e.WasteReduction = 0
	}
	if e.EnergySaved < 0 {
		e.EnergySaved = 0
	}
	return e
}

func nonEmptyLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

var leadingNumberRe = regexp.MustCompile(`^\d+\.\s*`)

func stripLeadingNumber(line string) string {
	return strings.TrimSpace(leadingNumberRe.ReplaceAllString(line, ""))
}

// firstSentence returns the text up to the first period, truncated to a
// length usable as a short item name.
func firstSentence(s string) string {
	if i := strings.Index(s, "."); i > 0 {
		s = s[:i]
	}
	if len(s) > 80 {
		s = s[:80]
	}
	return strings.TrimSpace(s)
}
