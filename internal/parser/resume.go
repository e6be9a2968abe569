package parser

import (
	"strconv"
	"strings"
	"time"

	"github.com/SirClappington/resq/internal/domain"
)

// DetectSuspiciousClaims flags overlapping employment ranges and
// implausibly short average tenure.
func DetectSuspiciousClaims(experiences []Experience) []SuspiciousClaim {
	claims := []SuspiciousClaim{}

	type span struct{ start, end, idx int }
	var spans []span
	for i, e := range experiences {
		start, err := strconv.Atoi(e.Start)
		if err != nil {
			continue
		}
		end, err := strconv.Atoi(e.End)
		if err != nil {
			end = time.Now().UTC().Year()
		}
		if start <= end {
			spans = append(spans, span{start, end, i})
		}
	}
	for i := 0; i < len(spans); i++ {
		for j := i + 1; j < len(spans); j++ {
			if spans[j].start < spans[i].start {
				spans[i], spans[j] = spans[j], spans[i]
			}
		}
	}
	for i := 0; i+1 < len(spans); i++ {
		a, b := spans[i], spans[i+1]
		if b.start <= a.end {
			claims = append(claims, SuspiciousClaim{
				Text:       "Overlapping dates between experiences " + strconv.Itoa(a.idx) + " and " + strconv.Itoa(b.idx),
				Reason:     "Ranges " + strconv.Itoa(a.start) + "-" + strconv.Itoa(a.end) + " and " + strconv.Itoa(b.start) + "-" + strconv.Itoa(b.end) + " overlap",
				Confidence: 0.7,
			})
		}
	}
	if len(spans) > 0 {
		total := 0
		for _, s := range spans {
			total += s.end - s.start + 1
		}
		avg := float64(total) / float64(len(spans))
		if avg < 0.5 {
			claims = append(claims, SuspiciousClaim{
				Text:       "Average job tenure suspiciously low",
				Reason:     "Average tenure ~" + strconv.FormatFloat(avg, 'f', 2, 64) + " years",
				Confidence: 0.6,
			})
		}
	}
	return claims
}

// computeConfidence scores how much of the expected resume structure was
// recovered.
func computeConfidence(contact Contact, skills []string, experiences []Experience, education []map[string]any) float64 {
	score := 0.0
	if contact.Email != "" || contact.Name != "" {
		score += 0.3
	}
	if len(skills) > 0 {
		score += 0.25
	}
	if len(experiences) > 0 {
		score += 0.3
	}
	if len(education) > 0 {
		score += 0.05
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// ParseResumeText is the stage C entry point. Empty text yields an empty
// result with zero confidence rather than an error.
func ParseResumeText(text string, originalLayout map[string]any) domain.StageResult {
	if originalLayout == nil {
		originalLayout = map[string]any{}
	}
	if strings.TrimSpace(text) == "" {
		return domain.StageResult{
			"contact":           Contact{},
			"skills":            []string{},
			"experience":        []Experience{},
			"education":         []map[string]any{},
			"certs":             []map[string]any{},
			"suspicious_claims": []SuspiciousClaim{},
			"original_layout":   originalLayout,
			"confidence":        0.0,
		}
	}

	sections := SplitSections(text)

	// prefer the top-of-document header for contact details
	allLines := strings.Split(text, "\n")
	header := strings.Join(allLines[:min(8, len(allLines))], "\n")
	contact := ExtractContact(header)
	if contact.Email == "" && contact.Name == "" {
		if s, ok := sections["summary"]; ok {
			contact = ExtractContact(s)
		} else if body, ok := sections["body"]; ok {
			bodyLines := strings.Split(body, "\n")
			contact = ExtractContact(strings.Join(bodyLines[:min(8, len(bodyLines))], "\n"))
		}
	}

	var skills []string
	if s, ok := sections["skills"]; ok {
		skills = ExtractSkills(s)
	} else if m := inlineSkRe.FindStringSubmatch(text); m != nil {
		skills = ExtractSkills(m[2])
	}
	if skills == nil {
		skills = []string{}
	}

	experiences := []Experience{}
	if s, ok := sections["experience"]; ok {
		for _, entry := range SplitExperienceEntries(s) {
			experiences = append(experiences, ParseExperienceEntry(entry))
		}
	} else {
		for _, c := range blockSep.Split(text, -1) {
			if yearRe.MatchString(c) {
				experiences = append(experiences, ParseExperienceEntry(c))
			}
		}
	}

	education := []map[string]any{}
	if s, ok := sections["education"]; ok {
		for _, l := range strings.Split(s, "\n") {
			if l = strings.TrimSpace(l); l != "" {
				education = append(education, map[string]any{"text": l})
			}
		}
	}
	certs := []map[string]any{}
	if s, ok := sections["certifications"]; ok {
		for _, l := range strings.Split(s, "\n") {
			if l = strings.TrimSpace(l); l != "" {
				certs = append(certs, map[string]any{"text": l})
			}
		}
	}

	return domain.StageResult{
		"contact":           contact,
		"skills":            skills,
		"experience":        experiences,
		"education":         education,
		"certs":             certs,
		"suspicious_claims": DetectSuspiciousClaims(experiences),
		"original_layout":   originalLayout,
		"confidence":        computeConfidence(contact, skills, experiences, education),
	}
}
