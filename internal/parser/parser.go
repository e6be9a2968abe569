// Package parser implements the deterministic, rule-based resume text
// parser used by stage C when extracted text is available. It is pure:
// the same text and layout always produce the same result.
package parser

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	yearRe     = regexp.MustCompile(`(\d{4})(?:\s*[-–—]\s*(\d{4}|Present|present|Now|now|Current))?`)
	percentRe  = regexp.MustCompile(`(\d+(?:\.\d+)?%)`)
	moneyRe    = regexp.MustCompile(`(\$\s?\d{1,3}(?:,\d{3})*(?:\.\d+)?)`)
	numberRe   = regexp.MustCompile(`(\d+(?:\+|k|M)?(?:\.\d+)?)\b`)
	emailRe    = regexp.MustCompile(`([a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\.[a-zA-Z0-9-.]+)`)
	phoneRe    = regexp.MustCompile(`(\+?\d[\d\s\-()]{6,}\d)`)
	ruleRe     = regexp.MustCompile(`^[-=_]{3,}$`)
	headingSan = regexp.MustCompile(`[^a-z0-9 &]`)
	spaceRe    = regexp.MustCompile(`\s+`)
	digitRe    = regexp.MustCompile(`\d`)
	inlineSkRe = regexp.MustCompile(`(?i)(Skills[:\s]+)(.+)`)
	sepDashRe  = regexp.MustCompile(`\s+[-—–]\s+`)
	blockSep   = regexp.MustCompile(`\n{2,}`)
	skillSplit = regexp.MustCompile(`[\n•\x{2022}-]+`)
	tokenSplit = regexp.MustCompile(`[,|;/]+`)
)

// sectionAliases maps the normalized section name to heading variants
// commonly seen in resumes.
var sectionAliases = map[string][]string{
	"experience":     {"experience", "work experience", "professional experience", "employment history", "work history"},
	"skills":         {"skills", "technical skills", "skills & tools", "core skills"},
	"education":      {"education", "academic", "qualifications"},
	"certifications": {"certifications", "certificates", "licenses"},
	"projects":       {"projects", "selected projects"},
	"summary":        {"summary", "professional summary", "profile", "about me"},
}

// Experience is one employment entry extracted from the experience section.
type Experience struct {
	Company string   `json:"company,omitempty"`
	Title   string   `json:"title,omitempty"`
	Start   string   `json:"start,omitempty"`
	End     string   `json:"end,omitempty"`
	Bullets []string `json:"bullets"`
	Metrics []Metric `json:"metrics"`
}

// Metric is a quantified claim found inside a bullet.
type Metric struct {
	Type string `json:"type"`
	Raw  string `json:"raw"`
}

// SuspiciousClaim flags internally inconsistent employment data.
type SuspiciousClaim struct {
	Text       string  `json:"text"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
}

func normalizeHeading(h string) string {
	s := strings.ToLower(strings.TrimSpace(h))
	s = headingSan.ReplaceAllString(s, " ")
	s = strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
	for key, aliases := range sectionAliases {
		for _, a := range aliases {
			if strings.Contains(s, a) {
				return key
			}
		}
	}
	return s
}

func isKnownSection(name string) bool {
	_, ok := sectionAliases[name]
	return ok
}

// SplitSections splits resume text on heading-looking lines. When no
// heading is detected the whole text lands under "body".
func SplitSections(text string) map[string]string {
	lines := strings.Split(text, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " \t\r")
	}

	type heading struct {
		idx  int
		text string
	}
	var headings []heading
	for idx, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		// bullet lines are never headings
		if strings.HasPrefix(trimmed, "-") || strings.HasPrefix(trimmed, "•") || strings.HasPrefix(trimmed, "*") {
			continue
		}
		words := strings.Fields(trimmed)
		low := strings.ToLower(trimmed)
		isHeading := false
		if len(words) <= 6 && (isUpperLine(trimmed) || containsAlias(low)) {
			isHeading = true
		}
		next := ""
		if idx+1 < len(lines) {
			next = strings.TrimSpace(lines[idx+1])
		}
		if strings.HasSuffix(trimmed, ":") || ruleRe.MatchString(next) {
			isHeading = true
		}
		if isHeading {
			headings = append(headings, heading{idx, trimmed})
		}
	}
	if len(headings) == 0 {
		return map[string]string{"body": text}
	}

	sections := map[string]string{}
	for i, h := range headings {
		start := h.idx + 1
		end := len(lines)
		if i+1 < len(headings) {
			end = headings[i+1].idx
		}
		secText := strings.TrimSpace(strings.Join(lines[start:end], "\n"))
		name := normalizeHeading(h.text)
		if prev, ok := sections[name]; ok {
			sections[name] = prev + "\n\n" + secText
		} else {
			sections[name] = secText
		}
	}
	return sections
}

// isUpperLine reports whether the line has at least one letter and none
// of them lowercase, so digit-only lines such as date ranges never read
// as headings.
func isUpperLine(s string) bool {
	hasLetter := false
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsLetter(r) {
			hasLetter = true
		}
	}
	return hasLetter
}

func containsAlias(low string) bool {
	for _, aliases := range sectionAliases {
		for _, a := range aliases {
			if strings.Contains(low, a) {
				return true
			}
		}
	}
	return false
}

// Contact holds heuristically extracted contact details.
type Contact struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Location string `json:"location,omitempty"`
}

// ExtractContact pulls name/email/phone/location from the top of a resume.
func ExtractContact(text string) Contact {
	var lines []string
	for _, l := range strings.Split(text, "\n") {
		if s := strings.TrimSpace(l); s != "" {
			lines = append(lines, s)
		}
	}
	var c Contact
	if len(lines) == 0 {
		return c
	}
	n := len(lines)
	header := strings.Join(lines[:min(8, n)], "\n")
	if m := emailRe.FindString(header); m != "" {
		c.Email = m
	}
	if m := phoneRe.FindString(header); m != "" {
		// a year range looks a lot like a phone number
		if !yearRe.MatchString(m) {
			c.Phone = m
		}
	}
	for _, l := range lines[:min(4, n)] {
		if strings.Contains(l, "@") || digitRe.MatchString(l) {
			continue
		}
		if isKnownSection(normalizeHeading(l)) {
			continue
		}
		if len(strings.Fields(l)) <= 6 && len(l) > 1 {
			c.Name = l
			break
		}
	}
	head := lines[:min(6, n)]
	for i := len(head) - 1; i >= 0; i-- {
		l := head[i]
		if strings.Contains(l, "@") || digitRe.MatchString(l) {
			continue
		}
		if len(strings.Fields(l)) <= 5 {
			c.Location = l
			break
		}
	}
	return c
}

// ExtractSkills splits a skills section into deduplicated tokens.
func ExtractSkills(skillsText string) []string {
	if skillsText == "" {
		return nil
	}
	var tokens []string
	for _, part := range skillSplit.Split(skillsText, -1) {
		for _, tok := range tokenSplit.Split(part, -1) {
			s := strings.TrimSpace(tok)
			if s == "" {
				continue
			}
			tokens = append(tokens, spaceRe.ReplaceAllString(s, " "))
		}
	}
	seen := map[string]bool{}
	var out []string
	for _, t := range tokens {
		key := strings.ToLower(t)
		if !seen[key] {
			seen[key] = true
			out = append(out, t)
		}
	}
	return out
}

// SplitExperienceEntries breaks the experience section into per-job chunks.
func SplitExperienceEntries(expText string) []string {
	if expText == "" {
		return nil
	}
	var entries []string
	for _, block := range blockSep.Split(expText, -1) {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		var lines []string
		for _, l := range strings.Split(block, "\n") {
			if strings.TrimSpace(l) != "" {
				lines = append(lines, l)
			}
		}
		var splitIdxs []int
		for i, l := range lines {
			if yearRe.MatchString(l) {
				splitIdxs = append(splitIdxs, i)
			}
		}
		if len(splitIdxs) > 1 {
			for i, idx := range splitIdxs {
				end := len(lines)
				if i+1 < len(splitIdxs) {
					end = splitIdxs[i+1]
				}
				chunk := strings.TrimSpace(strings.Join(lines[idx:end], "\n"))
				if chunk != "" {
					entries = append(entries, chunk)
				}
			}
		} else {
			entries = append(entries, block)
		}
	}
	return entries
}

// ParseExperienceEntry parses one chunk into company/title/dates/bullets.
func ParseExperienceEntry(text string) Experience {
	var lines []string
	for _, l := range strings.Split(text, "\n") {
		if s := strings.TrimSpace(l); s != "" {
			lines = append(lines, s)
		}
	}
	var e Experience
	e.Bullets = []string{}
	e.Metrics = []Metric{}
	if len(lines) == 0 {
		return e
	}
	header := lines[0]

	for _, l := range lines[:min(2, len(lines))] {
		if m := yearRe.FindStringSubmatch(l); m != nil {
			e.Start = m[1]
			end := m[2]
			switch strings.ToLower(end) {
			case "present", "now", "current", "":
				e.End = ""
			default:
				e.End = end
			}
			break
		}
	}

	switch {
	case strings.Contains(header, " at "):
		parts := strings.SplitN(header, " at ", 2)
		e.Title, e.Company = strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	case sepDashRe.MatchString(header):
		parts := sepDashRe.Split(header, -1)
		if len(parts) >= 2 {
			left, right := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
			if strings.Contains(right, "Inc") || strings.Contains(right, "LLC") ||
				strings.Contains(right, "Ltd") || strings.Contains(right, "GmbH") {
				e.Title, e.Company = left, right
			} else if len(left) < len(right) {
				e.Title, e.Company = left, right
			} else {
				e.Company, e.Title = left, right
			}
		}
	case strings.Contains(header, ","):
		parts := strings.SplitN(header, ",", 2)
		e.Title, e.Company = strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	default:
		if len(lines) >= 2 && yearRe.MatchString(lines[1]) {
			e.Company = lines[0]
		} else if len(lines) >= 2 {
			e.Title, e.Company = lines[0], lines[1]
		} else {
			e.Title = header
		}
	}

	for _, l := range lines[1:] {
		if strings.HasPrefix(l, "-") || strings.HasPrefix(l, "•") || strings.HasPrefix(l, "*") {
			e.Bullets = append(e.Bullets, strings.TrimSpace(strings.TrimLeft(l, "-•* ")))
			continue
		}
		// date-only lines are not bullets
		if yearRe.MatchString(l) {
			continue
		}
		e.Bullets = append(e.Bullets, l)
	}

	for _, b := range e.Bullets {
		for _, m := range percentRe.FindAllString(b, -1) {
			e.Metrics = append(e.Metrics, Metric{Type: "percent", Raw: m})
		}
		for _, m := range moneyRe.FindAllString(b, -1) {
			e.Metrics = append(e.Metrics, Metric{Type: "money", Raw: m})
		}
		for _, m := range numberRe.FindAllString(b, -1) {
			e.Metrics = append(e.Metrics, Metric{Type: "number", Raw: m})
		}
	}
	return e
}
