package adapter

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/SirClappington/resq/internal/domain"
	"github.com/SirClappington/resq/internal/parser"
)

// Local is the deterministic in-process adapter. Given the same payload
// and seed it always produces the same result, which makes it the safe
// fallback for remote failures and the default for development.
type Local struct{}

func NewLocal() *Local { return &Local{} }

var (
	wordRe  = regexp.MustCompile(`[A-Za-z][A-Za-z0-9+#.]*`)
	spaceRe = regexp.MustCompile(`\s+`)
)

var atsPlatforms = []string{"greenhouse", "lever", "workday", "taleo", "icims", "smartrecruiters"}

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "in": true, "is": true,
	"of": true, "on": true, "or": true, "the": true, "to": true, "with": true,
	"we": true, "you": true, "our": true, "your": true, "will": true,
}

func (l *Local) RunStage(_ context.Context, stage string, payload map[string]any, seed int64) (domain.StageResult, error) {
	switch stage {
	case domain.StageJDNormalize:
		return l.normalize(payload), nil
	case domain.StageJDExtract:
		return l.extract(payload), nil
	case domain.StageResumeParse:
		text, _ := payload["file_text"].(string)
		layout, _ := payload["original_layout"].(map[string]any)
		return parser.ParseResumeText(text, layout), nil
	case domain.StageMatcherScore:
		return l.score(payload), nil
	case domain.StageRecommend:
		return l.recommend(payload), nil
	case domain.StageLatexAdapt:
		return l.latex(payload), nil
	default:
		return nil, fmt.Errorf("unknown stage %q", stage)
	}
}

func (l *Local) normalize(payload map[string]any) domain.StageResult {
	content, _ := payload["content"].(string)
	cleaned := strings.TrimSpace(spaceRe.ReplaceAllString(content, " "))
	low := strings.ToLower(cleaned)
	candidates := []map[string]any{}
	for _, p := range atsPlatforms {
		if strings.Contains(low, p) {
			candidates = append(candidates, map[string]any{"name": p, "confidence": 0.8})
		}
	}
	return domain.StageResult{
		"cleaned_text":   cleaned,
		"ats_candidates": candidates,
		"confidence":     0.9,
	}
}

func (l *Local) extract(payload map[string]any) domain.StageResult {
	text, _ := payload["cleaned_text"].(string)
	roleTitle := text
	if i := strings.IndexAny(text, "-–—\n"); i > 0 {
		roleTitle = strings.TrimSpace(text[:i])
	}
	var keywords []string
	seen := map[string]bool{}
	for _, w := range wordRe.FindAllString(text, -1) {
		key := strings.ToLower(w)
		if len(key) < 2 || stopwords[key] || seen[key] {
			continue
		}
		seen[key] = true
		keywords = append(keywords, key)
	}
	if keywords == nil {
		keywords = []string{}
	}
	return domain.StageResult{
		"role_title": roleTitle,
		"keywords":   keywords,
		"confidence": 0.85,
	}
}

func (l *Local) score(payload map[string]any) domain.StageResult {
	jd, _ := payload["jd"].(map[string]any)
	resume, _ := payload["resume"].(map[string]any)

	keywords := stringSlice(jd["keywords"])
	skills := map[string]bool{}
	for _, s := range stringSlice(resume["skills"]) {
		for _, w := range wordRe.FindAllString(strings.ToLower(s), -1) {
			skills[w] = true
		}
	}

	matched := []string{}
	missing := []string{}
	for _, k := range keywords {
		if skills[strings.ToLower(k)] {
			matched = append(matched, k)
		} else {
			missing = append(missing, k)
		}
	}
	score := 0.0
	if len(keywords) > 0 {
		score = 100 * float64(len(matched)) / float64(len(keywords))
	}
	return domain.StageResult{
		"score":      score,
		"matched":    matched,
		"missing":    missing,
		"confidence": 0.8,
	}
}

func (l *Local) recommend(payload map[string]any) domain.StageResult {
	score, _ := domain.StageResult(payload).Number("score")
	jd, _ := payload["jd"].(map[string]any)
	resume, _ := payload["resume"].(map[string]any)

	summary := "Strong match; tailor the summary section to the role."
	switch {
	case score < 40:
		summary = "Weak match; significant skill gaps for this role."
	case score < 70:
		summary = "Partial match; address the missing keywords below."
	}

	skills := map[string]bool{}
	for _, s := range stringSlice(resume["skills"]) {
		for _, w := range wordRe.FindAllString(strings.ToLower(s), -1) {
			skills[w] = true
		}
	}
	recommendations := []string{}
	for _, k := range stringSlice(jd["keywords"]) {
		if skills[strings.ToLower(k)] {
			continue
		}
		recommendations = append(recommendations, "Add evidence of "+k+" to a relevant experience bullet.")
		if len(recommendations) >= 5 {
			break
		}
	}
	return domain.StageResult{
		"summary":         summary,
		"recommendations": recommendations,
		"confidence":      0.75,
	}
}

func (l *Local) latex(payload map[string]any) domain.StageResult {
	template, _ := payload["template"].(string)
	if template == "" {
		template = "onepage"
	}
	rec, _ := payload["recommendation"].(map[string]any)

	items := []string{}
	for _, r := range stringSlice(rec["recommendations"]) {
		items = append(items, `\item `+r)
	}
	return domain.StageResult{
		"template":    template,
		"suggestions": items,
		"confidence":  0.7,
	}
}

// stringSlice coerces JSON-decoded arrays into []string, ignoring
// non-string elements.
func stringSlice(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, e := range vv {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
