package parser

import (
	"strings"
	"testing"
)

const sampleResume = `Jane Smith
jane.smith@example.com
+49 30 55 11 22
Berlin

SUMMARY
Data analyst with a focus on reporting automation.

SKILLS
SQL, Power BI, Python
Excel

EXPERIENCE

Data Analyst at Acme Inc
2019 - 2022
- Built dashboards in Power BI
- Reduced report latency by 40%

Junior Analyst at Beta LLC
2021 - 2023
- Cleaned datasets with Python

EDUCATION
BSc Statistics, University of Somewhere
`

func TestSplitSections(t *testing.T) {
	sections := SplitSections(sampleResume)
	for _, want := range []string{"summary", "skills", "experience", "education"} {
		if _, ok := sections[want]; !ok {
			t.Fatalf("expected section %q, got %v", want, keys(sections))
		}
	}
}

func TestExtractContact(t *testing.T) {
	c := ExtractContact(sampleResume)
	if c.Name != "Jane Smith" {
		t.Fatalf("unexpected name: %q", c.Name)
	}
	if c.Email != "jane.smith@example.com" {
		t.Fatalf("unexpected email: %q", c.Email)
	}
	if c.Phone == "" {
		t.Fatal("expected phone to be found")
	}
}

func TestExtractSkills(t *testing.T) {
	skills := ExtractSkills("SQL, Power BI, Python\nExcel")
	want := map[string]bool{"SQL": true, "Power BI": true, "Python": true, "Excel": true}
	if len(skills) != len(want) {
		t.Fatalf("unexpected skills: %v", skills)
	}
	for _, s := range skills {
		if !want[s] {
			t.Fatalf("unexpected skill %q in %v", s, skills)
		}
	}
}

func TestParseExperienceEntry(t *testing.T) {
	e := ParseExperienceEntry("Data Analyst at Acme Inc\n2019 - 2022\n- Built dashboards\n- Reduced report latency by 40%")
	if e.Title != "Data Analyst" || e.Company != "Acme Inc" {
		t.Fatalf("unexpected title/company: %q / %q", e.Title, e.Company)
	}
	if e.Start != "2019" || e.End != "2022" {
		t.Fatalf("unexpected dates: %q - %q", e.Start, e.End)
	}
	if len(e.Bullets) != 2 {
		t.Fatalf("unexpected bullets: %v", e.Bullets)
	}
	foundPercent := false
	for _, m := range e.Metrics {
		if m.Type == "percent" && m.Raw == "40%" {
			foundPercent = true
		}
	}
	if !foundPercent {
		t.Fatalf("expected percent metric, got %v", e.Metrics)
	}
}

func TestDetectOverlappingRanges(t *testing.T) {
	claims := DetectSuspiciousClaims([]Experience{
		{Start: "2019", End: "2022"},
		{Start: "2021", End: "2023"},
	})
	if len(claims) == 0 {
		t.Fatal("expected an overlap claim")
	}
	if !strings.Contains(claims[0].Reason, "overlap") {
		t.Fatalf("unexpected reason: %q", claims[0].Reason)
	}
}

func TestParseResumeText(t *testing.T) {
	res := ParseResumeText(sampleResume, nil)
	conf, ok := res.Number("confidence")
	if !ok || conf < 0.8 {
		t.Fatalf("expected high confidence, got %v", res["confidence"])
	}
	skills, _ := res["skills"].([]string)
	if len(skills) == 0 {
		t.Fatalf("expected skills, got %v", res["skills"])
	}
	claims, _ := res["suspicious_claims"].([]SuspiciousClaim)
	if len(claims) == 0 {
		t.Fatal("expected overlapping experience to be flagged")
	}
}

func TestParseResumeTextEmpty(t *testing.T) {
	res := ParseResumeText("   ", nil)
	if conf, _ := res.Number("confidence"); conf != 0 {
		t.Fatalf("expected zero confidence, got %v", conf)
	}
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
