package registry

import (
	"context"
	"regexp"

	"github.com/straja-ai/piiscan/internal/datefind"
	"github.com/straja-ai/piiscan/internal/recognize"
)

type categoryDef struct {
	name     string
	aliases  []string
	label    string
	legacy   Shape
	denyList bool
	pattern  string
	score    float64
	model    string
	finder   Finder
}

var table = []categoryDef{
	{name: "PERSON_NAME", label: "PERSON", legacy: ShapeScalar, denyList: true},
	{name: "TITLES", label: "TITLE", legacy: ShapeScalar, denyList: true},
	{name: "DATES", label: "DATE", legacy: ShapeScalar, finder: findDates},
	{name: "CITIZENSHIP", label: "CITIZENSHIP", denyList: true},
	{name: "EMAIL", label: "EMAIL", legacy: ShapeScalar, finder: findEmails},
	{name: "ORGANIZATION", label: "ORG", legacy: ShapeScalar, model: "ORG"},
	{name: "LOCATION", label: "LOCATION", legacy: ShapeScalar, score: 0.85,
		pattern: `\b(?:\d+\s[A-Za-z]+\s(?:Street|Avenue|Road)|[A-Za-z]+\s(?:Street|Avenue|Road)|[A-Za-z]+\s(?:Area|Town|Village|City|State)|[A-Za-z]+\s(?:Country))\b`},
	{name: "PHONE_NUMBER", label: "PHONE_NUMBER", score: 0.8,
		pattern: `(\+\d{1,2}\s?)?\(?\d{3}\)?[\s.-]?\d{3}[\s.-]?\d{4}`},
	{name: "CRIMINAL_HISTORY", label: "CRIMINAL HISTORY", denyList: true},
	{name: "RELIGIOUS_AFFILIATION", aliases: []string{"RELIGIOUS_AFFLICATION"}, label: "RELIGIOUS AFFILIATION", legacy: ShapeScalar, denyList: true},
	{name: "MEDICAL_HISTORY", label: "MEDICAL HISTORY", denyList: true},
	{name: "SEXUAL_ORIENTATION", label: "SEXUAL ORIENTATION", denyList: true},
	{name: "TAX_ID", label: "TAX_ID", score: 0.9, pattern: `\b\d{3}-\d{2}-\d{4}\b`},
	{name: "DRIVER_LICENSE", label: "DRIVER_LICENSE_NUMBER", legacy: ShapeScalar, score: 0.85,
		pattern: `\b[A-Z0-9]{3}-[A-Z0-9]{6}-[A-Z0-9]{3}\b`},
	{name: "BIOMETRIC_IDENTIFIER", aliases: []string{"BIOMETERIC_IDENTIFIER"}, label: "BIOMETRIC_IDENTIFIER", score: 0.85,
		pattern: `\b[A-Z0-9]{10}\b`},
	{name: "PATIENT_ID", label: "PATIENT_ID_NUMBER", score: 0.85, pattern: `\b[A-Z]{3}-\d{5}-[A-Z0-9]{2}\b`},
	{name: "GENDERS", label: "GENDER", denyList: true},
	{name: "AAA_NUMBERS", label: "AAA Number", score: 0.9, pattern: `\d{2}-\d{2}-\d{4}-\d{4}`},
	{name: "DATE_OF_BIRTH", label: "DATE_OF_BIRTH", score: 0.85,
		pattern: `\b(?:\d{4}-\d{2}-\d{2}|\d{2}-\d{2}-\d{4}|\d{2}-\d{2}-\d{2})\b`},
	{name: "FINANCIAL_ACCOUNT", label: "FINANCIAL_ACCOUNT_NUMBER", score: 0.9,
		pattern: `\b\d{4}\s?\d{4}\s?\d{4}\s?\d{4}\b`},
}

var emailRe = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)

// findEmails applies the e-mail expression directly; matches carry no score.
func findEmails(_ context.Context, text string) ([]recognize.Match, error) {
	locs := emailRe.FindAllStringIndex(text, -1)
	out := make([]recognize.Match, 0, len(locs))
	for _, loc := range locs {
		out = append(out, recognize.Match{Label: "EMAIL", Text: text[loc[0]:loc[1]], Start: loc[0], End: loc[1]})
	}
	return out, nil
}

// findDates reports each date in its display form rather than its surface
// text.
func findDates(_ context.Context, text string) ([]recognize.Match, error) {
	dates := datefind.Find(text)
	out := make([]recognize.Match, 0, len(dates))
	for _, d := range dates {
		out = append(out, recognize.Match{Label: "DATE", Text: d.String(), Start: d.Start, End: d.End})
	}
	return out, nil
}
