package model

import (
	"fmt"
	"strings"
)

// TemplateKind names one of the four parameterized probe templates.
type TemplateKind string

const (
	TemplateGetNextChar           TemplateKind = "get_next_char"
	TemplateGetPrefixLengthLength TemplateKind = "get_prefix_length_length"
	TemplateGetPrefixLength       TemplateKind = "get_prefix_length"
	// TemplateCalibration is the template the Submitter's GetNumber probe
	// renders — the original's single codes['get_number'] entry, named
	// "calibration" here since get_number is only ever used to sample the
	// calibration arithmetic progression.
	TemplateCalibration TemplateKind = "calibration"
)

// CodeTemplateSet is a named bundle of the four source-code templates (one
// per TemplateKind) for a single source language. Called "CrawlerSource" in
// the original implementation; it is persisted in the code_template_sets
// table (see pkg/repository.CodeTemplateSetRepository).
type CodeTemplateSet struct {
	ID          int64
	Name        string
	Language    string
	Description string
	Templates   map[TemplateKind]string
}

// Render substitutes named placeholders ({prefix}, {limit}, {length_prefix},
// {position}, {number}) in the named template. Placeholders not present in
// args are left untouched, matching the original's use of Python str.format
// with a fixed keyword set per template.
func (s CodeTemplateSet) Render(kind TemplateKind, args map[string]string) (string, error) {
	tmpl, ok := s.Templates[kind]
	if !ok {
		return "", fmt.Errorf("code template set %q: missing template %q", s.Name, kind)
	}
	out := tmpl
	for key, val := range args {
		out = strings.ReplaceAll(out, "{"+key+"}", val)
	}
	return out, nil
}
