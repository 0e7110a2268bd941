package validator

import "fmt"

// Level summarizes a report. Errors always dominate warnings.
type Level string

const (
	LevelCompatible   Level = "compatible"
	LevelWarning      Level = "warning"
	LevelIncompatible Level = "incompatible"
)

// Report is the structured outcome of a validation.
type Report struct {
	Valid         bool     `json:"valid"`
	Errors        []string `json:"errors"`
	Warnings      []string `json:"warnings"`
	Level         Level    `json:"level"`
	AffectedItems []string `json:"affectedItems"`
	Suggestions   []string `json:"suggestions"`
}

type builder struct {
	r        Report
	affected map[string]struct{}
}

func newBuilder() *builder {
	return &builder{
		r: Report{
			Errors:        []string{},
			Warnings:      []string{},
			AffectedItems: []string{},
			Suggestions:   []string{},
		},
		affected: map[string]struct{}{},
	}
}

func (b *builder) touch(item string) {
	if item == "" {
		return
	}
	if _, ok := b.affected[item]; ok {
		return
	}
	b.affected[item] = struct{}{}
	b.r.AffectedItems = append(b.r.AffectedItems, item)
}

func (b *builder) errorf(item, format string, args ...any) {
	b.touch(item)
	b.r.Errors = append(b.r.Errors, prefixed(item, fmt.Sprintf(format, args...)))
}

func (b *builder) warnf(item, format string, args ...any) {
	b.touch(item)
	b.r.Warnings = append(b.r.Warnings, prefixed(item, fmt.Sprintf(format, args...)))
}

func (b *builder) suggest(format string, args ...any) {
	s := fmt.Sprintf(format, args...)
	for _, existing := range b.r.Suggestions {
		if existing == s {
			return
		}
	}
	b.r.Suggestions = append(b.r.Suggestions, s)
}

// merge folds another report in, scoping its messages to item.
func (b *builder) merge(item string, other Report) {
	for _, e := range other.Errors {
		b.errorf(item, "%s", e)
	}
	for _, w := range other.Warnings {
		b.warnf(item, "%s", w)
	}
	for _, s := range other.Suggestions {
		b.suggest("%s", s)
	}
}

func (b *builder) report() Report {
	b.r.Valid = len(b.r.Errors) == 0
	b.r.Level = computeLevel(len(b.r.Errors), len(b.r.Warnings))
	return b.r
}

func computeLevel(errs, warnings int) Level {
	switch {
	case errs > 0:
		return LevelIncompatible
	case warnings > 0:
		return LevelWarning
	default:
		return LevelCompatible
	}
}

func prefixed(item, msg string) string {
	if item == "" {
		return msg
	}
	return item + ": " + msg
}
