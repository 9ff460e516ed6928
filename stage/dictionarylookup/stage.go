// Package dictionarylookup implements a reference Stage that scans a
// source field for dictionary terms and writes their mapped values to a
// destination field.
package dictionarylookup

import (
	"context"
	"regexp"
	"strings"

	"github.com/kmwllc/lucille-go/document"
	"github.com/kmwllc/lucille-go/stage"
)

// Stage extracts dictionary terms from SourceField and writes their mapped
// values to DestField. When OnlyWholeWords is true, matches must fall on
// word boundaries; otherwise a case-insensitive substring match suffices.
type Stage struct {
	stage.Base
	SourceField    string
	DestField      string
	Dictionary     map[string]string
	OnlyWholeWords bool

	boundary map[string]*regexp.Regexp
}

// New constructs a dictionary-lookup Stage. Dictionary keys are matched
// case-insensitively.
func New(name, sourceField, destField string, dictionary map[string]string, onlyWholeWords bool, cond stage.Condition) *Stage {
	lower := make(map[string]string, len(dictionary))
	for k, v := range dictionary {
		lower[strings.ToLower(k)] = v
	}
	s := &Stage{
		Base:           stage.NewBase(name, cond),
		SourceField:    sourceField,
		DestField:      destField,
		Dictionary:     lower,
		OnlyWholeWords: onlyWholeWords,
	}
	if onlyWholeWords {
		s.boundary = make(map[string]*regexp.Regexp, len(lower))
		for term := range lower {
			s.boundary[term] = regexp.MustCompile(`\b` + regexp.QuoteMeta(term) + `\b`)
		}
	}
	return s
}

// ProcessDocument never emits children; it only writes DestField.
func (s *Stage) ProcessDocument(ctx context.Context, doc *document.Document) ([]*document.Document, error) {
	text, ok := doc.GetString(s.SourceField)
	if !ok {
		return nil, nil
	}
	lowerText := strings.ToLower(text)

	var matched []string
	for term, mapped := range s.Dictionary {
		if s.OnlyWholeWords {
			if s.boundary[term].MatchString(lowerText) {
				matched = append(matched, mapped)
			}
		} else if strings.Contains(lowerText, term) {
			matched = append(matched, mapped)
		}
	}

	for _, m := range matched {
		if err := doc.AddToField(s.DestField, m); err != nil {
			return nil, err
		}
	}
	return nil, nil
}
