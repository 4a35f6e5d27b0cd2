// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package pivot

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// monthNames holds full and abbreviated calendar month names per language.
var monthNames = map[string][12][]string{
	"en": {
		{"January", "Jan"}, {"February", "Feb"}, {"March", "Mar"}, {"April", "Apr"},
		{"May"}, {"June", "Jun"}, {"July", "Jul"}, {"August", "Aug"},
		{"September", "Sep", "Sept"}, {"October", "Oct"}, {"November", "Nov"}, {"December", "Dec"},
	},
	"es": {
		{"enero", "ene"}, {"febrero", "feb"}, {"marzo", "mar"}, {"abril", "abr"},
		{"mayo", "may"}, {"junio", "jun"}, {"julio", "jul"}, {"agosto", "ago"},
		{"septiembre", "setiembre", "sep"}, {"octubre", "oct"}, {"noviembre", "nov"}, {"diciembre", "dic"},
	},
	"fr": {
		{"janvier", "janv."}, {"février", "févr."}, {"mars"}, {"avril", "avr."},
		{"mai"}, {"juin"}, {"juillet", "juil."}, {"août"},
		{"septembre", "sept."}, {"octobre", "oct."}, {"novembre", "nov."}, {"décembre", "déc."},
	},
	"de": {
		{"Januar", "Jan"}, {"Februar", "Feb"}, {"März", "Mär"}, {"April", "Apr"},
		{"Mai"}, {"Juni", "Jun"}, {"Juli", "Jul"}, {"August", "Aug"},
		{"September", "Sep"}, {"Oktober", "Okt"}, {"November", "Nov"}, {"Dezember", "Dez"},
	},
	"it": {
		{"gennaio", "gen"}, {"febbraio", "feb"}, {"marzo", "mar"}, {"aprile", "apr"},
		{"maggio", "mag"}, {"giugno", "giu"}, {"luglio", "lug"}, {"agosto", "ago"},
		{"settembre", "set"}, {"ottobre", "ott"}, {"novembre", "nov"}, {"dicembre", "dic"},
	},
	"pt": {
		{"janeiro", "jan"}, {"fevereiro", "fev"}, {"março", "mar"}, {"abril", "abr"},
		{"maio", "mai"}, {"junho", "jun"}, {"julho", "jul"}, {"agosto", "ago"},
		{"setembro", "set"}, {"outubro", "out"}, {"novembro", "nov"}, {"dezembro", "dez"},
	},
	"nl": {
		{"januari", "jan"}, {"februari", "feb"}, {"maart", "mrt"}, {"april", "apr"},
		{"mei"}, {"juni", "jun"}, {"juli", "jul"}, {"augustus", "aug"},
		{"september", "sep"}, {"oktober", "okt"}, {"november", "nov"}, {"december", "dec"},
	},
}

var monthMatcher = language.NewMatcher([]language.Tag{
	language.English, language.Spanish, language.French, language.German,
	language.Italian, language.Portuguese, language.Dutch,
})

var monthLanguages = []string{"en", "es", "fr", "de", "it", "pt", "nl"}

// Locale provides the locale-aware text equivalence used when deduplicating
// shared items, the collation used to order pivot field items, and month
// name resolution for chronological sorting. A Locale is not safe for
// concurrent use.
type Locale struct {
	Tag      language.Tag
	equal    *collate.Collator
	order    *collate.Collator
	buf      collate.Buffer
	fold     cases.Caser
	months   map[string]int
	monthTag language.Tag
}

// NewLocale returns the locale for a BCP 47 language tag such as "en-US" or
// "es". An empty tag selects English.
func NewLocale(tag string) (*Locale, error) {
	if tag == "" {
		tag = "en-US"
	}
	t, err := language.Parse(tag)
	if err != nil {
		return nil, fmt.Errorf("%w: locale %q: %v", ErrParameterInvalid, tag, err)
	}
	l := &Locale{
		Tag:   t,
		equal: collate.New(t, collate.IgnoreCase),
		order: collate.New(t),
		fold:  cases.Fold(),
	}
	_, idx, _ := monthMatcher.Match(t)
	l.monthTag = language.MustParse(monthLanguages[idx])
	l.months = make(map[string]int)
	for i, names := range monthNames[monthLanguages[idx]] {
		for _, name := range names {
			l.months[l.fold.String(name)] = i
		}
	}
	return l, nil
}

// Equivalent reports whether two strings are the same text under the
// locale's collation, ignoring case.
func (l *Locale) Equivalent(a, b string) bool {
	return l.equal.CompareString(a, b) == 0
}

// key returns a dictionary key that is identical for equivalent strings.
func (l *Locale) key(s string) string {
	l.buf.Reset()
	return string(l.equal.KeyFromString(&l.buf, s))
}

// Compare orders two strings by the locale's collation.
func (l *Locale) Compare(a, b string) int {
	return l.order.CompareString(a, b)
}

// MonthIndex resolves a full or abbreviated month name in the locale's
// language to its zero based calendar index.
func (l *Locale) MonthIndex(name string) (int, bool) {
	i, ok := l.months[l.fold.String(strings.TrimSpace(name))]
	return i, ok
}

// MonthLanguage returns the language whose month names are resolved.
func (l *Locale) MonthLanguage() language.Tag {
	return l.monthTag
}
