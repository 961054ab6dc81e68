// Package tokenizer provides text normalisation for the index engine.
// It lower-cases input, extracts alphabetic words, removes English
// stop-words, and applies the snowball English stemmer.
package tokenizer

import (
	"regexp"
	"strings"

	"github.com/kljensen/snowball/english"
)

var wordPattern = regexp.MustCompile(`[A-Za-z][A-Za-z\-']+`)

var stopWords = map[string]struct{}{
	"i": {}, "me": {}, "my": {}, "myself": {}, "we": {}, "our": {}, "ours": {},
	"ourselves": {}, "you": {}, "you're": {}, "you've": {}, "you'll": {},
	"you'd": {}, "your": {}, "yours": {}, "yourself": {}, "yourselves": {},
	"he": {}, "him": {}, "his": {}, "himself": {}, "she": {}, "she's": {},
	"her": {}, "hers": {}, "herself": {}, "it": {}, "it's": {}, "its": {},
	"itself": {}, "they": {}, "them": {}, "their": {}, "theirs": {},
	"themselves": {}, "what": {}, "which": {}, "who": {}, "whom": {},
	"this": {}, "that": {}, "that'll": {}, "these": {}, "those": {}, "am": {},
	"is": {}, "are": {}, "was": {}, "were": {}, "be": {}, "been": {},
	"being": {}, "have": {}, "has": {}, "had": {}, "having": {}, "do": {},
	"does": {}, "did": {}, "doing": {}, "a": {}, "an": {}, "the": {}, "and": {},
	"but": {}, "if": {}, "or": {}, "because": {}, "as": {}, "until": {},
	"while": {}, "of": {}, "at": {}, "by": {}, "for": {}, "with": {},
	"about": {}, "against": {}, "between": {}, "into": {}, "through": {},
	"during": {}, "before": {}, "after": {}, "above": {}, "below": {}, "to": {},
	"from": {}, "up": {}, "down": {}, "in": {}, "out": {}, "on": {}, "off": {},
	"over": {}, "under": {}, "again": {}, "further": {}, "then": {}, "once": {},
	"here": {}, "there": {}, "when": {}, "where": {}, "why": {}, "how": {},
	"all": {}, "any": {}, "both": {}, "each": {}, "few": {}, "more": {},
	"most": {}, "other": {}, "some": {}, "such": {}, "no": {}, "nor": {},
	"not": {}, "only": {}, "own": {}, "same": {}, "so": {}, "than": {},
	"too": {}, "very": {}, "can": {}, "will": {}, "just": {}, "don": {},
	"don't": {}, "should": {}, "should've": {}, "now": {}, "ll": {}, "re": {},
	"ve": {}, "ain": {}, "aren": {}, "aren't": {}, "couldn": {}, "couldn't": {},
	"didn": {}, "didn't": {}, "doesn": {}, "doesn't": {}, "hadn": {},
	"hadn't": {}, "hasn": {}, "hasn't": {}, "haven": {}, "haven't": {},
	"isn": {}, "isn't": {}, "ma": {}, "mightn": {}, "mightn't": {}, "mustn": {},
	"mustn't": {}, "needn": {}, "needn't": {}, "shan": {}, "shan't": {},
	"shouldn": {}, "shouldn't": {}, "wasn": {}, "wasn't": {}, "weren": {},
	"weren't": {}, "won": {}, "won't": {}, "wouldn": {}, "wouldn't": {},
}

// Token represents a single normalised term and its position in the
// token stream. Positions are assigned after stop-word removal.
type Token struct {
	Term     string
	Position int
}

// Options toggles each normalisation step.
type Options struct {
	Lowercase       bool `yaml:"lowercase"`
	RemoveStopwords bool `yaml:"removeStopwords"`
	Stem            bool `yaml:"stem"`
}

// DefaultOptions enables every step.
func DefaultOptions() Options {
	return Options{Lowercase: true, RemoveStopwords: true, Stem: true}
}

// Tokenizer is deterministic for a fixed Options value and safe for
// concurrent use.
type Tokenizer struct {
	opts Options
}

func New(opts Options) *Tokenizer {
	return &Tokenizer{opts: opts}
}

func (t *Tokenizer) Options() Options {
	return t.opts
}

// Tokenize breaks text into normalised Tokens.
func (t *Tokenizer) Tokenize(text string) []Token {
	if t.opts.Lowercase {
		text = strings.ToLower(text)
	}
	words := wordPattern.FindAllString(text, -1)
	tokens := make([]Token, 0, len(words))
	pos := 0
	for _, word := range words {
		if t.opts.RemoveStopwords {
			if _, isStop := stopWords[strings.ToLower(word)]; isStop {
				continue
			}
		}
		term := word
		if t.opts.Stem {
			term = english.Stem(word, false)
		}
		if term == "" {
			continue
		}
		tokens = append(tokens, Token{
			Term:     term,
			Position: pos,
		})
		pos++
	}
	return tokens
}

// Terms is Tokenize without positions.
func (t *Tokenizer) Terms(text string) []string {
	tokens := t.Tokenize(text)
	terms := make([]string, len(tokens))
	for i, tok := range tokens {
		terms[i] = tok.Term
	}
	return terms
}
