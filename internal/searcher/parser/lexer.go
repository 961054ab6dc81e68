package parser

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

type TokenKind int

const (
	LParen TokenKind = iota
	RParen
	PhraseToken
	AndToken
	OrToken
	NotToken
	TermToken
)

func (k TokenKind) String() string {
	switch k {
	case LParen:
		return "("
	case RParen:
		return ")"
	case PhraseToken:
		return "PHRASE"
	case AndToken:
		return "AND"
	case OrToken:
		return "OR"
	case NotToken:
		return "NOT"
	case TermToken:
		return "TERM"
	}
	return "UNKNOWN"
}

// Token is one lexical unit of a query. Pos is its index in the token
// stream, Offset its byte offset in the query text.
type Token struct {
	Kind   TokenKind
	Value  string
	Pos    int
	Offset int
}

func (t Token) String() string {
	switch t.Kind {
	case PhraseToken:
		return `"` + t.Value + `"`
	case TermToken:
		return t.Value
	}
	return t.Kind.String()
}

// Lex splits a query into tokens. A double quote opens a phrase that runs
// to the next quote or to the end of input; its interior is
// whitespace-normalised.
func Lex(query string) []Token {
	var toks []Token
	emit := func(kind TokenKind, value string, offset int) {
		toks = append(toks, Token{Kind: kind, Value: value, Pos: len(toks), Offset: offset})
	}
	i := 0
	for i < len(query) {
		r, size := utf8.DecodeRuneInString(query[i:])
		switch {
		case unicode.IsSpace(r):
			i += size
		case r == '(':
			emit(LParen, "(", i)
			i++
		case r == ')':
			emit(RParen, ")", i)
			i++
		case r == '"':
			start := i
			end := strings.IndexByte(query[i+1:], '"')
			var body string
			if end < 0 {
				body = query[i+1:]
				i = len(query)
			} else {
				body = query[i+1 : i+1+end]
				i += end + 2
			}
			emit(PhraseToken, strings.Join(strings.Fields(body), " "), start)
		default:
			start := i
			for i < len(query) {
				r, size := utf8.DecodeRuneInString(query[i:])
				if unicode.IsSpace(r) || r == '(' || r == ')' {
					break
				}
				i += size
			}
			word := query[start:i]
			switch strings.ToUpper(word) {
			case "AND":
				emit(AndToken, word, start)
			case "OR":
				emit(OrToken, word, start)
			case "NOT":
				emit(NotToken, word, start)
			default:
				emit(TermToken, word, start)
			}
		}
	}
	return toks
}
