// Package parser turns a boolean query string into an immutable expression
// tree. Precedence from tightest to loosest is NOT, AND, OR; parentheses
// group and double quotes make a phrase.
package parser

import (
	"fmt"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/selfindex/pkg/errors"
)

// Node is one vertex of the query tree.
type Node interface {
	String() string
	node()
}

// Empty matches nothing. It stands for an omitted operand.
type Empty struct{}

type Term struct {
	Text string
}

type Phrase struct {
	Text string
}

type Not struct {
	Operand Node
}

type And struct {
	Left, Right Node
}

type Or struct {
	Left, Right Node
}

func (Empty) node() {}
func (Term) node() {}
func (Phrase) node() {}
func (Not) node() {}
func (And) node() {}
func (Or) node() {}

func (Empty) String() string { return "EMPTY" }
func (n Term) String() string { return n.Text }
func (n Phrase) String() string { return `"` + n.Text + `"` }
func (n Not) String() string { return "(NOT " + n.Operand.String() + ")" }
func (n And) String() string { return "(AND " + n.Left.String() + " " + n.Right.String() + ")" }
func (n Or) String() string { return "(OR " + n.Left.String() + " " + n.Right.String() + ")" }

// QuerySyntaxError identifies the token a query was rejected at. Token is
// empty and Offset is the query length when input ended too early.
type QuerySyntaxError struct {
	Token  string
	Pos    int
	Offset int
	Msg    string
}

func (e *QuerySyntaxError) Error() string {
	if e.Token == "" {
		return fmt.Sprintf("query syntax error at end of input: %s", e.Msg)
	}
	return fmt.Sprintf("query syntax error at token %d %q (offset %d): %s", e.Pos, e.Token, e.Offset, e.Msg)
}

func (e *QuerySyntaxError) Unwrap() error {
	return apperrors.ErrQuerySyntax
}

// Query is a parsed query together with the tokens it was built from.
type Query struct {
	Raw    string
	Tokens []Token
	Root   Node
}

// Parse lexes and parses query. An empty or all-whitespace query yields an
// Empty root. An operand may be omitted only at the end of input or right
// before a closing parenthesis; anything else that does not fit the grammar
// is a *QuerySyntaxError.
func Parse(query string) (*Query, error) {
	toks := Lex(query)
	p := &parser{toks: toks, end: len(query)}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.toks) {
		tok := p.toks[p.pos]
		msg := "unexpected token"
		switch tok.Kind {
		case RParen:
			msg = "unmatched ')'"
		case TermToken, PhraseToken, LParen, NotToken:
			msg = "missing operator between operands"
		}
		return nil, p.errorAt(tok, msg)
	}
	return &Query{Raw: query, Tokens: toks, Root: root}, nil
}

// Normalize collapses runs of whitespace so equivalent queries share a key.
func Normalize(query string) string {
	return strings.Join(strings.Fields(query), " ")
}

type parser struct {
	toks []Token
	pos  int
	end  int
}

func (p *parser) peek(kind TokenKind) bool {
	return p.pos < len(p.toks) && p.toks[p.pos].Kind == kind
}

func (p *parser) next() Token {
	tok := p.toks[p.pos]
	p.pos++
	return tok
}

func (p *parser) errorAt(tok Token, msg string) *QuerySyntaxError {
	return &QuerySyntaxError{Token: tok.String(), Pos: tok.Pos, Offset: tok.Offset, Msg: msg}
}

func (p *parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek(OrToken) {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = Or{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.peek(AndToken) {
		p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = And{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (Node, error) {
	if p.peek(NotToken) {
		p.next()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return Not{Operand: operand}, nil
	}
	return p.parseAtom()
}

func (p *parser) parseAtom() (Node, error) {
	if p.pos >= len(p.toks) || p.peek(RParen) {
		return Empty{}, nil
	}
	tok := p.next()
	switch tok.Kind {
	case LParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if !p.peek(RParen) {
			if p.pos >= len(p.toks) {
				return nil, &QuerySyntaxError{Pos: len(p.toks), Offset: p.end, Msg: "missing ')'"}
			}
			return nil, p.errorAt(p.toks[p.pos], "expected ')'")
		}
		p.next()
		return inner, nil
	case PhraseToken:
		return Phrase{Text: tok.Value}, nil
	case TermToken:
		return Term{Text: tok.Value}, nil
	}
	return nil, p.errorAt(tok, "expected term, phrase or '('")
}
