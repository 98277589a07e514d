package cli

import (
	"fmt"
)

// parser builds the commands, flags and topics of an Engine from its
// definition. Statements:
//
//	flag <name> <bool|string|list> "<desc>" [short]
//	cmd <name>... "<desc>"
//	arg <name> <type> "<desc>"
//	example "<command line>"
//	topic <name> "<desc>"
//	text "<text>"
//
// A flag before the first cmd is global, otherwise it belongs to the last cmd.
// Mutable
type parser struct {
	lex       *lexer
	tok       token
	engine    *Engine
	lastCmd   *Command
	lastTopic *Topic
	pathBuf   [8]string
}

func newParser(dsl string, engine *Engine) *parser {
	p := &parser{
		lex:    newLexer(dsl),
		engine: engine,
	}
	p.next()
	return p
}

func (p *parser) next() {
	p.tok = p.lex.nextToken()
}

func (p *parser) parse() error {
	for p.tok.kind != tokEOF {
		if p.tok.kind == tokError {
			return fmt.Errorf("line %d: %s", p.tok.line, p.tok.value)
		}
		if err := p.parseStatement(); err != nil {
			return err
		}
	}
	return nil
}

func (p *parser) parseStatement() error {
	if p.tok.kind != tokIdentifier {
		return fmt.Errorf("line %d: expected keyword, got %q", p.tok.line, p.tok.value)
	}

	switch keyword := p.tok.value; keyword {
	case "cmd":
		return p.parseCommand()
	case "flag":
		return p.parseFlag()
	case "arg":
		return p.parseArg()
	case "example":
		return p.parseExample()
	case "topic":
		return p.parseTopic()
	case "text":
		return p.parseText()
	default:
		return fmt.Errorf("line %d: unknown keyword %q", p.tok.line, keyword)
	}
}

// expect returns the value of the current token and advances, failing when
// the token is not of the given kind.
func (p *parser) expect(kind tokenKind, what string) (string, error) {
	if p.tok.kind != kind {
		return "", fmt.Errorf("line %d: expected %s", p.tok.line, what)
	}
	v := p.tok.value
	p.next()
	return v, nil
}

func (p *parser) parseFlag() error {
	p.next() // skip 'flag'
	name, err := p.expect(tokIdentifier, "flag name")
	if err != nil {
		return err
	}
	fType, err := p.expect(tokIdentifier, "flag type")
	if err != nil {
		return err
	}
	switch fType {
	case flagBool, flagString, flagList:
	default:
		return fmt.Errorf("line %d: unknown flag type %q", p.tok.line, fType)
	}
	desc, err := p.expect(tokString, "flag description")
	if err != nil {
		return err
	}

	f := &Flag{Name: name, Type: fType, Desc: desc}

	// the short form is optional; a following keyword is not a short form
	if p.tok.kind == tokIdentifier && len(p.tok.value) == 1 {
		f.Short = p.tok.value
		p.next()
	}

	if p.lastCmd == nil {
		p.engine.GlobalFlags = append(p.engine.GlobalFlags, f)
	} else {
		p.lastCmd.Flags = append(p.lastCmd.Flags, f)
	}
	return nil
}

func (p *parser) parseCommand() error {
	p.next() // skip 'cmd'

	path := p.pathBuf[:0]
	for p.tok.kind == tokIdentifier {
		path = append(path, p.tok.value)
		p.next()
	}

	if len(path) == 0 {
		return fmt.Errorf("line %d: expected command name or path", p.tok.line)
	}

	desc := ""
	if p.tok.kind == tokString {
		desc = p.tok.value
		p.next()
	}

	var parent *Command
	var current *Command

	for i, name := range path {
		var list *[]*Command
		if parent == nil {
			list = &p.engine.Commands
		} else {
			list = &parent.Subs
		}

		current = nil
		for _, c := range *list {
			if c.Name == name {
				current = c
				break
			}
		}
		if current == nil {
			current = &Command{Name: name, Parent: parent}
			*list = append(*list, current)
		}

		if i == len(path)-1 && desc != "" {
			current.Desc = desc
		}
		parent = current
	}

	p.lastCmd = current
	p.lastTopic = nil
	return nil
}

func (p *parser) parseArg() error {
	if p.lastCmd == nil {
		return fmt.Errorf("line %d: 'arg' must follow a 'cmd'", p.tok.line)
	}
	p.next() // skip 'arg'

	name, err := p.expect(tokIdentifier, "arg name")
	if err != nil {
		return err
	}
	aType, err := p.expect(tokIdentifier, "arg type")
	if err != nil {
		return err
	}
	desc, err := p.expect(tokString, "arg description")
	if err != nil {
		return err
	}

	p.lastCmd.Args = append(p.lastCmd.Args, &Arg{Name: name, Type: aType, Desc: desc})
	return nil
}

func (p *parser) parseExample() error {
	if p.lastCmd == nil {
		return fmt.Errorf("line %d: 'example' must follow a 'cmd'", p.tok.line)
	}
	p.next() // skip 'example'
	ex, err := p.expect(tokString, "example string")
	if err != nil {
		return err
	}
	p.lastCmd.Examples = append(p.lastCmd.Examples, ex)
	return nil
}

func (p *parser) parseTopic() error {
	p.next() // skip 'topic'
	name, err := p.expect(tokIdentifier, "topic name")
	if err != nil {
		return err
	}
	desc, err := p.expect(tokString, "topic description")
	if err != nil {
		return err
	}

	t := &Topic{Name: name, Desc: desc}
	p.engine.Topics = append(p.engine.Topics, t)
	p.lastTopic = t
	p.lastCmd = nil
	return nil
}

func (p *parser) parseText() error {
	if p.lastTopic == nil {
		return fmt.Errorf("line %d: 'text' must follow a 'topic'", p.tok.line)
	}
	p.next() // skip 'text'
	text, err := p.expect(tokString, "text string")
	if err != nil {
		return err
	}
	p.lastTopic.Text = text
	return nil
}
