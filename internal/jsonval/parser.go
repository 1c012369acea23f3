package jsonval

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf16"
)

// ParseError reports a lexical or structural failure at a byte offset.
type ParseError struct {
	Offset  int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("jsonval: %s (offset %d)", e.Message, e.Offset)
}

// Parse parses a single JSON value from text. Trailing whitespace after
// the value is permitted; any other trailing content is an error.
func Parse(text string) (Value, error) {
	p := &parser{src: text}
	p.skipWS()
	v, err := p.parseValue()
	if err != nil {
		return Value{}, err
	}
	p.skipWS()
	if p.pos != len(p.src) {
		return Value{}, p.errorf("unexpected trailing content")
	}
	return v, nil
}

type parser struct {
	src string
	pos int
}

func (p *parser) errorf(format string, args ...interface{}) error {
	return &ParseError{Offset: p.pos, Message: fmt.Sprintf(format, args...)}
}

func (p *parser) peek() (byte, bool) {
	if p.pos >= len(p.src) {
		return 0, false
	}
	return p.src[p.pos], true
}

func (p *parser) skipWS() {
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *parser) expect(c byte) error {
	b, ok := p.peek()
	if !ok || b != c {
		return p.errorf("expected %q", c)
	}
	p.pos++
	return nil
}

func (p *parser) parseValue() (Value, error) {
	b, ok := p.peek()
	if !ok {
		return Value{}, p.errorf("unexpected end of input")
	}
	switch {
	case b == '{':
		return p.parseObject()
	case b == '[':
		return p.parseArray()
	case b == '"':
		s, err := p.parseStringLiteral()
		if err != nil {
			return Value{}, err
		}
		return String(s), nil
	case b == 't':
		return p.parseLiteral("true", Bool(true))
	case b == 'f':
		return p.parseLiteral("false", Bool(false))
	case b == 'n':
		return p.parseLiteral("null", Null())
	case b == '-' || (b >= '0' && b <= '9'):
		return p.parseNumber()
	default:
		return Value{}, p.errorf("unexpected character %q", b)
	}
}

func (p *parser) parseLiteral(lit string, v Value) (Value, error) {
	if p.pos+len(lit) > len(p.src) || p.src[p.pos:p.pos+len(lit)] != lit {
		return Value{}, p.errorf("invalid literal, expected %q", lit)
	}
	p.pos += len(lit)
	return v, nil
}

func (p *parser) parseNumber() (Value, error) {
	start := p.pos
	if b, ok := p.peek(); ok && b == '-' {
		p.pos++
	}
	if p.pos >= len(p.src) || p.src[p.pos] < '0' || p.src[p.pos] > '9' {
		return Value{}, p.errorf("invalid number")
	}
	if p.src[p.pos] == '0' {
		p.pos++
	} else {
		for p.pos < len(p.src) && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
			p.pos++
		}
	}
	if p.pos < len(p.src) && p.src[p.pos] == '.' {
		p.pos++
		digitStart := p.pos
		for p.pos < len(p.src) && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
			p.pos++
		}
		if p.pos == digitStart {
			return Value{}, p.errorf("invalid number: missing fractional digits")
		}
	}
	if p.pos < len(p.src) && (p.src[p.pos] == 'e' || p.src[p.pos] == 'E') {
		p.pos++
		if p.pos < len(p.src) && (p.src[p.pos] == '+' || p.src[p.pos] == '-') {
			p.pos++
		}
		digitStart := p.pos
		for p.pos < len(p.src) && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
			p.pos++
		}
		if p.pos == digitStart {
			return Value{}, p.errorf("invalid number: missing exponent digits")
		}
	}
	lit := p.src[start:p.pos]
	n, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return Value{}, p.errorf("invalid number literal %q", lit)
	}
	return Number(n), nil
}

func (p *parser) parseStringLiteral() (string, error) {
	if err := p.expect('"'); err != nil {
		return "", err
	}
	var b strings.Builder
	for {
		if p.pos >= len(p.src) {
			return "", p.errorf("unterminated string")
		}
		c := p.src[p.pos]
		if c == '"' {
			p.pos++
			return b.String(), nil
		}
		if c == '\\' {
			p.pos++
			if p.pos >= len(p.src) {
				return "", p.errorf("unterminated escape")
			}
			esc := p.src[p.pos]
			switch esc {
			case '"':
				b.WriteByte('"')
			case '\\':
				b.WriteByte('\\')
			case '/':
				b.WriteByte('/')
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			case 'b':
				b.WriteByte('\b')
			case 'f':
				b.WriteByte('\f')
			case 'u':
				r, err := p.parseUnicodeEscape()
				if err != nil {
					return "", err
				}
				b.WriteRune(r)
				continue
			default:
				return "", p.errorf("invalid escape \\%c", esc)
			}
			p.pos++
			continue
		}
		if c < 0x20 {
			return "", p.errorf("unescaped control byte 0x%02X in string", c)
		}
		b.WriteByte(c)
		p.pos++
	}
}

func (p *parser) parseUnicodeEscape() (rune, error) {
	// p.pos is at the 'u'; four hex digits follow.
	if p.pos+5 > len(p.src) {
		return 0, p.errorf("truncated \\u escape")
	}
	hex := p.src[p.pos+1 : p.pos+5]
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, p.errorf("invalid \\u escape %q", hex)
	}
	p.pos += 5
	r := rune(v)
	if utf16.IsSurrogate(r) {
		if p.pos+6 <= len(p.src) && p.src[p.pos] == '\\' && p.src[p.pos+1] == 'u' {
			hex2 := p.src[p.pos+2 : p.pos+6]
			v2, err := strconv.ParseUint(hex2, 16, 32)
			if err == nil {
				combined := utf16.DecodeRune(r, rune(v2))
				if combined != 0xFFFD {
					p.pos += 6
					return combined, nil
				}
			}
		}
		return 0xFFFD, nil
	}
	return r, nil
}

func (p *parser) parseArray() (Value, error) {
	if err := p.expect('['); err != nil {
		return Value{}, err
	}
	p.skipWS()
	var items []Value
	if b, ok := p.peek(); ok && b == ']' {
		p.pos++
		return Array(items...), nil
	}
	for {
		p.skipWS()
		v, err := p.parseValue()
		if err != nil {
			return Value{}, err
		}
		items = append(items, v)
		p.skipWS()
		b, ok := p.peek()
		if !ok {
			return Value{}, p.errorf("unterminated array")
		}
		if b == ',' {
			p.pos++
			continue
		}
		if b == ']' {
			p.pos++
			return Array(items...), nil
		}
		return Value{}, p.errorf("expected ',' or ']' in array")
	}
}

func (p *parser) parseObject() (Value, error) {
	if err := p.expect('{'); err != nil {
		return Value{}, err
	}
	p.skipWS()
	var members []Member
	if b, ok := p.peek(); ok && b == '}' {
		p.pos++
		return Object(members...), nil
	}
	seen := make(map[string]bool)
	for {
		p.skipWS()
		b, ok := p.peek()
		if !ok || b != '"' {
			return Value{}, p.errorf("expected string key")
		}
		key, err := p.parseStringLiteral()
		if err != nil {
			return Value{}, err
		}
		if seen[key] {
			return Value{}, p.errorf("duplicate object key %q", key)
		}
		seen[key] = true
		p.skipWS()
		if err := p.expect(':'); err != nil {
			return Value{}, err
		}
		p.skipWS()
		v, err := p.parseValue()
		if err != nil {
			return Value{}, err
		}
		members = append(members, Member{Key: key, Value: v})
		p.skipWS()
		b, ok = p.peek()
		if !ok {
			return Value{}, p.errorf("unterminated object")
		}
		if b == ',' {
			p.pos++
			continue
		}
		if b == '}' {
			p.pos++
			return Object(members...), nil
		}
		return Value{}, p.errorf("expected ',' or '}' in object")
	}
}
