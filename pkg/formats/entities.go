// Package formats provides parsers for the text lumps of Quake levels.
package formats

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
)

// Entity lump errors.
var (
	ErrTruncatedEntities = errors.New("truncated entity lump")
	ErrUnexpectedToken   = errors.New("unexpected token in entity lump")
)

// KeyValue is one field of an entity.
type KeyValue struct {
	Key   string
	Value string
}

// Entity is one brace-delimited block of the entity lump.
type Entity struct {
	Fields []KeyValue
}

// Get returns the value of key. Later fields override earlier ones.
func (e *Entity) Get(key string) (string, bool) {
	for i := len(e.Fields) - 1; i >= 0; i-- {
		if e.Fields[i].Key == key {
			return e.Fields[i].Value, true
		}
	}
	return "", false
}

// Classname returns the entity's classname, or "" when missing.
func (e *Entity) Classname() string {
	v, _ := e.Get("classname")
	return v
}

// Vec3 parses a "x y z" field. All three components must be present.
func (e *Entity) Vec3(key string) (mgl32.Vec3, bool) {
	v, ok := e.Get(key)
	if !ok {
		return mgl32.Vec3{}, false
	}
	parts := strings.Fields(v)
	if len(parts) < 3 {
		return mgl32.Vec3{}, false
	}
	var out mgl32.Vec3
	for i := 0; i < 3; i++ {
		f, err := strconv.ParseFloat(parts[i], 32)
		if err != nil {
			return mgl32.Vec3{}, false
		}
		out[i] = float32(f)
	}
	return out, true
}

// Float parses a numeric field.
func (e *Entity) Float(key string) (float32, bool) {
	v, ok := e.Get(key)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 32)
	if err != nil {
		return 0, false
	}
	return float32(f), true
}

// Int parses an integer field.
func (e *Entity) Int(key string) (int, bool) {
	v, ok := e.Get(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return n, true
}

// ParseEntities parses an entity lump. Keys have a leading underscore and
// trailing spaces removed. On a malformed lump the entities parsed so far
// are returned together with the error.
func ParseEntities(data string) ([]Entity, error) {
	var (
		ents []Entity
		lex  = lexer{data: data}
	)

	for {
		tok, ok := lex.next()
		if !ok {
			return ents, nil
		}
		if tok != "{" {
			return ents, ErrUnexpectedToken
		}

		var ent Entity
		for {
			key, ok := lex.next()
			if !ok {
				return ents, ErrTruncatedEntities
			}
			if key == "}" {
				break
			}
			value, ok := lex.next()
			if !ok {
				return ents, ErrTruncatedEntities
			}
			if value == "}" {
				return ents, ErrUnexpectedToken
			}
			ent.Fields = append(ent.Fields, KeyValue{Key: normalizeKey(key), Value: value})
		}
		ents = append(ents, ent)
	}
}

func normalizeKey(key string) string {
	key = strings.TrimPrefix(key, "_")
	return strings.TrimRight(key, " ")
}

type lexer struct {
	data string
	pos  int
}

func isSingleChar(c byte) bool {
	switch c {
	case '{', '}', '(', ')', '\'', ':':
		return true
	}
	return false
}

// next returns the next token. Quoted strings are returned without quotes.
func (l *lexer) next() (string, bool) {
	for {
		for l.pos < len(l.data) && l.data[l.pos] <= ' ' {
			l.pos++
		}
		if l.pos >= len(l.data) {
			return "", false
		}
		rest := l.data[l.pos:]
		switch {
		case strings.HasPrefix(rest, "//"):
			if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
				l.pos += nl + 1
			} else {
				l.pos = len(l.data)
			}
			continue
		case strings.HasPrefix(rest, "/*"):
			if end := strings.Index(rest[2:], "*/"); end >= 0 {
				l.pos += end + 4
			} else {
				l.pos = len(l.data)
			}
			continue
		}
		break
	}

	c := l.data[l.pos]
	if c == '"' {
		l.pos++
		start := l.pos
		for l.pos < len(l.data) && l.data[l.pos] != '"' {
			l.pos++
		}
		tok := l.data[start:l.pos]
		if l.pos < len(l.data) {
			l.pos++
		}
		return tok, true
	}
	if isSingleChar(c) {
		l.pos++
		return string(c), true
	}

	start := l.pos
	for l.pos < len(l.data) && l.data[l.pos] > ' ' && !isSingleChar(l.data[l.pos]) {
		l.pos++
	}
	return l.data[start:l.pos], true
}
