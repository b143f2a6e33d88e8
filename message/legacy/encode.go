// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package legacy

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

type kind uint8

const (
	kindNull kind = iota
	kindBool
	kindNumber
	kindString
	kindArray
	kindObject
)

// node is a decoded JSON value that remembers the order of object keys.
type node struct {
	kind kind
	text string // string contents, number literal or bool

	keys []string
	vals []*node
}

// set mimics property assignment of a javascript object:
// re-assigning a key keeps its first position.
func (n *node) set(key string, v *node) {
	for i, k := range n.keys {
		if k == key {
			n.vals[i] = v
			return
		}
	}
	n.keys = append(n.keys, key)
	n.vals = append(n.vals, v)
}

// order returns the indices of n.keys in javascript property order:
// array index keys ascending, then all other keys in insertion order.
func (n *node) order() []int {
	var idx, rest []int
	for i, k := range n.keys {
		if _, ok := arrayIndex(k); ok {
			idx = append(idx, i)
		} else {
			rest = append(rest, i)
		}
	}
	sort.Slice(idx, func(a, b int) bool {
		va, _ := arrayIndex(n.keys[idx[a]])
		vb, _ := arrayIndex(n.keys[idx[b]])
		return va < vb
	})
	return append(idx, rest...)
}

// arrayIndex reports whether k is the canonical string of an integer in [0, 2^32-2]
func arrayIndex(k string) (uint64, bool) {
	if k == "" || len(k) > 10 {
		return 0, false
	}
	if len(k) > 1 && k[0] == '0' {
		return 0, false
	}
	v, err := strconv.ParseUint(k, 10, 64)
	if err != nil || v >= math.MaxUint32 {
		return 0, false
	}
	return v, true
}

// decoder reads strings from the raw input instead of using the decoded token,
// which would replace lone surrogate escapes.
type decoder struct {
	*json.Decoder
	in []byte
}

func newDecoder(in []byte) *decoder {
	dec := json.NewDecoder(bytes.NewReader(in))
	// keep the literal, numbers are re-formatted from float64 like v8 does
	dec.UseNumber()
	return &decoder{Decoder: dec, in: in}
}

func (d *decoder) token() (json.Token, error) {
	start := d.InputOffset()
	t, err := d.Token()
	if err != nil {
		return nil, err
	}
	if _, ok := t.(string); !ok {
		return t, nil
	}
	raw := d.in[start:d.InputOffset()]
	q := bytes.IndexByte(raw, '"')
	if q < 0 {
		return nil, fmt.Errorf("legacy/decode: string token without quote")
	}
	return unquote(raw[q:])
}

func decodeValue(dec *decoder) (*node, error) {
	t, err := dec.token()
	if err != nil {
		return nil, fmt.Errorf("legacy/decode: unexpected error from Token(): %w", err)
	}

	switch v := t.(type) {
	case json.Delim: // [ ] { }
		switch v {
		case '{':
			return decodeObject(dec)
		case '[':
			return decodeArray(dec)
		default:
			return nil, fmt.Errorf("legacy/decode: unexpected delimiter: %v", v)
		}
	case string:
		return &node{kind: kindString, text: v}, nil
	case json.Number:
		return &node{kind: kindNumber, text: v.String()}, nil
	case bool:
		return &node{kind: kindBool, text: strconv.FormatBool(v)}, nil
	case nil:
		return &node{kind: kindNull}, nil
	default:
		return nil, fmt.Errorf("legacy/decode: unhandled token type %T", t)
	}
}

func decodeObject(dec *decoder) (*node, error) {
	obj := &node{kind: kindObject}
	for dec.More() {
		t, err := dec.token()
		if err != nil {
			return nil, fmt.Errorf("legacy/decode: object key: %w", err)
		}
		key, ok := t.(string)
		if !ok {
			return nil, fmt.Errorf("legacy/decode: object key is %T", t)
		}
		val, err := decodeValue(dec)
		if err != nil {
			return nil, fmt.Errorf("legacy/decode: value of %q: %w", key, err)
		}
		obj.set(key, val)
	}
	// closing }
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("legacy/decode: object end: %w", err)
	}
	return obj, nil
}

func decodeArray(dec *decoder) (*node, error) {
	arr := &node{kind: kindArray}
	for dec.More() {
		val, err := decodeValue(dec)
		if err != nil {
			return nil, fmt.Errorf("legacy/decode: array element %d: %w", len(arr.vals), err)
		}
		arr.vals = append(arr.vals, val)
	}
	// closing ]
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("legacy/decode: array end: %w", err)
	}
	return arr, nil
}

// unquote decodes the JSON string literal lit.
// Invalid UTF-8 becomes U+FFFD. A \u escape of a lone surrogate is kept
// in its 3 byte WTF-8 form so quote can escape it again.
func unquote(lit []byte) (string, error) {
	if len(lit) < 2 || lit[0] != '"' || lit[len(lit)-1] != '"' {
		return "", fmt.Errorf("legacy/decode: malformed string literal")
	}
	lit = lit[1 : len(lit)-1]

	var b strings.Builder
	b.Grow(len(lit))
	for i := 0; i < len(lit); {
		c := lit[i]
		if c != '\\' {
			r, size := utf8.DecodeRune(lit[i:])
			b.WriteRune(r)
			i += size
			continue
		}
		if i+1 >= len(lit) {
			return "", fmt.Errorf("legacy/decode: unterminated escape")
		}
		switch lit[i+1] {
		case '"', '\\', '/':
			b.WriteByte(lit[i+1])
		case 'b':
			b.WriteByte('\b')
		case 'f':
			b.WriteByte('\f')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case 'u':
			r, ok := hex4(lit[i+2:])
			if !ok {
				return "", fmt.Errorf("legacy/decode: invalid unicode escape")
			}
			i += 6
			if !utf16.IsSurrogate(r) {
				b.WriteRune(r)
				continue
			}
			if r < 0xdc00 && i+1 < len(lit) && lit[i] == '\\' && lit[i+1] == 'u' {
				if low, ok := hex4(lit[i+2:]); ok && low >= 0xdc00 && low < 0xe000 {
					b.WriteRune(utf16.DecodeRune(r, low))
					i += 6
					continue
				}
			}
			b.WriteByte(0xe0 | byte(r>>12))
			b.WriteByte(0x80 | byte(r>>6)&0x3f)
			b.WriteByte(0x80 | byte(r)&0x3f)
			continue
		default:
			return "", fmt.Errorf("legacy/decode: invalid escape %q", lit[i+1])
		}
		i += 2
	}
	return b.String(), nil
}

func hex4(b []byte) (rune, bool) {
	if len(b) < 4 {
		return 0, false
	}
	v, err := strconv.ParseUint(string(b[:4]), 16, 16)
	if err != nil {
		return 0, false
	}
	return rune(v), true
}

// surrogateAt returns the surrogate s starts with in WTF-8 form, if any.
func surrogateAt(s string) (rune, bool) {
	if len(s) < 3 || s[0] != 0xed || s[1] < 0xa0 || s[1] > 0xbf || s[2]&0xc0 != 0x80 {
		return 0, false
	}
	return 0xd000 | rune(s[1]&0x3f)<<6 | rune(s[2]&0x3f), true
}

func writeIndent(b *bytes.Buffer, depth int) {
	b.WriteString(strings.Repeat("  ", depth))
}

func (n *node) format(b *bytes.Buffer, depth int) error {
	switch n.kind {
	case kindNull:
		b.WriteString("null")
	case kindBool:
		b.WriteString(n.text)
	case kindString:
		quote(b, n.text)
	case kindNumber:
		f, err := strconv.ParseFloat(n.text, 64)
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return fmt.Errorf("legacy/format: invalid number %q: %w", n.text, err)
		}
		b.WriteString(FormatNumber(f))

	case kindArray:
		if len(n.vals) == 0 {
			b.WriteString("[]")
			return nil
		}
		b.WriteString("[\n")
		for i, v := range n.vals {
			writeIndent(b, depth+1)
			if err := v.format(b, depth+1); err != nil {
				return err
			}
			if i < len(n.vals)-1 {
				b.WriteByte(',')
			}
			b.WriteByte('\n')
		}
		writeIndent(b, depth)
		b.WriteByte(']')

	case kindObject:
		if len(n.keys) == 0 {
			b.WriteString("{}")
			return nil
		}
		b.WriteString("{\n")
		order := n.order()
		for i, idx := range order {
			writeIndent(b, depth+1)
			quote(b, n.keys[idx])
			b.WriteString(": ")
			if err := n.vals[idx].format(b, depth+1); err != nil {
				return err
			}
			if i < len(order)-1 {
				b.WriteByte(',')
			}
			b.WriteByte('\n')
		}
		writeIndent(b, depth)
		b.WriteByte('}')
	}
	return nil
}

const hexDigits = "0123456789abcdef"

// quote escapes s like JSON.stringify.
// Lone surrogates are written as lowercase \u escapes.
func quote(b *bytes.Buffer, s string) {
	b.WriteByte('"')
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			if sr, ok := surrogateAt(s[i:]); ok {
				b.WriteString(`\u`)
				b.WriteByte(hexDigits[sr>>12&0xf])
				b.WriteByte(hexDigits[sr>>8&0xf])
				b.WriteByte(hexDigits[sr>>4&0xf])
				b.WriteByte(hexDigits[sr&0xf])
				i += 3
				continue
			}
		}
		i += size

		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 {
				b.WriteString(`\u00`)
				b.WriteByte(hexDigits[r>>4])
				b.WriteByte(hexDigits[r&0xf])
				continue
			}
			var enc [utf8.UTFMax]byte
			n := utf8.EncodeRune(enc[:], r)
			b.Write(enc[:n])
		}
	}
	b.WriteByte('"')
}

// FormatNumber renders f the way javascript's Number.prototype.toString does.
// Non-finite values become null, as in JSON.stringify.
func FormatNumber(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "null"
	}
	if f == 0 {
		return "0" // includes -0
	}

	var sign string
	if f < 0 {
		sign = "-"
		f = -f
	}

	// shortest round-tripping digits
	sci := strconv.FormatFloat(f, 'e', -1, 64)
	mant, exp, _ := strings.Cut(sci, "e")
	digits := strings.Replace(mant, ".", "", 1)
	e, _ := strconv.Atoi(exp)

	k := len(digits)
	n := e + 1

	switch {
	case k <= n && n <= 21:
		return sign + digits + strings.Repeat("0", n-k)
	case 0 < n && n <= 21:
		return sign + digits[:n] + "." + digits[n:]
	case -6 < n && n <= 0:
		return sign + "0." + strings.Repeat("0", -n) + digits
	}

	expSign := "+"
	if n-1 < 0 {
		expSign = "-"
	}
	expAbs := n - 1
	if expAbs < 0 {
		expAbs = -expAbs
	}

	if k == 1 {
		return sign + digits + "e" + expSign + strconv.Itoa(expAbs)
	}
	return sign + digits[:1] + "." + digits[1:] + "e" + expSign + strconv.Itoa(expAbs)
}

// PrettyPrint decodes the JSON text in and renders it like JSON.stringify(value, null, 2)
// in a javascript engine would after JSON.parse, i.e.:
//
//	{
//	  "field": "val",
//	  "arr": [
//	    "foo",
//	    "bar"
//	  ],
//	  "obj": {}
//	}
//
// Object keys keep the order in which they appear, except for integer-like keys
// which javascript always enumerates first.
func PrettyPrint(in []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := PrettyPrintWithBuffer(in, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// PrettyPrintWithBuffer is PrettyPrint with a caller supplied buffer.
func PrettyPrintWithBuffer(in []byte, buf *bytes.Buffer) error {
	dec := newDecoder(in)
	root, err := decodeValue(dec)
	if err != nil {
		return err
	}

	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("legacy/decode: trailing data after value")
	}

	return root.format(buf, 0)
}
