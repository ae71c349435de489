package source

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
)

// DefaultEncoding is the fallback encoding for lines that are not valid UTF-8.
const DefaultEncoding = "windows-1252"

// Decoder turns raw lines into UTF-8 text on a best-effort basis.
// Valid UTF-8 passes through untouched; anything else is decoded from the
// fallback encoding, and kept raw if that fails too.
type Decoder struct {
	name string
	enc  encoding.Encoding
}

// NewDecoder creates a decoder with the named IANA fallback encoding.
// An empty name or "utf-8" disables the fallback.
func NewDecoder(name string) (*Decoder, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, "utf-8") || strings.EqualFold(name, "utf8") {
		return &Decoder{name: "utf-8"}, nil
	}

	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q: %w", name, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("encoding %q is not supported", name)
	}
	return &Decoder{name: name, enc: enc}, nil
}

// Name returns the fallback encoding name.
func (d *Decoder) Name() string {
	if d == nil {
		return "utf-8"
	}
	return d.name
}

// Decode returns s as UTF-8 text.
func (d *Decoder) Decode(s string) string {
	if utf8.ValidString(s) || d == nil || d.enc == nil {
		return s
	}
	out, err := d.enc.NewDecoder().String(s)
	if err != nil {
		return s
	}
	return out
}
