package toolcall

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
)

// The invocation token format the composer, extractor and injector agree
// on. One bracketed tag carrying the tool name and a JSON argument
// object, identical across all prompt dialects.
const (
	TokenPrefix = "[TOOL_CALL:"
	TokenSuffix = "]"
)

// Extractor scans generated text for an embedded invocation token. It
// runs incrementally as deltas arrive and once more on the final text.
// Only the first syntactically valid invocation whose tool name exists
// in the catalog is honored; everything after it is ignored.
type Extractor struct {
	catalog *Catalog
	buf     strings.Builder
	pos     int
	found   *Invocation
}

func NewExtractor(catalog *Catalog) *Extractor {
	return &Extractor{catalog: catalog}
}

// Feed appends a generation delta and returns the invocation the first
// time a complete valid token is seen, nil otherwise. Once an invocation
// has been found, further deltas are accumulated but not scanned.
func (e *Extractor) Feed(delta string) *Invocation {
	e.buf.WriteString(delta)
	if e.found != nil {
		return nil
	}
	return e.scan(false)
}

// Finish performs the final pass. Tokens still incomplete at end of text
// are treated as malformed and skipped, and all remaining text becomes
// visible.
func (e *Extractor) Finish() *Invocation {
	if e.found == nil {
		e.scan(true)
	}
	return e.found
}

// Found returns the extracted invocation, if any.
func (e *Extractor) Found() *Invocation {
	return e.found
}

// Text returns the full accumulated text.
func (e *Extractor) Text() string {
	return e.buf.String()
}

// Visible returns the accumulated text that is safe to surface to the
// caller: the honored token is removed, and a trailing region that may
// still turn into a token is held back until resolved. The returned
// string only ever grows between calls, so callers can stream the
// difference as deltas.
func (e *Extractor) Visible() string {
	text := e.buf.String()
	if e.found != nil {
		return stripTokenRaw(text)
	}
	if e.pos <= 0 {
		return ""
	}
	if e.pos >= len(text) {
		return text
	}
	return text[:e.pos]
}

type tokenState int

const (
	tokenValid tokenState = iota
	tokenIncomplete
	tokenMalformed
	tokenUnknownTool
)

func (e *Extractor) scan(final bool) *Invocation {
	text := e.buf.String()

	for {
		idx := strings.Index(text[e.pos:], TokenPrefix)
		if idx < 0 {
			if final {
				e.pos = len(text)
				return nil
			}
			// Keep enough tail so a prefix split across deltas is still found.
			if tail := len(text) - len(TokenPrefix) + 1; tail > e.pos {
				e.pos = tail
			}
			return nil
		}
		start := e.pos + idx

		inv, end, state := e.parseToken(text[start:])
		switch state {
		case tokenValid:
			e.found = inv
			return inv
		case tokenIncomplete:
			if !final {
				e.pos = start
				return nil
			}
			// Truncated token at end of text: treat as prose.
			e.pos = start + len(TokenPrefix)
		case tokenMalformed:
			e.pos = start + len(TokenPrefix)
		case tokenUnknownTool:
			// Skip the whole token so its JSON body is not rescanned.
			e.pos = start + end
		}
	}
}

// parseToken parses one token starting at s[0] == '['. Returns the
// invocation, the token length, and the parse state.
func (e *Extractor) parseToken(s string) (*Invocation, int, tokenState) {
	rest := s[len(TokenPrefix):]

	colon := strings.IndexByte(rest, ':')
	if colon < 0 {
		if !validToolNamePrefix(rest) {
			return nil, 0, tokenMalformed
		}
		return nil, 0, tokenIncomplete
	}

	name := rest[:colon]
	if !validToolName(name) {
		return nil, 0, tokenMalformed
	}

	body := rest[colon+1:]
	if body == "" {
		return nil, 0, tokenIncomplete
	}
	if body[0] != '{' {
		return nil, 0, tokenMalformed
	}

	var args map[string]any
	dec := json.NewDecoder(strings.NewReader(body))
	if err := dec.Decode(&args); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, 0, tokenIncomplete
		}
		return nil, 0, tokenMalformed
	}

	after := body[dec.InputOffset():]
	if after == "" {
		return nil, 0, tokenIncomplete
	}
	if !strings.HasPrefix(after, TokenSuffix) {
		return nil, 0, tokenMalformed
	}

	end := len(TokenPrefix) + colon + 1 + int(dec.InputOffset()) + len(TokenSuffix)

	if _, ok := e.catalog.Lookup(name); !ok {
		return nil, end, tokenUnknownTool
	}

	return NewInvocation(name, args, SourceModel), end, tokenValid
}

// Extract runs a one-shot extraction over complete text.
func Extract(text string, catalog *Catalog) *Invocation {
	e := NewExtractor(catalog)
	e.Feed(text)
	return e.Finish()
}

func validToolName(name string) bool {
	if name == "" {
		return false
	}
	return validToolNamePrefix(name)
}

func validToolNamePrefix(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '_' {
			return false
		}
	}
	return true
}

// StripToken removes the first invocation token from text, leaving the
// surrounding prose for the user-facing reply.
func StripToken(text string) string {
	return strings.TrimSpace(stripTokenRaw(text))
}

func stripTokenRaw(text string) string {
	start := strings.Index(text, TokenPrefix)
	if start < 0 {
		return text
	}
	rest := text[start:]
	colon := strings.IndexByte(rest[len(TokenPrefix):], ':')
	if colon < 0 {
		return text
	}
	body := rest[len(TokenPrefix)+colon+1:]
	if body == "" || body[0] != '{' {
		return text
	}
	var args map[string]any
	dec := json.NewDecoder(strings.NewReader(body))
	if err := dec.Decode(&args); err != nil {
		return text
	}
	after := body[dec.InputOffset():]
	if !strings.HasPrefix(after, TokenSuffix) {
		return text
	}
	end := start + len(TokenPrefix) + colon + 1 + int(dec.InputOffset()) + len(TokenSuffix)
	return text[:start] + text[end:]
}
