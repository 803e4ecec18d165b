// Package extract recovers labeled values from the pool dashboard markup.
//
// The dashboard renders each stat as a container div carrying a
// "dashboard-container" class, with a label div and a value span nested one
// level inside it. Extract walks the token stream once, left to right, and
// never materializes a document tree; it only tracks open-tag nesting and a
// single active container at a time.
package extract

import (
	"strings"

	"golang.org/x/net/html"
)

const (
	containerTag   = "div"
	containerClass = "dashboard-container"
	labelTag       = "div"
	labelClass     = "label"
	valueTag       = "span"
)

// textScope captures text runs appearing directly inside a label or value
// element. depth is the nesting level the element was opened at; text runs
// are accepted only one level below it. The last non-blank run wins.
type textScope struct {
	active bool
	depth  int
	text   string
}

// containerScope is the state held while one stat container is open. Only
// one container is tracked at a time; the dashboard does not nest them, and
// if the page ever does, only the outermost occurrence is tracked.
type containerScope struct {
	depth int
	label textScope
	value textScope
}

// scanState is the full extractor state, threaded explicitly through each
// token event so Extract is reusable and safe across concurrent documents.
type scanState struct {
	stack     []string
	depth     int
	container *containerScope
	values    map[string]string
}

// Extract scans markup and returns a map from each closed container's label
// text to the last non-blank value text seen inside it. Malformed or
// truncated markup degrades gracefully: mismatched closes are recovered
// best-effort and a container that never closes contributes nothing.
// Empty input yields an empty map.
func Extract(markup string) map[string]string {
	st := &scanState{values: make(map[string]string)}

	tz := html.NewTokenizer(strings.NewReader(markup))
	for {
		switch tz.Next() {
		case html.ErrorToken:
			// EOF or an unrecoverable tokenizer error; either way the
			// committed entries stand.
			return st.values
		case html.StartTagToken:
			tok := tz.Token()
			st.openTag(tok.Data, classAttr(tok.Attr))
		case html.EndTagToken:
			tok := tz.Token()
			st.closeTag(tok.Data)
		case html.SelfClosingTagToken:
			tok := tz.Token()
			st.openTag(tok.Data, classAttr(tok.Attr))
			st.closeTag(tok.Data)
		case html.TextToken:
			st.text(tz.Token().Data)
		}
	}
}

func classAttr(attrs []html.Attribute) string {
	for _, attr := range attrs {
		if attr.Key == "class" {
			return attr.Val
		}
	}
	return ""
}

// openTag processes a start marker at the current depth, then descends.
func (st *scanState) openTag(name, class string) {
	if name == containerTag {
		switch {
		case st.container == nil && strings.Contains(class, containerClass):
			st.container = &containerScope{depth: st.depth}
		case st.container != nil && st.depth == st.container.depth+1 &&
			name == labelTag && strings.Contains(class, labelClass):
			st.container.label = textScope{active: true, depth: st.depth}
		}
	}
	if name == valueTag && st.container != nil && st.depth == st.container.depth+1 {
		st.container.value = textScope{active: true, depth: st.depth}
	}

	st.stack = append(st.stack, name)
	st.depth++
}

// closeTag processes an end marker. If the marker does not match the top of
// the open stack but a matching open exists lower down, closes are
// synthesized for everything above it before the real close is processed.
// A close with no matching open anywhere is dropped. This recovery is
// best-effort; deeply malformed input is tolerated, not repaired.
func (st *scanState) closeTag(name string) {
	at := -1
	for i := len(st.stack) - 1; i >= 0; i-- {
		if st.stack[i] == name {
			at = i
			break
		}
	}
	if at < 0 {
		return
	}

	for len(st.stack) > at {
		st.popAndCommit()
	}
}

// popAndCommit closes the innermost open marker and fires any scope
// transitions recorded at its depth.
func (st *scanState) popAndCommit() {
	name := st.stack[len(st.stack)-1]
	st.stack = st.stack[:len(st.stack)-1]
	st.depth--
	if st.depth < 0 {
		st.depth = 0
	}

	if name == containerTag && st.container != nil {
		switch {
		case st.depth == st.container.depth:
			st.values[st.container.label.text] = st.container.value.text
			st.container = nil
			return
		case st.container.label.active && st.depth == st.container.label.depth:
			st.container.label.active = false
		}
	}
	if name == valueTag && st.container != nil &&
		st.container.value.active && st.depth == st.container.value.depth {
		st.container.value.active = false
	}
}

// text records a non-blank run appearing directly inside an active label or
// value element. Later runs overwrite earlier ones.
func (st *scanState) text(data string) {
	trimmed := strings.TrimSpace(data)
	if trimmed == "" || st.container == nil {
		return
	}

	if st.container.label.active && st.depth == st.container.label.depth+1 {
		st.container.label.text = trimmed
	}
	if st.container.value.active && st.depth == st.container.value.depth+1 {
		st.container.value.text = trimmed
	}
}
