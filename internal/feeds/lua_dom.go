package feeds

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	lua "github.com/yuin/gopher-lua"
	"golang.org/x/net/html"
)

// goqueryNode aliases the underlying HTML parse-tree node type shared by
// goquery and golang.org/x/net/html, so the DOM wrapper code below can name
// it without importing html under two names.
type goqueryNode = html.Node

const (
	htmlElementNode  = html.ElementNode
	htmlTextNode     = html.TextNode
	htmlCommentNode  = html.CommentNode
	htmlDoctypeNode  = html.DoctypeNode
	htmlDocumentNode = html.DocumentNode
)

// bufferUserData is the userdata payload behind the Buffer type: an
// immutable byte-string handed to parseHtml and to a script's extract(buf)
// entry point in place of a fetched body.
type bufferUserData struct {
	data string
}

// selectorUserData is the userdata payload behind the Selector type: an
// immutable, already-compiled CSS selector plus its canonical source text.
type selectorUserData struct {
	sel  cascadia.Selector
	text string
}

// htmlUserData is the userdata payload behind the Html type: a parsed
// document. Go's garbage collector keeps the *goquery.Document (and the
// underlying *html.Node arena) alive for as long as any Element/Html handle
// derived from it is reachable, which is what the "shared ownership of the
// parsed document" design note calls for; there is no separate reference
// count or arena-index side table to maintain, unlike a non-GC host
// language.
type htmlUserData struct {
	doc *goquery.Document
}

// elementUserData is the userdata payload behind the Element type: a
// single-node goquery selection rooted in its owning document.
type elementUserData struct {
	sel *goquery.Selection
}

// nodeUserData is the userdata payload behind the base Node type: a handle
// returned by base-node traversal (parent/sibling/child) when the node
// landed on is not one of the more specific wrapper kinds below, i.e. the
// document root itself.
type nodeUserData struct {
	node *goqueryNode
}

// doctypeUserData, commentUserData, textUserData, and piUserData back the
// Doctype/Comment/Text/ProcessingInstruction types: leaf wrappers around a
// single raw parse-tree node, distinguished only by which methods their
// metatable exposes.
type doctypeUserData struct{ node *goqueryNode }
type commentUserData struct{ node *goqueryNode }
type textUserData struct{ node *goqueryNode }
type piUserData struct{ node *goqueryNode }

const (
	bufferTypeName   = "feedgen.Buffer"
	selectorTypeName = "feedgen.Selector"
	htmlTypeName     = "feedgen.Html"
	elementTypeName  = "feedgen.Element"
	nodeTypeName     = "feedgen.Node"
	doctypeTypeName  = "feedgen.Doctype"
	commentTypeName  = "feedgen.Comment"
	textTypeName     = "feedgen.Text"
	piTypeName       = "feedgen.ProcessingInstruction"
)

func registerDOMTypes(L *lua.LState) {
	registerBufferType(L)
	registerSelectorType(L)
	registerHTMLType(L)
	registerNodeType(L)
	registerDoctypeType(L)
	registerCommentType(L)
	registerTextType(L)
	registerPIType(L)
	registerElementType(L)
}

// --- Buffer ---

func registerBufferType(L *lua.LState) {
	mt := L.NewTypeMetatable(bufferTypeName)
	L.SetField(mt, "__tostring", L.NewFunction(func(L *lua.LState) int {
		b := checkBuffer(L, 1)
		L.Push(lua.LString(b.data))
		return 1
	}))
	L.SetField(mt, "__len", L.NewFunction(func(L *lua.LState) int {
		b := checkBuffer(L, 1)
		L.Push(lua.LNumber(len(b.data)))
		return 1
	}))
}

func checkBuffer(L *lua.LState, n int) *bufferUserData {
	ud, ok := L.CheckUserData(n).Value.(*bufferUserData)
	if !ok {
		L.ArgError(n, "Buffer expected")
	}
	return ud
}

func newBufferValue(L *lua.LState, data string) lua.LValue {
	ud := L.NewUserData()
	ud.Value = &bufferUserData{data: data}
	ud.Metatable = L.GetTypeMetatable(bufferTypeName)
	return ud
}

// toBufferString coerces a Lua value that is either a string or a Buffer
// userdata into a Go string, per parseHtml's "string | Buffer" parameter
// contract. (parseSelector takes "string | Selector"; see toSelector.)
func toBufferString(L *lua.LState, v lua.LValue) (string, error) {
	switch val := v.(type) {
	case lua.LString:
		return string(val), nil
	case *lua.LUserData:
		if b, ok := val.Value.(*bufferUserData); ok {
			return b.data, nil
		}
	}
	return "", fmt.Errorf("expected a string or Buffer value, got %s", v.Type().String())
}

// --- Selector ---

func registerSelectorType(L *lua.LState) {
	mt := L.NewTypeMetatable(selectorTypeName)
	L.SetField(mt, "__index", L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{}))
	L.SetField(mt, "__tostring", L.NewFunction(func(L *lua.LState) int {
		ud := checkSelector(L, 1)
		L.Push(lua.LString(ud.text))
		return 1
	}))
}

func checkSelector(L *lua.LState, n int) *selectorUserData {
	ud, ok := L.CheckUserData(n).Value.(*selectorUserData)
	if !ok {
		L.ArgError(n, "Selector expected")
	}
	return ud
}

func newSelectorValue(L *lua.LState, text string) (lua.LValue, error) {
	sel, err := cascadia.Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parsing selector %q: %w", text, err)
	}
	ud := L.NewUserData()
	ud.Value = &selectorUserData{sel: sel, text: text}
	ud.Metatable = L.GetTypeMetatable(selectorTypeName)
	return ud, nil
}

// toSelector coerces a Lua value that is either a string or an existing
// Selector userdata into a compiled cascadia.Selector, per parseSelector's
// "string | Selector" parameter contract.
func toSelector(L *lua.LState, v lua.LValue) (*selectorUserData, error) {
	switch val := v.(type) {
	case lua.LString:
		sel, err := cascadia.Parse(string(val))
		if err != nil {
			return nil, fmt.Errorf("parsing selector %q: %w", string(val), err)
		}
		return &selectorUserData{sel: sel, text: string(val)}, nil
	case *lua.LUserData:
		if ud, ok := val.Value.(*selectorUserData); ok {
			return ud, nil
		}
	}
	return nil, fmt.Errorf("expected a selector string or Selector value, got %s", v.Type().String())
}

// --- Html ---

func registerHTMLType(L *lua.LState) {
	mt := L.NewTypeMetatable(htmlTypeName)
	index := L.NewTable()
	L.SetFuncs(index, map[string]lua.LGFunction{
		"select": htmlSelect,
		"root":   htmlRoot,
	})
	L.SetField(mt, "__index", index)
}

func checkHTML(L *lua.LState, n int) *htmlUserData {
	ud, ok := L.CheckUserData(n).Value.(*htmlUserData)
	if !ok {
		L.ArgError(n, "Html expected")
	}
	return ud
}

func newHTMLValue(L *lua.LState, text string) lua.LValue {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		// goquery.NewDocumentFromReader wraps a tolerant HTML5 parser and
		// does not fail on malformed markup; an error here means the
		// reader itself misbehaved.
		L.RaiseError("parsing html: %s", err)
		return lua.LNil
	}
	ud := L.NewUserData()
	ud.Value = &htmlUserData{doc: doc}
	ud.Metatable = L.GetTypeMetatable(htmlTypeName)
	return ud
}

func htmlSelect(L *lua.LState) int {
	h := checkHTML(L, 1)
	sel, err := toSelector(L, L.CheckAny(2))
	if err != nil {
		L.RaiseError("%s", err)
		return 0
	}

	matches := sel.sel.MatchAll(h.doc.Get(0))
	L.Push(newElementIterator(L, matches))
	return 1
}

// htmlRoot returns the document's root *element* (<html>), not the
// surrounding document node goquery itself roots a Document's Selection at
// -- root() -> Element per the host API contract. html5 tree construction
// always synthesizes an <html> element, so the fallback below is never
// exercised in practice.
func htmlRoot(L *lua.LState) int {
	h := checkHTML(L, 1)
	docNode := h.doc.Get(0)
	for c := docNode.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == htmlElementNode {
			L.Push(newElementValue(L, goquery.NewDocumentFromNode(c).Selection))
			return 1
		}
	}
	L.Push(newElementValue(L, h.doc.Selection))
	return 1
}

// --- shared base Node methods ---
//
// Every tree handle (Node, Doctype, Comment, Text, ProcessingInstruction,
// Element) exposes the same traversal surface over the raw parse tree:
// type/parent/prevSibling/nextSibling/firstChildNode/lastChildNode plus the
// childNodes/descendantNodes iterators, which (unlike Element's
// childElements/descendantElements) yield every node kind, not just
// elements. wrapNode dispatches a raw *html.Node to the right userdata kind
// so traversal never downgrades a Doctype/Comment/Text hit to a generic
// Node.

// wrapNode builds the Lua value for n's concrete node kind. Used by every
// base-Node traversal method so that, e.g., a comment's nextSibling still
// comes back as a Comment rather than a generic Node.
func wrapNode(L *lua.LState, n *goqueryNode) lua.LValue {
	if n == nil {
		return lua.LNil
	}
	switch n.Type {
	case htmlElementNode:
		return newElementValue(L, goquery.NewDocumentFromNode(n).Selection)
	case htmlTextNode:
		return newTextValue(L, n)
	case htmlCommentNode:
		return newCommentValue(L, n)
	case htmlDoctypeNode:
		return newDoctypeValue(L, n)
	default:
		// The document root, and (unreachably under golang.org/x/net/html's
		// HTML5 parser, which has no processing-instruction node kind —
		// "<?...?>" becomes a bogus comment per the HTML parsing spec) any
		// other node kind.
		return newNodeValue(L, n)
	}
}

// baseNodeMethods builds the shared Node method table for a wrapper type,
// given how to recover the raw node from its userdata argument.
func baseNodeMethods(nodeOf func(L *lua.LState) *goqueryNode) map[string]lua.LGFunction {
	return map[string]lua.LGFunction{
		"type": func(L *lua.LState) int {
			L.Push(lua.LString(htmlNodeTypeName(nodeOf(L))))
			return 1
		},
		"parent": func(L *lua.LState) int {
			L.Push(wrapNode(L, nodeOf(L).Parent))
			return 1
		},
		"prevSibling": func(L *lua.LState) int {
			L.Push(wrapNode(L, nodeOf(L).PrevSibling))
			return 1
		},
		"nextSibling": func(L *lua.LState) int {
			L.Push(wrapNode(L, nodeOf(L).NextSibling))
			return 1
		},
		"firstChildNode": func(L *lua.LState) int {
			L.Push(wrapNode(L, nodeOf(L).FirstChild))
			return 1
		},
		"lastChildNode": func(L *lua.LState) int {
			L.Push(wrapNode(L, nodeOf(L).LastChild))
			return 1
		},
		"childNodes": func(L *lua.LState) int {
			return pushNodeIterator(L, childNodeList(nodeOf(L)))
		},
		"descendantNodes": func(L *lua.LState) int {
			return pushNodeIterator(L, descendantNodeList(nodeOf(L)))
		},
	}
}

func childNodeList(n *goqueryNode) []*goqueryNode {
	if n == nil {
		return nil
	}
	var out []*goqueryNode
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, c)
	}
	return out
}

func descendantNodeList(n *goqueryNode) []*goqueryNode {
	if n == nil {
		return nil
	}
	var out []*goqueryNode
	var walk func(*goqueryNode)
	walk = func(x *goqueryNode) {
		for c := x.FirstChild; c != nil; c = c.NextSibling {
			out = append(out, c)
			walk(c)
		}
	}
	walk(n)
	return out
}

// pushNodeIterator pushes a generic-for iterator function yielding one
// wrapped node per call, in the given order.
func pushNodeIterator(L *lua.LState, nodes []*goqueryNode) int {
	i := 0
	L.Push(L.NewFunction(func(L *lua.LState) int {
		if i >= len(nodes) {
			return 0
		}
		node := nodes[i]
		i++
		L.Push(wrapNode(L, node))
		return 1
	}))
	return 1
}

// --- Node (generic base handle) ---

func registerNodeType(L *lua.LState) {
	mt := L.NewTypeMetatable(nodeTypeName)
	index := L.NewTable()
	L.SetFuncs(index, baseNodeMethods(func(L *lua.LState) *goqueryNode { return checkNode(L, 1).node }))
	L.SetField(mt, "__index", index)
}

func checkNode(L *lua.LState, n int) *nodeUserData {
	ud, ok := L.CheckUserData(n).Value.(*nodeUserData)
	if !ok {
		L.ArgError(n, "Node expected")
	}
	return ud
}

func newNodeValue(L *lua.LState, n *goqueryNode) lua.LValue {
	ud := L.NewUserData()
	ud.Value = &nodeUserData{node: n}
	ud.Metatable = L.GetTypeMetatable(nodeTypeName)
	return ud
}

// --- Doctype ---

func registerDoctypeType(L *lua.LState) {
	mt := L.NewTypeMetatable(doctypeTypeName)
	index := L.NewTable()
	L.SetFuncs(index, baseNodeMethods(func(L *lua.LState) *goqueryNode { return checkDoctype(L, 1).node }))
	L.SetFuncs(index, map[string]lua.LGFunction{
		"name":     doctypeName,
		"publicId": doctypePublicID,
		"systemId": doctypeSystemID,
	})
	L.SetField(mt, "__index", index)
}

func checkDoctype(L *lua.LState, n int) *doctypeUserData {
	ud, ok := L.CheckUserData(n).Value.(*doctypeUserData)
	if !ok {
		L.ArgError(n, "Doctype expected")
	}
	return ud
}

func newDoctypeValue(L *lua.LState, n *goqueryNode) lua.LValue {
	ud := L.NewUserData()
	ud.Value = &doctypeUserData{node: n}
	ud.Metatable = L.GetTypeMetatable(doctypeTypeName)
	return ud
}

func doctypeName(L *lua.LState) int {
	d := checkDoctype(L, 1)
	L.Push(lua.LString(d.node.Data))
	return 1
}

func doctypePublicID(L *lua.LState) int {
	d := checkDoctype(L, 1)
	L.Push(lua.LString(nodeAttr(d.node, "public")))
	return 1
}

func doctypeSystemID(L *lua.LState) int {
	d := checkDoctype(L, 1)
	L.Push(lua.LString(nodeAttr(d.node, "system")))
	return 1
}

// nodeAttr reads the public/system identifier golang.org/x/net/html
// attaches to a DoctypeNode as a regular attribute keyed "public"/"system".
func nodeAttr(n *goqueryNode, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// --- Comment ---

func registerCommentType(L *lua.LState) {
	mt := L.NewTypeMetatable(commentTypeName)
	index := L.NewTable()
	L.SetFuncs(index, baseNodeMethods(func(L *lua.LState) *goqueryNode { return checkComment(L, 1).node }))
	L.SetField(mt, "__index", index)
	L.SetField(mt, "__tostring", L.NewFunction(func(L *lua.LState) int {
		c := checkComment(L, 1)
		L.Push(lua.LString(c.node.Data))
		return 1
	}))
	L.SetField(mt, "__len", L.NewFunction(func(L *lua.LState) int {
		c := checkComment(L, 1)
		L.Push(lua.LNumber(len(c.node.Data)))
		return 1
	}))
}

func checkComment(L *lua.LState, n int) *commentUserData {
	ud, ok := L.CheckUserData(n).Value.(*commentUserData)
	if !ok {
		L.ArgError(n, "Comment expected")
	}
	return ud
}

func newCommentValue(L *lua.LState, n *goqueryNode) lua.LValue {
	ud := L.NewUserData()
	ud.Value = &commentUserData{node: n}
	ud.Metatable = L.GetTypeMetatable(commentTypeName)
	return ud
}

// --- Text ---

func registerTextType(L *lua.LState) {
	mt := L.NewTypeMetatable(textTypeName)
	index := L.NewTable()
	L.SetFuncs(index, baseNodeMethods(func(L *lua.LState) *goqueryNode { return checkText(L, 1).node }))
	L.SetField(mt, "__index", index)
	L.SetField(mt, "__tostring", L.NewFunction(func(L *lua.LState) int {
		t := checkText(L, 1)
		L.Push(lua.LString(t.node.Data))
		return 1
	}))
	L.SetField(mt, "__len", L.NewFunction(func(L *lua.LState) int {
		t := checkText(L, 1)
		L.Push(lua.LNumber(len(t.node.Data)))
		return 1
	}))
}

func checkText(L *lua.LState, n int) *textUserData {
	ud, ok := L.CheckUserData(n).Value.(*textUserData)
	if !ok {
		L.ArgError(n, "Text expected")
	}
	return ud
}

func newTextValue(L *lua.LState, n *goqueryNode) lua.LValue {
	ud := L.NewUserData()
	ud.Value = &textUserData{node: n}
	ud.Metatable = L.GetTypeMetatable(textTypeName)
	return ud
}

// --- ProcessingInstruction ---
//
// golang.org/x/net/html's HTML5 parser never produces a node of this kind
// (processing instructions are not part of the HTML5 tree-construction
// algorithm; "<?...?>" is tokenized as a bogus comment), so wrapNode never
// constructs one. The type is registered anyway for host-API completeness,
// matching the original implementation's XML-tree-derived surface.

func registerPIType(L *lua.LState) {
	mt := L.NewTypeMetatable(piTypeName)
	index := L.NewTable()
	L.SetFuncs(index, baseNodeMethods(func(L *lua.LState) *goqueryNode { return checkPI(L, 1).node }))
	L.SetFuncs(index, map[string]lua.LGFunction{
		"target": piTarget,
	})
	L.SetField(mt, "__index", index)
	L.SetField(mt, "__tostring", L.NewFunction(func(L *lua.LState) int {
		p := checkPI(L, 1)
		L.Push(lua.LString(p.node.Data))
		return 1
	}))
	L.SetField(mt, "__len", L.NewFunction(func(L *lua.LState) int {
		p := checkPI(L, 1)
		L.Push(lua.LNumber(len(p.node.Data)))
		return 1
	}))
}

func checkPI(L *lua.LState, n int) *piUserData {
	ud, ok := L.CheckUserData(n).Value.(*piUserData)
	if !ok {
		L.ArgError(n, "ProcessingInstruction expected")
	}
	return ud
}

func piTarget(L *lua.LState) int {
	p := checkPI(L, 1)
	L.Push(lua.LString(nodeAttr(p.node, "target")))
	return 1
}

// --- Element ---

func registerElementType(L *lua.LState) {
	mt := L.NewTypeMetatable(elementTypeName)
	index := L.NewTable()
	nodeOf := func(L *lua.LState) *goqueryNode { return checkElement(L, 1).sel.Get(0) }
	L.SetFuncs(index, baseNodeMethods(nodeOf))
	L.SetFuncs(index, map[string]lua.LGFunction{
		"name":               elementName,
		"html":               elementHTML,
		"innerHtml":          elementInnerHTML,
		"attr":               elementAttr,
		"attrs":              elementAttrs,
		"hasClass":           elementHasClass,
		"classes":            elementClasses,
		"text":               elementText,
		"childElements":      elementChildElements,
		"descendantElements": elementDescendantElements,
		"select":             elementSelect,
	})
	L.SetField(mt, "__index", index)
	L.SetField(mt, "__tostring", L.NewFunction(func(L *lua.LState) int {
		e := checkElement(L, 1)
		L.Push(lua.LString(e.sel.Text()))
		return 1
	}))
}

func checkElement(L *lua.LState, n int) *elementUserData {
	ud, ok := L.CheckUserData(n).Value.(*elementUserData)
	if !ok {
		L.ArgError(n, "Element expected")
	}
	return ud
}

func newElementValue(L *lua.LState, sel *goquery.Selection) lua.LValue {
	ud := L.NewUserData()
	ud.Value = &elementUserData{sel: sel}
	ud.Metatable = L.GetTypeMetatable(elementTypeName)
	return ud
}

// newElementIterator wraps a slice of matched nodes in a Lua closure
// suitable for use as a generic-for iterator function: each call returns
// the next Element, or nil once exhausted.
func newElementIterator(L *lua.LState, nodes []*goqueryNode) lua.LValue {
	i := 0
	return L.NewFunction(func(L *lua.LState) int {
		if i >= len(nodes) {
			return 0
		}
		sel := goquery.NewDocumentFromNode(nodes[i]).Selection
		i++
		L.Push(newElementValue(L, sel))
		return 1
	})
}

func elementName(L *lua.LState) int {
	e := checkElement(L, 1)
	node := e.sel.Get(0)
	if node == nil {
		L.Push(lua.LString(""))
		return 1
	}
	L.Push(lua.LString(node.Data))
	return 1
}

func elementHTML(L *lua.LState) int {
	e := checkElement(L, 1)
	out, err := goquery.OuterHtml(e.sel)
	if err != nil {
		L.RaiseError("rendering html: %s", err)
		return 0
	}
	L.Push(lua.LString(out))
	return 1
}

func elementInnerHTML(L *lua.LState) int {
	e := checkElement(L, 1)
	out, err := e.sel.Html()
	if err != nil {
		L.RaiseError("rendering inner html: %s", err)
		return 0
	}
	L.Push(lua.LString(out))
	return 1
}

func elementAttr(L *lua.LState) int {
	e := checkElement(L, 1)
	name := L.CheckString(2)
	v, ok := e.sel.Attr(name)
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(lua.LString(v))
	return 1
}

func elementAttrs(L *lua.LState) int {
	e := checkElement(L, 1)
	node := e.sel.Get(0)
	var attrs [][2]string
	if node != nil {
		for _, a := range node.Attr {
			attrs = append(attrs, [2]string{a.Key, a.Val})
		}
	}
	i := 0
	L.Push(L.NewFunction(func(L *lua.LState) int {
		if i >= len(attrs) {
			return 0
		}
		L.Push(lua.LString(attrs[i][0]))
		L.Push(lua.LString(attrs[i][1]))
		i++
		return 2
	}))
	return 1
}

func elementHasClass(L *lua.LState) int {
	e := checkElement(L, 1)
	name := L.CheckString(2)
	caseSensitive := L.OptBool(3, true)

	if caseSensitive {
		L.Push(lua.LBool(e.sel.HasClass(name)))
		return 1
	}

	lowered := strings.ToLower(name)
	class, _ := e.sel.Attr("class")
	for _, c := range strings.Fields(class) {
		if strings.ToLower(c) == lowered {
			L.Push(lua.LBool(true))
			return 1
		}
	}
	L.Push(lua.LBool(false))
	return 1
}

func elementClasses(L *lua.LState) int {
	e := checkElement(L, 1)
	class, _ := e.sel.Attr("class")
	names := strings.Fields(class)
	i := 0
	L.Push(L.NewFunction(func(L *lua.LState) int {
		if i >= len(names) {
			return 0
		}
		L.Push(lua.LString(names[i]))
		i++
		return 1
	}))
	return 1
}

func elementText(L *lua.LState) int {
	e := checkElement(L, 1)
	var fragments []string
	var walk func(n *goqueryNode)
	walk = func(n *goqueryNode) {
		if n.Type == htmlTextNode {
			if strings.TrimSpace(n.Data) != "" {
				fragments = append(fragments, n.Data)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range e.sel.Nodes {
		walk(n)
	}

	i := 0
	L.Push(L.NewFunction(func(L *lua.LState) int {
		if i >= len(fragments) {
			return 0
		}
		L.Push(lua.LString(fragments[i]))
		i++
		return 1
	}))
	return 1
}

func elementChildElements(L *lua.LState) int {
	e := checkElement(L, 1)
	children := e.sel.Children()
	return pushElementIterator(L, children)
}

func elementDescendantElements(L *lua.LState) int {
	e := checkElement(L, 1)
	descendants := e.sel.Find("*")
	return pushElementIterator(L, descendants)
}

func elementSelect(L *lua.LState) int {
	e := checkElement(L, 1)
	sel, err := toSelector(L, L.CheckAny(2))
	if err != nil {
		L.RaiseError("%s", err)
		return 0
	}
	var matched []*goqueryNode
	for _, n := range e.sel.Nodes {
		matched = append(matched, sel.sel.MatchAll(n)...)
	}
	L.Push(newElementIterator(L, matched))
	return 1
}

// pushElementIterator pushes a generic-for iterator over a *goquery.Selection,
// yielding one Element per matched node.
func pushElementIterator(L *lua.LState, sel *goquery.Selection) int {
	i := 0
	L.Push(L.NewFunction(func(L *lua.LState) int {
		if i >= sel.Length() {
			return 0
		}
		node := sel.Get(i)
		i++
		L.Push(newElementValue(L, goquery.NewDocumentFromNode(node).Selection))
		return 1
	}))
	return 1
}

func htmlNodeTypeName(n *goqueryNode) string {
	if n == nil {
		return "unknown"
	}
	switch n.Type {
	case htmlElementNode:
		return "element"
	case htmlTextNode:
		return "text"
	case htmlCommentNode:
		return "comment"
	case htmlDoctypeNode:
		return "doctype"
	case htmlDocumentNode:
		return "document"
	default:
		return "unknown"
	}
}
