package validator

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// usage is one load-context reference to a name found while walking the tree.
type usage struct {
	Name       string
	Line       int
	Column     int
	IsAttrRoot bool
}

// dependencies is the flat, snippet-wide symbol table collected from a
// single tree-sitter parse: every name the snippet imports, defines, and
// uses, without scope or control-flow ordering. A notebook cell is typically
// small enough that flow-insensitive analysis catches the useful cases
// without the complexity of a real scope resolver.
type dependencies struct {
	imports           map[string]bool
	defined           map[string]bool
	assignedVars      map[string]bool
	attrRoots         map[string]bool
	bareUses          map[string]bool
	used              []usage
	hasWildcardImport bool
}

func extractDependencies(root *sitter.Node, src []byte) *dependencies {
	d := &dependencies{
		imports:      map[string]bool{},
		defined:      map[string]bool{},
		assignedVars: map[string]bool{},
		attrRoots:    map[string]bool{},
		bareUses:     map[string]bool{},
	}
	d.walk(root, src)
	return d
}

func (d *dependencies) walk(n *sitter.Node, src []byte) {
	if n == nil {
		return
	}
	switch n.Type() {
	case "import_statement":
		d.handleImportStatement(n, src)
		return
	case "import_from_statement":
		d.handleImportFromStatement(n, src)
		return
	case "function_definition":
		d.handleFunctionDef(n, src)
		return
	case "class_definition":
		d.handleClassDef(n, src)
		return
	case "assignment", "augmented_assignment":
		d.handleAssignment(n, src)
		return
	case "for_statement":
		d.handleForStatement(n, src)
		return
	case "list_comprehension", "set_comprehension", "dictionary_comprehension", "generator_expression":
		d.handleComprehension(n, src)
		return
	case "except_clause":
		d.handleAsClause(n, src, false)
		return
	case "with_item":
		d.handleAsClause(n, src, true)
		return
	case "attribute":
		d.handleAttribute(n, src)
		return
	case "keyword_argument":
		if v := n.ChildByFieldName("value"); v != nil {
			d.walk(v, src)
		}
		return
	case "identifier":
		d.recordUse(n, src, false)
		return
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		d.walk(n.NamedChild(i), src)
	}
}

func (d *dependencies) recordUse(n *sitter.Node, src []byte, isAttrRoot bool) {
	name := string(src[n.StartByte():n.EndByte()])
	d.used = append(d.used, usage{
		Name:       name,
		Line:       int(n.StartPoint().Row) + 1,
		Column:     int(n.StartPoint().Column) + 1,
		IsAttrRoot: isAttrRoot,
	})
	if isAttrRoot {
		d.attrRoots[name] = true
	} else {
		d.bareUses[name] = true
	}
}

func (d *dependencies) handleAttribute(n *sitter.Node, src []byte) {
	obj := n.ChildByFieldName("object")
	if obj == nil {
		return
	}
	if obj.Type() == "identifier" {
		d.recordUse(obj, src, true)
		return
	}
	d.walk(obj, src)
}

func (d *dependencies) handleImportStatement(n *sitter.Node, src []byte) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		switch c.Type() {
		case "dotted_name":
			full := string(src[c.StartByte():c.EndByte()])
			root := rootOf(full)
			d.imports[root] = true
			d.defined[root] = true
		case "aliased_import":
			if alias := c.ChildByFieldName("alias"); alias != nil {
				name := string(src[alias.StartByte():alias.EndByte()])
				d.imports[name] = true
				d.defined[name] = true
			} else if nameNode := c.ChildByFieldName("name"); nameNode != nil {
				root := rootOf(string(src[nameNode.StartByte():nameNode.EndByte()]))
				d.imports[root] = true
				d.defined[root] = true
			}
		}
	}
}

func (d *dependencies) handleImportFromStatement(n *sitter.Node, src []byte) {
	moduleNode := n.ChildByFieldName("module_name")
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c == moduleNode {
			continue
		}
		switch c.Type() {
		case "dotted_name", "identifier":
			name := string(src[c.StartByte():c.EndByte()])
			d.defined[name] = true
		case "aliased_import":
			if alias := c.ChildByFieldName("alias"); alias != nil {
				d.defined[string(src[alias.StartByte():alias.EndByte()])] = true
			} else if nameNode := c.ChildByFieldName("name"); nameNode != nil {
				d.defined[string(src[nameNode.StartByte():nameNode.EndByte()])] = true
			}
		case "wildcard_import":
			d.hasWildcardImport = true
		}
	}
}

func (d *dependencies) handleFunctionDef(n *sitter.Node, src []byte) {
	if nameNode := n.ChildByFieldName("name"); nameNode != nil {
		d.defined[string(src[nameNode.StartByte():nameNode.EndByte()])] = true
	}
	if params := n.ChildByFieldName("parameters"); params != nil {
		d.handleParameters(params, src)
	}
	if ret := n.ChildByFieldName("return_type"); ret != nil {
		d.walk(ret, src)
	}
	if body := n.ChildByFieldName("body"); body != nil {
		d.walk(body, src)
	}
}

func (d *dependencies) handleParameters(n *sitter.Node, src []byte) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		switch c.Type() {
		case "identifier":
			d.defined[string(src[c.StartByte():c.EndByte()])] = true
		case "typed_parameter":
			if id := firstIdentifierChild(c); id != nil {
				d.defined[string(src[id.StartByte():id.EndByte()])] = true
			}
			if t := c.ChildByFieldName("type"); t != nil {
				d.walk(t, src)
			}
		case "default_parameter", "typed_default_parameter":
			if nameNode := c.ChildByFieldName("name"); nameNode != nil {
				d.defined[string(src[nameNode.StartByte():nameNode.EndByte()])] = true
			}
			if t := c.ChildByFieldName("type"); t != nil {
				d.walk(t, src)
			}
			if v := c.ChildByFieldName("value"); v != nil {
				d.walk(v, src)
			}
		case "list_splat_pattern", "dictionary_splat_pattern":
			if id := firstIdentifierChild(c); id != nil {
				d.defined[string(src[id.StartByte():id.EndByte()])] = true
			}
		}
	}
}

func (d *dependencies) handleClassDef(n *sitter.Node, src []byte) {
	if nameNode := n.ChildByFieldName("name"); nameNode != nil {
		d.defined[string(src[nameNode.StartByte():nameNode.EndByte()])] = true
	}
	if bases := n.ChildByFieldName("superclasses"); bases != nil {
		d.walk(bases, src)
	}
	if body := n.ChildByFieldName("body"); body != nil {
		d.walk(body, src)
	}
}

func (d *dependencies) handleAssignment(n *sitter.Node, src []byte) {
	left := n.ChildByFieldName("left")
	right := n.ChildByFieldName("right")
	typ := n.ChildByFieldName("type")
	if left != nil {
		d.collectAssignmentTargets(left, src, true)
	}
	if typ != nil {
		d.walk(typ, src)
	}
	if right != nil {
		d.walk(right, src)
	}
}

// collectAssignmentTargets records the names an assignment target binds.
// track controls whether plain identifiers also feed the unused-variable
// lint: direct assignment targets are tracked, loop/comprehension/with
// targets are not, since those are commonly left unread by design.
func (d *dependencies) collectAssignmentTargets(n *sitter.Node, src []byte, track bool) {
	switch n.Type() {
	case "identifier":
		name := string(src[n.StartByte():n.EndByte()])
		d.defined[name] = true
		if track {
			d.assignedVars[name] = true
		}
	case "pattern_list", "tuple_pattern", "list_pattern":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			d.collectAssignmentTargets(n.NamedChild(i), src, track)
		}
	default:
		// attribute/subscript targets reference an existing value, not a new name
		d.walk(n, src)
	}
}

func (d *dependencies) handleForStatement(n *sitter.Node, src []byte) {
	left := n.ChildByFieldName("left")
	right := n.ChildByFieldName("right")
	body := n.ChildByFieldName("body")
	alt := n.ChildByFieldName("alternative")
	if left != nil {
		d.collectAssignmentTargets(left, src, false)
	}
	if right != nil {
		d.walk(right, src)
	}
	if body != nil {
		d.walk(body, src)
	}
	if alt != nil {
		d.walk(alt, src)
	}
}

func (d *dependencies) handleComprehension(n *sitter.Node, src []byte) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.Type() == "for_in_clause" {
			left := c.ChildByFieldName("left")
			right := c.ChildByFieldName("right")
			if left != nil {
				d.collectAssignmentTargets(left, src, false)
			}
			if right != nil {
				d.walk(right, src)
			}
			continue
		}
		d.walk(c, src)
	}
}

// handleAsClause covers except_clause and with_item, both of which bind an
// optional name after an "as" token with no dedicated field in the grammar.
func (d *dependencies) handleAsClause(n *sitter.Node, src []byte, trackAsDefined bool) {
	var asSeen bool
	_ = trackAsDefined
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c.Type() == "as" {
			asSeen = true
			continue
		}
		if asSeen && c.IsNamed() {
			d.collectAssignmentTargets(c, src, false)
			asSeen = false
			continue
		}
		if !asSeen && c.IsNamed() {
			d.walk(c, src)
		}
	}
}

func firstIdentifierChild(n *sitter.Node) *sitter.Node {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c.Type() == "identifier" {
			return c
		}
	}
	return nil
}

func rootOf(s string) string {
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		return s[:idx]
	}
	return s
}
