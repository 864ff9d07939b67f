package geo

import (
	"sort"

	"ghg-data-pipeline/internal/model"
)

// Lookup table columns.
const (
	ColChildCode   = "child_code"
	ColChildLevel  = "child_level"
	ColParentCode  = "parent_code"
	ColParentLevel = "parent_level"
)

// LookupColumns is the expected shape of a geography lookup table.
var LookupColumns = []model.Column{
	{Name: ColChildCode, Type: model.TypeString},
	{Name: ColChildLevel, Type: model.TypeString},
	{Name: ColParentCode, Type: model.TypeString},
	{Name: ColParentLevel, Type: model.TypeString},
}

// Edge is one child→parent link between adjacent levels.
type Edge struct {
	Child       string `json:"child_code"`
	ChildLevel  Level  `json:"child_level"`
	Parent      string `json:"parent_code"`
	ParentLevel Level  `json:"parent_level"`
}

// Lookup is the child→parent table for each level. It is read-only after
// construction and safe for concurrent use. A nil *Lookup knows no codes.
type Lookup struct {
	parents map[Level]map[string]string
	known   map[Level]map[string]bool
	edges   int
}

// NewLookupFromEdges builds a strict tree. A child listed under two different
// parents, or an edge that skips a level, is a configuration error.
func NewLookupFromEdges(edges []Edge) (*Lookup, error) {
	l := &Lookup{
		parents: make(map[Level]map[string]string, len(Levels)),
		known:   make(map[Level]map[string]bool, len(Levels)),
	}
	for _, lvl := range Levels {
		l.parents[lvl] = map[string]string{}
		l.known[lvl] = map[string]bool{}
	}

	for i, e := range edges {
		if !e.ChildLevel.Valid() || !e.ParentLevel.Valid() {
			return nil, model.ConfigErrorf("build_lookup", "edge %d has an invalid level", i)
		}
		want, ok := e.ChildLevel.Parent()
		if !ok || want != e.ParentLevel {
			return nil, model.ConfigErrorf("build_lookup", "edge %d links %s to %s, want adjacent levels", i, e.ChildLevel, e.ParentLevel)
		}
		child := NormalizeCode(e.ChildLevel, e.Child)
		parent := NormalizeCode(e.ParentLevel, e.Parent)
		if child == "" || parent == "" {
			return nil, model.ConfigErrorf("build_lookup", "edge %d has an empty code", i)
		}
		if prev, exists := l.parents[e.ChildLevel][child]; exists {
			if prev != parent {
				return nil, model.ConfigErrorf("build_lookup", "%s %s maps to both %s and %s", e.ChildLevel, child, prev, parent)
			}
			continue
		}
		l.parents[e.ChildLevel][child] = parent
		l.known[e.ChildLevel][child] = true
		l.known[e.ParentLevel][parent] = true
		l.edges++
	}
	return l, nil
}

// NewLookup reads edges from a table shaped like LookupColumns.
func NewLookup(t *model.Table) (*Lookup, error) {
	for _, col := range LookupColumns {
		got, ok := t.Column(col.Name)
		if !ok {
			return nil, model.ColumnConfigErrorf("build_lookup", col.Name, "lookup table is missing the column")
		}
		if got.Type != model.TypeString {
			return nil, model.ColumnConfigErrorf("build_lookup", col.Name, "lookup column is %s, want string", got.Type)
		}
	}

	edges := make([]Edge, 0, t.Len())
	for row := 0; row < t.Len(); row++ {
		var cells [4]string
		for i, col := range LookupColumns {
			s, ok := t.String(row, col.Name)
			if !ok || s == "" {
				return nil, model.ColumnConfigErrorf("build_lookup", col.Name, "row %d is null", row)
			}
			cells[i] = s
		}
		childLevel, err := ParseLevel(cells[1])
		if err != nil {
			return nil, err
		}
		parentLevel, err := ParseLevel(cells[3])
		if err != nil {
			return nil, err
		}
		edges = append(edges, Edge{Child: cells[0], ChildLevel: childLevel, Parent: cells[2], ParentLevel: parentLevel})
	}
	return NewLookupFromEdges(edges)
}

// Len is the number of distinct edges.
func (l *Lookup) Len() int {
	if l == nil {
		return 0
	}
	return l.edges
}

// Contains reports whether code appears at level, as either a child or a parent.
func (l *Lookup) Contains(level Level, code string) bool {
	if l == nil {
		return false
	}
	return l.known[level][NormalizeCode(level, code)]
}

// Parent returns the code one level up.
func (l *Lookup) Parent(level Level, code string) (string, bool) {
	if l == nil {
		return "", false
	}
	p, ok := l.parents[level][NormalizeCode(level, code)]
	return p, ok
}

// Ancestor walks from code at level from up to level to. It fails when any link
// in the chain is missing or when to is finer than from.
func (l *Lookup) Ancestor(code string, from, to Level) (string, bool) {
	if l == nil || to < from {
		return "", false
	}
	code = NormalizeCode(from, code)
	if from == to {
		return code, l.known[from][code]
	}
	for lvl := from; lvl < to; lvl++ {
		parent, ok := l.parents[lvl][code]
		if !ok {
			return "", false
		}
		code = parent
	}
	return code, true
}

// Codes returns the known codes at level, sorted.
func (l *Lookup) Codes(level Level) []string {
	if l == nil {
		return nil
	}
	out := make([]string, 0, len(l.known[level]))
	for c := range l.known[level] {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Edges returns every edge ordered by level then child code.
func (l *Lookup) Edges() []Edge {
	if l == nil {
		return nil
	}
	out := make([]Edge, 0, l.edges)
	for _, lvl := range Levels {
		parentLevel, ok := lvl.Parent()
		if !ok {
			continue
		}
		children := make([]string, 0, len(l.parents[lvl]))
		for c := range l.parents[lvl] {
			children = append(children, c)
		}
		sort.Strings(children)
		for _, c := range children {
			out = append(out, Edge{Child: c, ChildLevel: lvl, Parent: l.parents[lvl][c], ParentLevel: parentLevel})
		}
	}
	return out
}
