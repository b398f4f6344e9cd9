package main

import "github.com/abdoElHodaky/lobcore/pkg/lobtypes"

// symbolTable assigns each configured ticker a stable lobtypes.Symbol,
// since the core treats Symbol as an opaque ID from an external
// instrument registry it never interprets.
type symbolTable struct {
	byName map[string]lobtypes.Symbol
	byID   map[lobtypes.Symbol]string
}

func newSymbolTable(names []string) *symbolTable {
	t := &symbolTable{
		byName: make(map[string]lobtypes.Symbol, len(names)),
		byID:   make(map[lobtypes.Symbol]string, len(names)),
	}
	for i, name := range names {
		id := lobtypes.Symbol(i + 1)
		t.byName[name] = id
		t.byID[id] = name
	}
	return t
}

func (t *symbolTable) ids() []lobtypes.Symbol {
	out := make([]lobtypes.Symbol, 0, len(t.byID))
	for id := range t.byID {
		out = append(out, id)
	}
	return out
}

func (t *symbolTable) name(id lobtypes.Symbol) string {
	if n, ok := t.byID[id]; ok {
		return n
	}
	return "unknown"
}
