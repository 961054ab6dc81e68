package index

// CodeTable is the dense document numbering of one build. Codes start at 1
// and follow first-seen order.
type CodeTable struct {
	codes map[string]uint32
	ids   []string
}

// AssignCodes folds the document stream into a CodeTable. It has no side
// effects: the same input always yields the same table.
func AssignCodes(docs []Document) CodeTable {
	table := CodeTable{codes: make(map[string]uint32, len(docs))}
	for _, d := range docs {
		table = table.with(d.ID)
	}
	return table
}

func (t CodeTable) with(id string) CodeTable {
	if _, seen := t.codes[id]; seen {
		return t
	}
	t.ids = append(t.ids, id)
	t.codes[id] = uint32(len(t.ids))
	return t
}

// Code returns the code assigned to id, or 0 if id was never seen.
func (t CodeTable) Code(id string) uint32 {
	return t.codes[id]
}

// ID returns the identifier for code.
func (t CodeTable) ID(code uint32) (string, bool) {
	if code == 0 || int(code) > len(t.ids) {
		return "", false
	}
	return t.ids[code-1], true
}

// Len is the number of distinct documents, N.
func (t CodeTable) Len() int {
	return len(t.ids)
}
