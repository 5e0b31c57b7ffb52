package etl

// ── Record ─────────────────────────────────────────────────
// Common intermediate data format.
// All sources produce Tables of Records, all destinations consume them.

// Field describes a single column in a dataset.
type Field struct {
	Name string `json:"name"`
	Type string `json:"type"` // "text" | "number" | "boolean" | "datetime"
}

// Schema describes the shape of records coming from a source.
type Schema struct {
	Fields []Field `json:"fields"`
}

// FieldNames returns an ordered list of field names.
func (s *Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Has reports whether the schema contains a field with the given name.
func (s *Schema) Has(name string) bool {
	for _, f := range s.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// Record is a single row of data flowing through the pipeline.
// A missing value is either an absent key or a nil value.
type Record struct {
	Data map[string]any `json:"data"`
}

// Missing reports whether the record has no value for field.
func (r Record) Missing(field string) bool {
	v, ok := r.Data[field]
	return !ok || v == nil
}

// ── Table ──────────────────────────────────────────────────

// Table is a named, ordered collection of records sharing the schema's columns.
// Created by a Source, mutated by the Transformer, read by destinations.
type Table struct {
	Name    string   `json:"name"`
	Schema  Schema   `json:"schema"`
	Records []Record `json:"records"`
}

// NewTable creates an empty table with text columns.
func NewTable(name string, columns []string) *Table {
	t := &Table{Name: name, Schema: Schema{Fields: make([]Field, len(columns))}}
	for i, c := range columns {
		t.Schema.Fields[i] = Field{Name: c, Type: "text"}
	}
	return t
}

// Len returns the number of records.
func (t *Table) Len() int {
	return len(t.Records)
}

// Columns returns the ordered column names.
func (t *Table) Columns() []string {
	return t.Schema.FieldNames()
}

// Column returns the values of one column in record order.
func (t *Table) Column(name string) []any {
	out := make([]any, len(t.Records))
	for i, r := range t.Records {
		out[i] = r.Data[name]
	}
	return out
}

// Clone returns a deep copy of the table's records and schema.
// Values are scalars, so copying each map is enough.
func (t *Table) Clone() *Table {
	c := &Table{
		Name:    t.Name,
		Schema:  Schema{Fields: append([]Field(nil), t.Schema.Fields...)},
		Records: make([]Record, len(t.Records)),
	}
	for i, r := range t.Records {
		data := make(map[string]any, len(r.Data))
		for k, v := range r.Data {
			data[k] = v
		}
		c.Records[i] = Record{Data: data}
	}
	return c
}

// InferTypes sets each field's type from the values it holds.
// A column whose non-missing values all share one kind gets that kind, else "text".
func (t *Table) InferTypes() {
	for i, f := range t.Schema.Fields {
		kind := ""
		for _, r := range t.Records {
			v, ok := r.Data[f.Name]
			if !ok || v == nil {
				continue
			}
			k := inferType(v)
			if kind == "" {
				kind = k
			} else if kind != k {
				kind = "text"
				break
			}
		}
		if kind == "" {
			kind = "text"
		}
		t.Schema.Fields[i].Type = kind
	}
}
