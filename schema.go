package ekv

import (
	"fmt"
	"strings"
)

// Schema is a registry of table descriptors. Descriptors are plain data
// constructed at startup (or by an offline generator) and passed explicitly;
// no reflection and no source annotations.
type Schema struct {
	tables            []*Table
	tablesByLowerName map[string]*Table
}

func NewSchema() *Schema {
	return &Schema{
		tablesByLowerName: make(map[string]*Table),
	}
}

func (scm *Schema) init() {
	if scm.tablesByLowerName == nil {
		scm.tablesByLowerName = make(map[string]*Table)
	}
}

func (scm *Schema) Tables() []*Table {
	return append([]*Table(nil), scm.tables...)
}

func (scm *Schema) TableNamed(name string) *Table {
	return scm.tablesByLowerName[strings.ToLower(name)]
}

// Table describes one entity type: its name, current schema version, how to
// extract the primary key from a row, which index entries a row contributes,
// and optionally the predecessor it migrates from.
type Table struct {
	schema          *Schema
	name            string
	latestSchemaVer uint64
	indices         []*Index
	indicesByName   map[string]*Index
	keyOf           func(row any) any
	indexer         func(row any, ib *IndexBuilder)
	newRow          func() any
	valueEnc        Encoding
	prev            *migrationStep
}

type migrationStep struct {
	old       *Table
	transform func(oldRow any) (any, error)
}

// AddTable registers a table for Row. keyOf extracts the primary key;
// indexer, which may be nil, reports the index entries the row contributes
// by calling ib.Add. Indexes in indices must not be attached to another
// table yet.
func AddTable[Row any](scm *Schema, name string, latestSchemaVer uint64, keyOf func(row *Row) any, indexer func(row *Row, ib *IndexBuilder), indices []*Index) *Table {
	scm.init()
	if name == "" || strings.IndexByte(name, 0) >= 0 {
		panic(fmt.Errorf("invalid table name %q", name))
	}
	if scm.tablesByLowerName[strings.ToLower(name)] != nil {
		panic(fmt.Errorf("table %s already defined", name))
	}
	if keyOf == nil {
		panic(fmt.Errorf("%s: keyOf is required", name))
	}
	tbl := &Table{
		schema:          scm,
		name:            name,
		latestSchemaVer: latestSchemaVer,
		indicesByName:   make(map[string]*Index),
		valueEnc:        defaultValueEncoding,
		keyOf: func(row any) any {
			return keyOf(row.(*Row))
		},
		newRow: func() any {
			return new(Row)
		},
	}
	if indexer != nil {
		tbl.indexer = func(row any, ib *IndexBuilder) {
			indexer(row.(*Row), ib)
		}
	}
	for _, idx := range indices {
		tbl.AddIndex(idx)
	}
	scm.tables = append(scm.tables, tbl)
	scm.tablesByLowerName[strings.ToLower(name)] = tbl
	return tbl
}

func (tbl *Table) Name() string {
	return tbl.name
}

func (tbl *Table) SchemaVer() uint64 {
	return tbl.latestSchemaVer
}

func (tbl *Table) AddIndex(idx *Index) *Table {
	if idx.table != nil {
		panic(fmt.Errorf("index %q already belongs to table %s", idx.name, idx.table.name))
	}
	if tbl.indicesByName[idx.name] != nil {
		panic(fmt.Errorf("table %s already has index named %q", tbl.name, idx.name))
	}
	idx.table = tbl
	tbl.indices = append(tbl.indices, idx)
	tbl.indicesByName[idx.name] = idx
	return tbl
}

func (tbl *Table) Indexes() []*Index {
	return append([]*Index(nil), tbl.indices...)
}

func (tbl *Table) IndexNamed(name string) *Index {
	return tbl.indicesByName[name]
}

func (tbl *Table) NewRow() any {
	return tbl.newRow()
}

func (tbl *Table) RowKey(row any) any {
	return tbl.keyOf(row)
}

// MigrateFrom links tbl to its predecessor: records still stored under
// old's name are rewritten through transform by EnsureMigrations. Each table
// declares at most one predecessor, so versions form a chain, not a DAG.
func MigrateFrom[Old, New any](tbl *Table, old *Table, transform func(oldRow *Old) (*New, error)) {
	if tbl.prev != nil {
		panic(fmt.Errorf("table %s already has a predecessor (%s)", tbl.name, tbl.prev.old.name))
	}
	if old == tbl {
		panic(fmt.Errorf("table %s cannot be its own predecessor", tbl.name))
	}
	if transform == nil {
		panic(fmt.Errorf("%s: transform is required", tbl.name))
	}
	tbl.prev = &migrationStep{
		old: old,
		transform: func(oldRow any) (any, error) {
			return transform(oldRow.(*Old))
		},
	}
}

// Index declares a secondary index. The indexed value is whatever the
// table's indexer passes to ib.Add for this index; it must be a supported
// key part type.
type Index struct {
	table    *Table
	name     string
	isUnique bool
}

func AddIndex(name string) *Index {
	if name == "" || strings.IndexByte(name, 0) >= 0 {
		panic(fmt.Errorf("invalid index name %q", name))
	}
	return &Index{name: name}
}

func (idx *Index) Unique() *Index {
	idx.isUnique = true
	return idx
}

func (idx *Index) Table() *Table {
	return idx.table
}

func (idx *Index) ShortName() string {
	return idx.name
}

func (idx *Index) FullName() string {
	if idx.table == nil {
		return "?." + idx.name
	}
	return idx.table.name + "." + idx.name
}

func (idx *Index) IsUnique() bool {
	return idx.isUnique
}

// IndexBuilder collects the index entries one row contributes. An indexer
// may skip an Add call to leave a row out of an index entirely.
type IndexBuilder struct {
	tbl     *Table
	entries []indexedValue
}

type indexedValue struct {
	idx   *Index
	value any
}

func (ib *IndexBuilder) Add(idx *Index, value any) {
	if idx.table != ib.tbl {
		panic(fmt.Errorf("index %s does not belong to table %s", idx.FullName(), ib.tbl.name))
	}
	ib.entries = append(ib.entries, indexedValue{idx, value})
}

// indexedValues runs the indexer and returns the row's index entries.
func (tbl *Table) indexedValues(row any) []indexedValue {
	if tbl.indexer == nil {
		return nil
	}
	ib := IndexBuilder{tbl: tbl}
	tbl.indexer(row, &ib)
	return ib.entries
}
