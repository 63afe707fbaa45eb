package catalog

import (
	"fmt"
	"sync"

	"relic/internal/buffer"
	"relic/internal/index"
	"relic/internal/table"
	"relic/internal/txn"
)

// TableOID identifies a table.
type TableOID uint32

// IndexOID identifies an index.
type IndexOID uint32

// TableInfo is the catalog entry for one table.
type TableInfo struct {
	Schema *table.Schema
	Name   string
	Heap   *table.Heap
	OID    TableOID
}

// IndexInfo is the catalog entry for one index.
type IndexInfo struct {
	Name      string
	TableName string
	Index     *index.BPlusTree
	KeyAttrs  []int
	KeySize   int
	OID       IndexOID
}

// Catalog is the in-memory registry of tables and indexes. Table and
// index oids are handed out monotonically; names are unique.
type Catalog struct {
	mu sync.RWMutex
	bp *buffer.Pool

	tables     map[TableOID]*TableInfo
	tableNames map[string]TableOID
	nextTable  TableOID

	indexes    map[IndexOID]*IndexInfo
	indexNames map[string]map[string]IndexOID // table -> index -> oid
	nextIndex  IndexOID
}

// NewCatalog creates an empty catalog over the buffer pool.
func NewCatalog(bp *buffer.Pool) *Catalog {
	return &Catalog{
		bp:         bp,
		tables:     make(map[TableOID]*TableInfo),
		tableNames: make(map[string]TableOID),
		indexes:    make(map[IndexOID]*IndexInfo),
		indexNames: make(map[string]map[string]IndexOID),
	}
}

// CreateTable registers a new table with a fresh heap.
func (c *Catalog) CreateTable(tr *txn.Transaction, name string, schema *table.Schema) (*TableInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.tableNames[name]; exists {
		return nil, fmt.Errorf("catalog: table %q already exists", name)
	}
	heap, err := table.NewHeap(c.bp)
	if err != nil {
		return nil, err
	}
	oid := c.nextTable
	c.nextTable++
	info := &TableInfo{Schema: schema, Name: name, Heap: heap, OID: oid}
	c.tables[oid] = info
	c.tableNames[name] = oid
	return info, nil
}

// GetTable resolves a table by name.
func (c *Catalog) GetTable(name string) (*TableInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	oid, ok := c.tableNames[name]
	if !ok {
		return nil, fmt.Errorf("catalog: table %q does not exist", name)
	}
	return c.tables[oid], nil
}

// GetTableByOID resolves a table by oid.
func (c *Catalog) GetTableByOID(oid TableOID) (*TableInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.tables[oid]
	if !ok {
		return nil, fmt.Errorf("catalog: table oid %d does not exist", oid)
	}
	return info, nil
}

// CreateIndex registers a new B+ tree index over keyAttrs of an
// existing table and backfills it from the table's current rows.
func (c *Catalog) CreateIndex(tr *txn.Transaction, indexName, tableName string, keyAttrs []int, keySize int, leafMax, internalMax int32) (*IndexInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	oid, ok := c.tableNames[tableName]
	if !ok {
		return nil, fmt.Errorf("catalog: table %q does not exist", tableName)
	}
	tableInfo := c.tables[oid]
	if byName, ok := c.indexNames[tableName]; ok {
		if _, dup := byName[indexName]; dup {
			return nil, fmt.Errorf("catalog: index %q on %q already exists", indexName, tableName)
		}
	}

	tree, err := index.NewBPlusTree(indexName, c.bp, index.CompareBytes, keySize, leafMax, internalMax)
	if err != nil {
		return nil, err
	}

	// Backfill from existing rows.
	it := tableInfo.Heap.Iterate(tr)
	for {
		data, rid, ok := it.Next()
		if !ok {
			break
		}
		tuple, err := table.DeserializeTuple(data, tableInfo.Schema, rid)
		if err != nil {
			return nil, err
		}
		key := tuple.KeyFromTuple(keyAttrs, keySize)
		if _, err := tree.Insert(key, rid, nil); err != nil {
			return nil, err
		}
	}
	if err := it.Err(); err != nil {
		return nil, err
	}

	indexOID := c.nextIndex
	c.nextIndex++
	info := &IndexInfo{
		Name:      indexName,
		TableName: tableName,
		Index:     tree,
		KeyAttrs:  keyAttrs,
		KeySize:   keySize,
		OID:       indexOID,
	}
	c.indexes[indexOID] = info
	byName := c.indexNames[tableName]
	if byName == nil {
		byName = make(map[string]IndexOID)
		c.indexNames[tableName] = byName
	}
	byName[indexName] = indexOID
	return info, nil
}

// GetIndex resolves an index by name within a table.
func (c *Catalog) GetIndex(indexName, tableName string) (*IndexInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	byName, ok := c.indexNames[tableName]
	if !ok {
		return nil, fmt.Errorf("catalog: table %q has no indexes", tableName)
	}
	oid, ok := byName[indexName]
	if !ok {
		return nil, fmt.Errorf("catalog: index %q on %q does not exist", indexName, tableName)
	}
	return c.indexes[oid], nil
}

// GetIndexByOID resolves an index by oid.
func (c *Catalog) GetIndexByOID(oid IndexOID) (*IndexInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.indexes[oid]
	if !ok {
		return nil, fmt.Errorf("catalog: index oid %d does not exist", oid)
	}
	return info, nil
}

// GetTableIndexes lists every index on a table.
func (c *Catalog) GetTableIndexes(tableName string) []*IndexInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	byName := c.indexNames[tableName]
	out := make([]*IndexInfo, 0, len(byName))
	for _, oid := range byName {
		out = append(out, c.indexes[oid])
	}
	return out
}
