package dataset

import "context"

// ColumnSchema describes a single column in a physical table.
type ColumnSchema struct {
	Name     string
	DataType string
	Nullable bool
	Primary  bool
}

// ForeignKeyRef describes a relationship from a column to another table.
type ForeignKeyRef struct {
	Column    string
	RefTable  string
	RefColumn string
}

// TableSchema describes one physical table.
type TableSchema struct {
	Schema      string
	Name        string
	Columns     []ColumnSchema
	PrimaryKey  []string
	ForeignKeys []ForeignKeyRef
}

// SchemaInfo is the full introspected structure of one schema.
type SchemaInfo struct {
	Tables []TableSchema
}

// Inspector is optionally implemented by connections that can read the
// structure of their backing source. Each driver implements the
// source-specific queries; InspectSchema is shared.
type Inspector interface {
	ListTables(ctx context.Context, schema string) ([]string, error)
	InspectTable(ctx context.Context, schema, table string) (*TableSchema, error)
}

// InspectSchema builds the full SchemaInfo by orchestrating the Inspector.
// This is expensive; callers should cache the result.
func InspectSchema(ctx context.Context, i Inspector, schema string) (*SchemaInfo, error) {
	tables, err := i.ListTables(ctx, schema)
	if err != nil {
		return nil, err
	}

	info := &SchemaInfo{}
	for _, table := range tables {
		ts, err := i.InspectTable(ctx, schema, table)
		if err != nil {
			return nil, err
		}
		info.Tables = append(info.Tables, *ts)
	}
	return info, nil
}
