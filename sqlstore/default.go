package sqlstore

import (
	"fmt"
	"strings"

	"github.com/hupe1980/vecstore"
)

// DefaultQueryProvider generates portable SQL with ? parameter markers and
// INSERT ... ON CONFLICT upserts, written against SQLite's dialect.
// Vectors live in BLOB columns as little-endian float32 and similarity is
// computed in Go over the candidate rows, so no database extension is
// needed. Engines with different parameter or upsert syntax get their own
// provider; see PostgresQueryProvider.
type DefaultQueryProvider struct{}

var _ QueryProvider = (*DefaultQueryProvider)(nil)

// NewDefaultQueryProvider creates the provider the builder falls back to
// when none is configured.
func NewDefaultQueryProvider() *DefaultQueryProvider {
	return &DefaultQueryProvider{}
}

// Name implements QueryProvider.
func (p *DefaultQueryProvider) Name() string {
	return "default"
}

// CreateRegistrySQL implements QueryProvider.
func (p *DefaultQueryProvider) CreateRegistrySQL(registry string) []string {
	return []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (name TEXT PRIMARY KEY, definition TEXT NOT NULL)", registry),
	}
}

// UpsertRegistrySQL implements QueryProvider.
func (p *DefaultQueryProvider) UpsertRegistrySQL(registry string) string {
	return fmt.Sprintf("INSERT INTO %s (name, definition) VALUES (?, ?) ON CONFLICT (name) DO UPDATE SET definition = excluded.definition", registry)
}

// SelectRegistrySQL implements QueryProvider.
func (p *DefaultQueryProvider) SelectRegistrySQL(registry string) string {
	return fmt.Sprintf("SELECT definition FROM %s WHERE name = ?", registry)
}

// DeleteRegistrySQL implements QueryProvider.
func (p *DefaultQueryProvider) DeleteRegistrySQL(registry string) string {
	return fmt.Sprintf("DELETE FROM %s WHERE name = ?", registry)
}

// ListRegistrySQL implements QueryProvider.
func (p *DefaultQueryProvider) ListRegistrySQL(registry string) string {
	return fmt.Sprintf("SELECT name FROM %s ORDER BY name", registry)
}

// CreateCollectionSQL implements QueryProvider.
func (p *DefaultQueryProvider) CreateCollectionSQL(table string, def *vecstore.Definition) ([]string, error) {
	key, ok := def.KeyField()
	if !ok {
		return nil, fmt.Errorf("definition has no key field")
	}

	cols := []string{key.Name + " TEXT PRIMARY KEY"}
	for _, f := range def.DataFields() {
		cols = append(cols, f.Name+" "+p.columnType(f.Type))
	}
	if vec, ok := def.VectorField(); ok {
		cols = append(cols, vec.Name+" BLOB")
	}

	stmts := []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", table, strings.Join(cols, ", ")),
	}
	for _, f := range def.DataFields() {
		if f.Indexed {
			stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s (%s)", table, f.Name, table, f.Name))
		}
	}
	return stmts, nil
}

// DropCollectionSQL implements QueryProvider.
func (p *DefaultQueryProvider) DropCollectionSQL(table string) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s", table)
}

// UpsertSQL implements QueryProvider.
func (p *DefaultQueryProvider) UpsertSQL(table string, def *vecstore.Definition) (string, error) {
	key, ok := def.KeyField()
	if !ok {
		return "", fmt.Errorf("definition has no key field")
	}

	cols := columnNames(def)
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")

	sets := make([]string, 0, len(cols)-1)
	for _, col := range cols[1:] {
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", col, col))
	}
	if len(sets) == 0 {
		return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO NOTHING",
			table, strings.Join(cols, ", "), marks, key.Name), nil
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		table, strings.Join(cols, ", "), marks, key.Name, strings.Join(sets, ", ")), nil
}

// GetSQL implements QueryProvider.
func (p *DefaultQueryProvider) GetSQL(table string, def *vecstore.Definition) (string, error) {
	key, ok := def.KeyField()
	if !ok {
		return "", fmt.Errorf("definition has no key field")
	}
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?",
		strings.Join(columnNames(def), ", "), table, key.Name), nil
}

// DeleteSQL implements QueryProvider.
func (p *DefaultQueryProvider) DeleteSQL(table string, def *vecstore.Definition) (string, error) {
	key, ok := def.KeyField()
	if !ok {
		return "", fmt.Errorf("definition has no key field")
	}
	return fmt.Sprintf("DELETE FROM %s WHERE %s = ?", table, key.Name), nil
}

// SearchSQL implements QueryProvider. The statement returns every row
// matching the filters; scoring and ordering happen in the collection.
func (p *DefaultQueryProvider) SearchSQL(table string, def *vecstore.Definition, filterFields []string, limit int) (string, bool, error) {
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(columnNames(def), ", "), table)
	if len(filterFields) > 0 {
		conds := make([]string, len(filterFields))
		for i, f := range filterFields {
			conds[i] = f + " = ?"
		}
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	return query, false, nil
}

// EncodeVector implements QueryProvider.
func (p *DefaultQueryProvider) EncodeVector(vec []float32) (any, error) {
	if vec == nil {
		return nil, nil
	}
	return EncodeVectorLE(vec), nil
}

// VectorDest implements QueryProvider.
func (p *DefaultQueryProvider) VectorDest() (any, func() ([]float32, error)) {
	var b []byte
	return &b, func() ([]float32, error) {
		if b == nil {
			return nil, nil
		}
		return DecodeVectorLE(b)
	}
}

func (p *DefaultQueryProvider) columnType(t vecstore.FieldType) string {
	switch t {
	case vecstore.TypeInt:
		return "INTEGER"
	case vecstore.TypeFloat:
		return "REAL"
	case vecstore.TypeBool:
		return "BOOLEAN"
	case vecstore.TypeBytes:
		return "BLOB"
	default:
		return "TEXT"
	}
}
