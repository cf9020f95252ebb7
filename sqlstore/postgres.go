package sqlstore

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/pgvector/pgvector-go"

	"github.com/hupe1980/vecstore"
	"github.com/hupe1980/vecstore/distance"
)

// PostgresQueryProvider generates PostgreSQL statements using the pgvector
// extension. Vectors live in vector(n) columns, similarity ordering runs
// inside the database through the pgvector distance operators, and an HNSW
// index is created per collection so large tables stay searchable.
//
// Prepare issues CREATE EXTENSION IF NOT EXISTS vector, which needs a role
// allowed to create extensions the first time it runs.
type PostgresQueryProvider struct{}

var _ QueryProvider = (*PostgresQueryProvider)(nil)

// NewPostgresQueryProvider creates a provider for PostgreSQL with pgvector.
func NewPostgresQueryProvider() *PostgresQueryProvider {
	return &PostgresQueryProvider{}
}

// Name implements QueryProvider.
func (p *PostgresQueryProvider) Name() string {
	return "postgres"
}

// CreateRegistrySQL implements QueryProvider.
func (p *PostgresQueryProvider) CreateRegistrySQL(registry string) []string {
	return []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (name TEXT PRIMARY KEY, definition TEXT NOT NULL)", registry),
	}
}

// UpsertRegistrySQL implements QueryProvider.
func (p *PostgresQueryProvider) UpsertRegistrySQL(registry string) string {
	return fmt.Sprintf("INSERT INTO %s (name, definition) VALUES ($1, $2) ON CONFLICT (name) DO UPDATE SET definition = EXCLUDED.definition", registry)
}

// SelectRegistrySQL implements QueryProvider.
func (p *PostgresQueryProvider) SelectRegistrySQL(registry string) string {
	return fmt.Sprintf("SELECT definition FROM %s WHERE name = $1", registry)
}

// DeleteRegistrySQL implements QueryProvider.
func (p *PostgresQueryProvider) DeleteRegistrySQL(registry string) string {
	return fmt.Sprintf("DELETE FROM %s WHERE name = $1", registry)
}

// ListRegistrySQL implements QueryProvider.
func (p *PostgresQueryProvider) ListRegistrySQL(registry string) string {
	return fmt.Sprintf("SELECT name FROM %s ORDER BY name", registry)
}

// CreateCollectionSQL implements QueryProvider.
func (p *PostgresQueryProvider) CreateCollectionSQL(table string, def *vecstore.Definition) ([]string, error) {
	key, ok := def.KeyField()
	if !ok {
		return nil, fmt.Errorf("definition has no key field")
	}

	cols := []string{key.Name + " TEXT PRIMARY KEY"}
	for _, f := range def.DataFields() {
		cols = append(cols, f.Name+" "+p.columnType(f.Type))
	}
	vec, hasVec := def.VectorField()
	if hasVec {
		cols = append(cols, fmt.Sprintf("%s vector(%d)", vec.Name, vec.Dimensions))
	}

	stmts := []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", table, strings.Join(cols, ", ")),
	}
	for _, f := range def.DataFields() {
		if f.Indexed {
			stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s (%s)", table, f.Name, table, f.Name))
		}
	}
	if hasVec {
		stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s USING hnsw (%s %s)",
			table, vec.Name, table, vec.Name, p.opClass(vec.Metric)))
	}
	return stmts, nil
}

// DropCollectionSQL implements QueryProvider.
func (p *PostgresQueryProvider) DropCollectionSQL(table string) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s", table)
}

// UpsertSQL implements QueryProvider.
func (p *PostgresQueryProvider) UpsertSQL(table string, def *vecstore.Definition) (string, error) {
	key, ok := def.KeyField()
	if !ok {
		return "", fmt.Errorf("definition has no key field")
	}

	cols := columnNames(def)
	marks := make([]string, len(cols))
	for i := range cols {
		marks[i] = fmt.Sprintf("$%d", i+1)
	}

	sets := make([]string, 0, len(cols)-1)
	for _, col := range cols[1:] {
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
	}
	if len(sets) == 0 {
		return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO NOTHING",
			table, strings.Join(cols, ", "), strings.Join(marks, ", "), key.Name), nil
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		table, strings.Join(cols, ", "), strings.Join(marks, ", "), key.Name, strings.Join(sets, ", ")), nil
}

// GetSQL implements QueryProvider.
func (p *PostgresQueryProvider) GetSQL(table string, def *vecstore.Definition) (string, error) {
	key, ok := def.KeyField()
	if !ok {
		return "", fmt.Errorf("definition has no key field")
	}
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1",
		strings.Join(columnNames(def), ", "), table, key.Name), nil
}

// DeleteSQL implements QueryProvider.
func (p *PostgresQueryProvider) DeleteSQL(table string, def *vecstore.Definition) (string, error) {
	key, ok := def.KeyField()
	if !ok {
		return "", fmt.Errorf("definition has no key field")
	}
	return fmt.Sprintf("DELETE FROM %s WHERE %s = $1", table, key.Name), nil
}

// SearchSQL implements QueryProvider. The statement orders by the pgvector
// distance operator matching the vector field's metric, so the database
// returns at most limit rows, best first.
func (p *PostgresQueryProvider) SearchSQL(table string, def *vecstore.Definition, filterFields []string, limit int) (string, bool, error) {
	vec, ok := def.VectorField()
	if !ok {
		return "", false, fmt.Errorf("definition has no vector field")
	}

	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(columnNames(def), ", "), table)
	arg := 1
	if len(filterFields) > 0 {
		conds := make([]string, len(filterFields))
		for i, f := range filterFields {
			conds[i] = fmt.Sprintf("%s = $%d", f, arg)
			arg++
		}
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY %s %s $%d LIMIT %d", vec.Name, p.operator(vec.Metric), arg, limit)
	return query, true, nil
}

// EncodeVector implements QueryProvider.
func (p *PostgresQueryProvider) EncodeVector(vec []float32) (any, error) {
	if vec == nil {
		return nil, nil
	}
	return pgvector.NewVector(vec), nil
}

// VectorDest implements QueryProvider.
func (p *PostgresQueryProvider) VectorDest() (any, func() ([]float32, error)) {
	var v sql.Null[pgvector.Vector]
	return &v, func() ([]float32, error) {
		if !v.Valid {
			return nil, nil
		}
		return v.V.Slice(), nil
	}
}

func (p *PostgresQueryProvider) columnType(t vecstore.FieldType) string {
	switch t {
	case vecstore.TypeInt:
		return "BIGINT"
	case vecstore.TypeFloat:
		return "DOUBLE PRECISION"
	case vecstore.TypeBool:
		return "BOOLEAN"
	case vecstore.TypeBytes:
		return "BYTEA"
	default:
		return "TEXT"
	}
}

// operator maps a metric to its pgvector distance operator. All three sort
// ascending: smaller cosine distance, smaller euclidean distance, and more
// negative inner product all mean more similar.
func (p *PostgresQueryProvider) operator(m distance.Metric) string {
	switch m {
	case distance.MetricL2:
		return "<->"
	case distance.MetricDot:
		return "<#>"
	default:
		return "<=>"
	}
}

func (p *PostgresQueryProvider) opClass(m distance.Metric) string {
	switch m {
	case distance.MetricL2:
		return "vector_l2_ops"
	case distance.MetricDot:
		return "vector_ip_ops"
	default:
		return "vector_cosine_ops"
	}
}
