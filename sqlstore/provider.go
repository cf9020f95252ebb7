package sqlstore

import (
	"github.com/hupe1980/vecstore"
)

// QueryProvider generates the SQL for one database dialect.
//
// A provider is resolved exactly once when the store is built and never
// swapped afterwards; every statement the store and its collections execute
// comes from that single instance. Implementations must be stateless and
// safe for concurrent use.
//
// Table and column names are interpolated into the statement text, not
// bound as parameters. The store validates them against ValidateIdentifier
// before any provider method sees them, so providers may splice them in
// without quoting.
//
// Row shape convention: statements returning records produce the key
// column first, the data fields in definition order, and the vector column
// last when the definition has one. Parameter order for record writes
// follows the same convention.
type QueryProvider interface {
	// Name identifies the dialect, e.g. "default" or "postgres".
	Name() string

	// CreateRegistrySQL returns the statements creating the collection
	// registry table. Statements must be idempotent; they run on every
	// Prepare.
	CreateRegistrySQL(registry string) []string

	// UpsertRegistrySQL returns the statement registering a collection.
	// Parameters: name, definition.
	UpsertRegistrySQL(registry string) string

	// SelectRegistrySQL returns the statement loading one registry row by
	// name. Parameters: name. Columns: definition.
	SelectRegistrySQL(registry string) string

	// DeleteRegistrySQL returns the statement removing one registry row.
	// Parameters: name.
	DeleteRegistrySQL(registry string) string

	// ListRegistrySQL returns the statement listing registered collection
	// names. Parameters: none. Columns: name.
	ListRegistrySQL(registry string) string

	// CreateCollectionSQL returns the idempotent statements creating the
	// data table and its secondary indexes for def.
	CreateCollectionSQL(table string, def *vecstore.Definition) ([]string, error)

	// DropCollectionSQL returns the statement dropping the data table.
	// Dropping a missing table must not error.
	DropCollectionSQL(table string) string

	// UpsertSQL returns the insert-or-replace statement for one record.
	UpsertSQL(table string, def *vecstore.Definition) (string, error)

	// GetSQL returns the point lookup statement. Parameters: key.
	GetSQL(table string, def *vecstore.Definition) (string, error)

	// DeleteSQL returns the delete statement. Parameters: key.
	DeleteSQL(table string, def *vecstore.Definition) (string, error)

	// SearchSQL returns the candidate query for a vector search over the
	// rows matching all filterFields, whose values bind in the given
	// order.
	//
	// When native is true the statement orders by similarity to a query
	// vector parameter appended after the filter values and embeds the
	// limit, so at most limit rows come back, best first. When native is
	// false the statement returns every candidate row and the collection
	// scores and sorts them itself.
	SearchSQL(table string, def *vecstore.Definition, filterFields []string, limit int) (sql string, native bool, err error)

	// EncodeVector converts a vector to its bind parameter representation.
	// A nil vector must encode to nil so the column goes NULL.
	EncodeVector(vec []float32) (any, error)

	// VectorDest returns a scan destination for the vector column and the
	// function extracting the decoded vector from it after a Scan. A NULL
	// column extracts to nil.
	VectorDest() (any, func() ([]float32, error))
}
