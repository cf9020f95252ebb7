package vecstore

// CollectionOptions bundles the resolved record schema handed to a
// collection at construction time. Immutable once built.
type CollectionOptions struct {
	recordType any
	definition *Definition
}

// NewCollectionOptions resolves the effective definition for a collection:
// an explicit definition wins, otherwise it is inferred from recordType's
// vstore tags. Resolution failures are construction errors of GetCollection.
func NewCollectionOptions(recordType any, def *Definition) (CollectionOptions, error) {
	resolved, err := ResolveDefinition(recordType, def)
	if err != nil {
		return CollectionOptions{}, err
	}
	return CollectionOptions{
		recordType: recordType,
		definition: resolved,
	}, nil
}

// RecordType returns the record prototype the collection was requested with.
func (o CollectionOptions) RecordType() any { return o.recordType }

// Definition returns the resolved record definition. Callers must treat it
// as read-only.
func (o CollectionOptions) Definition() *Definition { return o.definition }
