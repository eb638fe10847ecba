package native

// ServiceFlags control ServiceGet.
type ServiceFlags uint32

const (
	ServiceNone            ServiceFlags = 0
	ServiceOpenSession     ServiceFlags = 1 << 1
	ServiceLoadCollections ServiceFlags = 1 << 2
)

// CollectionCreateFlags control CollectionCreate.
type CollectionCreateFlags uint32

const CollectionCreateNone CollectionCreateFlags = 0

// SearchFlags control which items a search returns and what it loads.
type SearchFlags uint32

const (
	SearchNone        SearchFlags = 0
	SearchAll         SearchFlags = 1 << 1
	SearchUnlock      SearchFlags = 1 << 2
	SearchLoadSecrets SearchFlags = 1 << 3
)

// ItemCreateFlags control ItemCreate.
type ItemCreateFlags uint32

const (
	ItemCreateNone    ItemCreateFlags = 0
	ItemCreateReplace ItemCreateFlags = 1 << 1
)

// SchemaFlags control how a schema participates in matching.
type SchemaFlags uint32

const (
	SchemaNone          SchemaFlags = 0
	SchemaDontMatchName SchemaFlags = 1 << 1
)
