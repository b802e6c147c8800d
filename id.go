package accord

import "github.com/xraph/accord/id"

// ID is the primary identifier type for all Accord entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
