package videogen

import "github.com/keerthanap8898/TextToVideoAPI/id"

// ID is the primary identifier type for all videogen entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
