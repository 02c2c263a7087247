package reliability

import "github.com/EfeDurmaz16/aspendos-reliability/id"

// ID is the primary identifier type for all reliability entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
