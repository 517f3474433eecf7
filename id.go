package conveyor

import "github.com/conveyordev/conveyor/id"

// ID is the primary identifier type for all Conveyor entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
