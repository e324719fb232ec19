package cli

// Backends linked into the bridge binary. A backend missing from this list
// (or excluded by build constraints) is reported as skipped.
import (
	_ "github.com/RM-RAMASAMY/GreenLoop/internal/vectorstore/qdrant"
	_ "github.com/RM-RAMASAMY/GreenLoop/internal/vectorstore/sqlite"
)
