package checkpoint

import "github.com/hupe1980/stategraph/core"

// Interface compliance (compile-time assertions)
var (
	_ core.Checkpointer = (*InMemoryStore)(nil)
	_ core.Checkpointer = (*FileStore)(nil)
)
