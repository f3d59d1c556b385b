// Package memory defines the domain model shared by every layer of the
// store: entries and their context types, workspace scoping, relationship
// and version records, execution-chain state, the backend key schemes, and
// the typed error kinds.
//
// # Entries and Context Types
//
// An Entry is one remembered fact with a context type (decision, error,
// requirement, and so on), an importance from 1 to 10, optional tags and
// category, and a 128-dimension embedding. NormalizeContextType maps free-form
// type strings onto the supported set, falling back to information.
//
// # Workspace Scoping
//
// Memories live either in a workspace scope or the global scope. WorkspaceID
// derives a stable identifier from a filesystem path, and Mode selects how
// reads combine the two scopes:
//
//   - ModeIsolated: workspace memories only
//   - ModeGlobal: the shared global scope only
//   - ModeHybrid: both, with global matches slightly downweighted in search
//
// KeyScheme produces every backend key for one scope; WorkspaceKeys and
// GlobalKeys are the two constructors.
//
// # Errors
//
// All failures surface as *Error values carrying a Kind. Callers branch with
// the predicate helpers (IsNotFound, IsInvalidInput, ...) or KindOf rather
// than matching message text.
package memory
