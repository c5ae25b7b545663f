/*
Package catalog is the registry of configuration item kinds.

Every kind the engine can handle is declared as one Descriptor row in a
static table: API paths, store directory, identity field names, minimum
controller version and tag membership. Reference extraction, persistence
and push/delete logic are generic walkers over these descriptors; there is
no kind-specific code anywhere else in the engine.

Tags are the user-facing selectors. Each tag expands to a set of kinds and
tags are totally ordered by their high-level dependencies: tagOrder lists
them in delete order (dependents first), and the reverse is the push order.
At engine start the table is filtered by the target controller version, so
kinds gated behind a newer release are silently unavailable.
*/
package catalog
