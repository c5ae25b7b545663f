/*
Package types defines the core data model shared by all Sastre engine
packages.

The central type is Item, a single configuration artifact identified by
(Kind, Name). Controller-assigned IDs are globally unique on one controller
but not portable across controllers, so logical identity across source and
target is always the (kind, filename-safe name) pair.

Index holds the per-kind summaries persisted by the controller list
endpoints; one index per kind plus every item body make up a backup.

Attachment records device-to-template bindings together with the variable
values used on attach; it is the input for the async attach actions issued
during restore.

The package also carries the engine error kinds. They are sentinel errors
meant to be wrapped with fmt.Errorf("...: %w", ...) and tested with
errors.Is; IsFatal separates task-aborting kinds from item-local ones.
*/
package types
