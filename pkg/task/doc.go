/*
Package task implements the top-level operations: backup, restore,
delete, transform, migrate and certificate handling.

Each task walks the catalog in dependency order and reports what it did
through a Tally. Tasks talk to the controller through the narrow
Controller and Actions interfaces so they can be exercised against fakes,
and to backups through the store package.

All tasks honor dry-run: the walk happens, decisions are logged with a
"would" prefix and counted, but nothing is written to the controller or
to disk.
*/
package task
