/*
Package store persists configuration items to local backup directories.

A backup is a plain directory tree: one JSON file per item, grouped in the
per-kind directories declared by the catalog, plus server_info.json at the
root recording where the backup came from. Files are written atomically
(temp file then rename) with sorted keys and two-space indentation so
backups diff cleanly under version control.

Item files are named after the item with unsafe characters replaced. When
two items of a kind map to the same safe name, every file of that kind
falls back to the extended form <safe name>_<id>.

Open accepts either a backup directory or a zip archive of one; zip
backups are read only. Creating a directory backup takes an exclusive
advisory lock so two runs cannot interleave writes, and an existing
directory is rolled over to a numbered sibling before a new backup
replaces it.
*/
package store
