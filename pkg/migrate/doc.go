/*
Package migrate rewrites pre-20.1 backups for 20.1 controllers.

The 20.1 release renamed the cEdge feature template types and retired a
few body fields, so templates taken from an 18.4 or 19.2 controller do
not push to a 20.1 target as-is. The changes are mechanical, which is why
they live in a declarative recipe rather than in code: a recipe is a list
of rules, each matching template body fields by regex and then setting,
removing or renaming fields.

The default recipe ships embedded in the binary; an alternate recipe file
can be supplied for controller releases this package does not know about.
*/
package migrate
