/*
Package graph derives dependency order between configuration items and
rewrites cross-item references.

Items reference each other by id, and ids are UUIDs that appear nowhere
else in item bodies. That makes reference handling generic: scanning a
serialized body for UUIDs yields the outgoing reference set of any kind
without per-kind knowledge, and replacing mapped UUIDs in the serialized
form rewrites references wherever they are nested.

DeleteOrder runs Kahn's algorithm over the reference edges so every item
comes before the items it references. Ready items are consumed in name
order, which keeps the output deterministic. A reference cycle would stall
the sort; the lowest-named remaining item is forced out with an error log
so the caller still gets a total order.
*/
package graph
