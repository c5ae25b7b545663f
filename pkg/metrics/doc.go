/*
Package metrics defines Prometheus instrumentation for the Sastre engine.

Collectors are registered on the default registry at init. The REST client
feeds the request/retry series, tasks feed the item series, and the async
action engine feeds the action series. Long-lived callers (for instance a
scheduler embedding the engine) can expose them with promhttp; the CLI
simply leaves them unexported.
*/
package metrics
