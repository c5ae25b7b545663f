/*
Package rest implements the lower level controller REST API client.

A Client holds one authenticated session to one controller: the login form
post, the session cookie, the CSRF token replayed on mutating requests and,
in multi-tenant deployments, the tenant session header. All paths are
relative to the controller's dataservice root.

# Retry policy

Requests answered with 429 back off exponentially with jitter (capped at
60s, at most 5 attempts) before failing with ErrRateLimited. Transient
transport errors retry up to 3 times with linear backoff. Authorization
failures (401/403) surface immediately as ErrAuth. Cancellation is observed
before every request and between backoff sleeps.

# Long-running actions

Controller operations such as template attach or policy activate return an
action id; PollAction watches the action status endpoint until every
sub-task lands in a terminal state or the overall timeout expires.

TLS server certificate verification is off by default: controllers
routinely ship self-signed certificates. Set Config.VerifyTLS to opt in.
*/
package rest
