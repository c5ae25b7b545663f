/*
Package action drives long-running controller operations.

Template attach, template detach, policy activation and certificate sync
are asynchronous on the controller: the request returns an action id and
the work happens in the background. The Manager submits the requests,
then watches every action in a bounded worker pool until all of them
reach a terminal state, and folds the per-device records into a single
Outcome.

Attach and detach requests are chunked: devices are sorted by system IP
and submitted in groups of ten, which keeps any one action small enough
for the controller to digest and lets the pool make progress across
templates. Feature-based and CLI device templates use different attach
endpoints, so requests are routed by template type.
*/
package action
