/*
Package wordpress drives plugin and core updates on managed sites
through the companion plugin's REST endpoints under /wp-json/custom/v1.

The status endpoint has shipped two incompatible shapes over time.
Coerce folds either shape, JSON strings, and the wrapped envelopes that
task plumbing produces into one StatusView; everything downstream works
only against the view.

Plugin updates run through a fallback ladder: a batch form POST, a
batch JSON POST, then per-plugin form and JSON POSTs for anything still
unverified. After every POST the driver waits a settle interval and
re-reads status; a plugin counts as updated when its installed version
changed or equals its latest.
*/
package wordpress
