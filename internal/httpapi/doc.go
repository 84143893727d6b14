// Package httpapi exposes sessions over a small JSON API served by
// `lorekeeper serve`.
//
// Routes live under /api. Processing and escalation run in the background by
// default and answer 202; pass ?wait=true to block until the pipeline stops.
// A session can be processed by at most one request at a time. When
// api.token is configured every route except /api/health requires
// "Authorization: Bearer <token>".
package httpapi
