// Package source fetches a project's deployable content from a GitHub
// repository: a depth-1 clone, optionally pinned to a branch, optionally
// authenticated via a GitHub App installation access token when the
// repository is private.
//
// The clone strategy is two-stage: an unauthenticated attempt first, then
// (only on failure) a GitHub App JWT is exchanged for an installation
// access token and the clone is retried with that token as
// x-access-token basic-auth credentials.
package source
