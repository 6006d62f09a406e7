// Package services defines the [Catalog] interface for the target manga catalog and implements it for AniList.
//
// # AniList Implementation
//
// [AniListService] POSTs GraphQL operations to the AniList endpoint. The two operations it sends,
// SearchManga and FetchMangaByIDs, are parsed with gqlparser at package init so a malformed
// document fails fast instead of at the first request. A configured access token is attached
// through an [oauth2] static token source; tokens are never acquired here.
//
// # Error Handling
//
// Every failure is an [APIError] wrapping a sentinel from the shared package:
//   - [shared.ErrAuthFailed] : 401/403, stops a batch
//   - [shared.ErrRateLimited] : 429, stops a batch; RetryAfter carries the server hint
//   - [shared.ErrServiceUnavailable] : 5xx, retried
//   - [shared.ErrAPIRequest] : transport failure (retried) or another 4xx
//   - [shared.ErrMalformedResponse] : undecodable body or a missing Page, retried then discarded
//
// Context cancellation is returned as the context's own error.
package services
