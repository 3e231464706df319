// Package upstream is the NerdGraph (New Relic GraphQL) client.
//
// Client.Query POSTs one literal GraphQL document to the configured endpoint
// with the API-Key header and returns the decoded Response. A Response is
// returned even when its Errors slice is non-empty: NerdGraph reports query
// failures inside a 200 body, and deciding what they mean is the caller's job.
//
// Anything that prevents a decodable body from arriving (dial failure,
// timeout, non-2xx status with a non-JSON body) is reported as ErrTransport.
// There are no retries and nothing is cached between calls.
package upstream
