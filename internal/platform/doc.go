// Package platform validates and canonicalizes incoming video URLs.
//
// A Normalizer checks the URL host against a configured allowlist,
// expands short links by following their redirect, strips tracking
// parameters, and extracts the numeric video identifier where the URL
// shape carries one. Everything downstream works from the resulting
// Link, never from the raw request string.
package platform
