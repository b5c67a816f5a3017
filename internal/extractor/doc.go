// Package extractor resolves a validated video link into a direct
// media URL plus whatever page metadata is recoverable.
//
// Several independent strategies exist because no single endpoint is
// reliable: the mobile page, the item-detail JSON API, the embed
// player, and a third-party mirror site. A Chain runs them in
// configured order and the first success wins. All outbound traffic
// goes through a shared Client that rotates browser identities, paces
// requests per host, and walks the proxy ring before connecting
// directly.
package extractor
