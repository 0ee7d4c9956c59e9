// Package relay defines the platform-neutral contracts of the forwarding
// pipeline: message references and permalinks, fetched messages with their
// formatting entities, outbound delivery errors, and the messaging client and
// session store capabilities implemented by driver packages.
//
// Offsets and lengths of formatting entities are measured in UTF-16 code
// units, matching the unit Telegram uses on the wire.
package relay
