// Package domain models the heat-advisory alert pipeline for registered
// maternal-health recipients.
//
// # Pipeline Shape
//
// Recipient profiles live in a durable store keyed by contact ID. Once a day
// the resolver scans the store, collapses recipients into unique geographic
// lookup points, and publishes one location message per point. Downstream
// stages consume and re-publish over durable topics:
//
//	recipients ──scan── resolver ──► alert-locations
//	alert-locations ──► evaluator ──► alert-weather-results
//	alert-weather-results ──► composer ──► alert-notify
//	alert-notify ──► notifier ──► SMS gateway
//
// Every topic is at-least-once; stages are stateless per message, so a
// redelivered message produces at most a duplicate downstream message.
// A duplicate SMS is the accepted cost of redelivery, never a correctness
// violation.
//
// # Location Deduplication
//
// Coordinates are rounded to three decimal places (about 111 m) to form a
// [LocationKey]. One forecast lookup is made per key per run. The first
// recipient encountered for a key becomes the carrier of the location
// message; co-located recipients beyond the first are dropped from that
// day's alerting.
//
// # One Alert Per Day
//
// A recipient whose last_alert_date equals the run's calendar date is
// skipped during the scan. The specified pipeline reads the stamp but does
// not write it back; the write-back hook on the notifier is the explicit
// extension point for closing that loop.
//
// # Normalization Conventions
//
// Language codes are lowercased and trimmed; anything starting with "sw"
// (or the literal "swahili") routes advisory generation to Swahili,
// everything else to English. Maternal status accepts the upstream
// "ANC"/"PNC" codes and normalizes to antenatal/postnatal/unknown.
// Coordinates of exactly (0, 0) are the sentinel for "no location on file".
package domain
