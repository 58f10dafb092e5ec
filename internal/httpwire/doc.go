// Package httpwire holds the HTTP framing shared by the network transports:
// the event-stream writer, the JSON-RPC error envelope and the media type
// checks applied to inbound requests.
package httpwire
