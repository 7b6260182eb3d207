// Package topic implements dotted event topics and wildcard matching
// for the host event bus.
package topic
