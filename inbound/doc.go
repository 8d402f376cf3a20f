// Package inbound routes verified events to application handlers by event
// type.
package inbound
