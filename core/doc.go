// Package core holds the shared contracts, configuration and error taxonomy
// for the outbound API client and the inbound Events API handler. Adapter
// packages depend on core; core depends on none of them.
package core
