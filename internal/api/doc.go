// Package api serves the unit over HTTP and WebSocket.
//
// Endpoints under /api/v1:
//
//	GET  /health                  process and unit readiness
//	GET  /unit                    snapshot of properties and registers
//	PUT  /unit/properties/{name}  set a property, {"value": 21}
//	POST /unit/refresh            request a sync cycle
//	GET  /unit/history            recent sync cycles (when history is enabled)
//	GET  /ws                      WebSocket event stream
//
// Writes return 202 Accepted: the value is stored locally and sent to the
// unit on the next cycle. Clients see the outcome as a "unit.synced" event.
//
// There is no authentication; bind the listener to a trusted network.
package api
