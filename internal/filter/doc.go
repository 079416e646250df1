// Package filter implements the Filtered Query Engine.
//
// A caller owns one or more named slots. Filter on a slot starts a request:
//
//	Idle -> Running (buffer cleared) -> Delivered | Failed | Cancelled
//
// Starting a request cancels whatever the slot was running and clears its
// buffer before anything else happens. Each request carries a generation
// number; a result is only published if the slot's generation still
// matches, checked under the slot mutex, so a superseded request can never
// overwrite a newer one.
//
// A delivered request stays live: every change-feed signal for its scope
// re-runs the query and republishes the sorted result until the request is
// cancelled or superseded. A failed query ends the request with an empty
// buffer.
package filter
