// Package hooks implements an in-process broadcast primitive: a Registry holds
// an ordered list of subscriber callbacks for one owner (typically one
// observable value) and Fire delivers a value to all of them.
//
// Fire works on a snapshot of the list taken when it is called, so
// subscribers that register or unregister while a fire is in progress do not
// change who receives that fire. A subscriber that panics is recovered and
// logged; delivery continues with the next subscriber.
package hooks
