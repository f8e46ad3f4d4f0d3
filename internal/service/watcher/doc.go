// Package watcher polls the user directory and reports who joined or left.
//
// A failed poll is logged and skipped: the previous snapshot stays in place
// so an outage is not mistaken for everybody disconnecting. The outage itself
// is logged once when the directory goes offline and once when it is back.
// Repository events can be polled along with the users.
package watcher
