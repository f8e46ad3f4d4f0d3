// Package directory contains the core types of the user directory.
//
// It defines Result (what one fetch observed), Change (who joined or left
// between two fetches), Event (a repository event from the server log) and
// the error kinds a fetch can end with.
package directory
