// Package lister implements the one-shot user and event listing commands.
package lister
