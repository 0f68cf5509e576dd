// Package watch reloads file-registered modules when their sources change.
package watch
