// Package profile holds the fixed table of storage-condition profiles.
//
// A profile is the safe envelope for one class of material: the allowed
// temperature band with its optimum, and the allowed relative humidity
// band. The table is built once at package init and never changes, so
// it is safe for concurrent reads without locking.
package profile
