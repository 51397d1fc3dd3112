// Package registry tracks live connection identifiers per role.
//
// All state lives in the table store; the registry only adds the
// registration invariant (duplicate ids rejected via conditional write) and
// expiry filtering on reads.
package registry
