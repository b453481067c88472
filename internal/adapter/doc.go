// Package adapter holds the state collaborators around the relay: per-account
// status, the namespace-owner gated configuration, and the admin-gated
// counter that is set up on instantiate.
//
// Reads distinguish "not set" (found == false) from "set to the empty
// value". Ownership and account lookups go through OwnershipResolver, which
// stands in for the external account registry.
package adapter
