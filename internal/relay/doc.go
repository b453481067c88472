// Package relay turns a batch of Jackal commands into one outer relay call.
//
// Execute encodes every command in order, wraps the encoded messages in the
// dispatch envelope, reserves the dispatch reply token when a reply is
// requested and hands the stamped dispatch to the engine. Nothing is
// dispatched when any command fails to encode.
package relay
