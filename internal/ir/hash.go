package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainDispatch = "usb/dispatch/v1"
	DomainReply    = "usb/reply/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// DispatchID computes the content-addressed ID for an outer relay call.
// The rendered call is hashed as a hex digest so the canonical form stays
// small regardless of payload size.
func DispatchID(batchID, sender, hostChain string, typeURLs []string, call []byte, seq int64) (string, error) {
	urls := make([]any, len(typeURLs))
	for i, u := range typeURLs {
		urls[i] = u
	}
	callSum := sha256.Sum256(call)

	obj := map[string]any{
		"batch_id":   batchID,
		"sender":     sender,
		"host_chain": hostChain,
		"type_urls":  urls,
		"call":       hex.EncodeToString(callSum[:]),
		"seq":        seq,
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("DispatchID: failed to marshal: %w", err)
	}

	return hashWithDomain(DomainDispatch, canonical), nil
}

// ReplyID computes the content-addressed ID for a completion notification.
// Links to the dispatch it completes via dispatchID.
func ReplyID(dispatchID string, token uint64, outcome string, seq int64) (string, error) {
	obj := map[string]any{
		"dispatch_id": dispatchID,
		"token":       int64(token),
		"outcome":     outcome,
		"seq":         seq,
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("ReplyID: failed to marshal: %w", err)
	}

	return hashWithDomain(DomainReply, canonical), nil
}

// MustDispatchID is like DispatchID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustDispatchID(batchID, sender, hostChain string, typeURLs []string, call []byte, seq int64) string {
	id, err := DispatchID(batchID, sender, hostChain, typeURLs, call, seq)
	if err != nil {
		panic(err)
	}
	return id
}

// MustReplyID is like ReplyID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustReplyID(dispatchID string, token uint64, outcome string, seq int64) string {
	id, err := ReplyID(dispatchID, token, outcome, seq)
	if err != nil {
		panic(err)
	}
	return id
}
