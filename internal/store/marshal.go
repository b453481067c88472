package store

import (
	"encoding/json"
	"fmt"

	"github.com/bitsong/usb/internal/ir"
)

// marshalTypeURLs serializes type URLs to canonical JSON.
// A nil slice is stored as [] so the column is never NULL.
func marshalTypeURLs(urls []string) (string, error) {
	if urls == nil {
		urls = []string{}
	}
	b, err := ir.MarshalCanonical(urls)
	if err != nil {
		return "", fmt.Errorf("marshal type urls: %w", err)
	}
	return string(b), nil
}

func unmarshalTypeURLs(data string) ([]string, error) {
	var urls []string
	if err := json.Unmarshal([]byte(data), &urls); err != nil {
		return nil, fmt.Errorf("unmarshal type urls: %w", err)
	}
	return urls, nil
}

// marshalFunds serializes coins to canonical JSON, preserving order.
func marshalFunds(funds []ir.Coin) (string, error) {
	arr := make([]any, len(funds))
	for i, c := range funds {
		arr[i] = map[string]any{"denom": c.Denom, "amount": c.Amount}
	}
	b, err := ir.MarshalCanonical(arr)
	if err != nil {
		return "", fmt.Errorf("marshal funds: %w", err)
	}
	return string(b), nil
}

func unmarshalFunds(data string) ([]ir.Coin, error) {
	var funds []ir.Coin
	if err := json.Unmarshal([]byte(data), &funds); err != nil {
		return nil, fmt.Errorf("unmarshal funds: %w", err)
	}
	return funds, nil
}
