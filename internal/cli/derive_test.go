package cli

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitsong/usb/internal/contentid"
)

func TestDeriveAccount(t *testing.T) {
	out, err := execute(NewDeriveCommand(&RootOptions{Format: "text"}), "account", "bitsong1alice")
	require.NoError(t, err)
	assert.Equal(t, contentid.HashAndHex("bitsong1alice"), strings.TrimSpace(out))
}

func TestDeriveMerklePath(t *testing.T) {
	out, err := execute(NewDeriveCommand(&RootOptions{Format: "json"}), "merkle", "s/home")
	require.NoError(t, err)

	var resp struct {
		Data DeriveResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "s/home", resp.Data.Input)
	assert.Equal(t, contentid.MerklePath("s/home"), resp.Data.Hash)
	assert.Empty(t, resp.Data.Parent)
}

func TestDeriveMerkleChild(t *testing.T) {
	for _, parent := range []string{"s/home", "s/home/"} {
		t.Run(parent, func(t *testing.T) {
			out, err := execute(NewDeriveCommand(&RootOptions{Format: "json"}), "merkle", parent, "notes.txt")
			require.NoError(t, err)

			var resp struct {
				Data DeriveResult `json:"data"`
			}
			require.NoError(t, json.Unmarshal([]byte(out), &resp))
			assert.Equal(t, contentid.MerklePath("s/home"), resp.Data.Parent)
			assert.Equal(t, contentid.HashAndHex("notes.txt"), resp.Data.Child)
			assert.Equal(t, contentid.MerklePath("s/home/notes.txt"), resp.Data.Hash)
		})
	}
}

func TestDeriveMerkleChildText(t *testing.T) {
	out, err := execute(NewDeriveCommand(&RootOptions{Format: "text"}), "merkle", "s/home", "notes.txt")
	require.NoError(t, err)
	assert.Contains(t, out, "hash_parent: "+contentid.MerklePath("s/home"))
	assert.Contains(t, out, "hash_child:  "+contentid.HashAndHex("notes.txt"))
}

func TestDeriveArgs(t *testing.T) {
	_, err := execute(NewDeriveCommand(&RootOptions{Format: "text"}), "account")
	require.Error(t, err)

	_, err = execute(NewDeriveCommand(&RootOptions{Format: "text"}), "merkle", "a", "b", "c")
	require.Error(t, err)
}
