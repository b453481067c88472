package envelope

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitsong/usb/internal/ir"
	"github.com/bitsong/usb/internal/wire"
)

var testConfig = Config{
	AccountProxy: "bitsong1proxy",
	IBCClient:    "bitsong1ibcclient",
}

var twoMessages = []wire.EncodedMessage{
	{TypeURL: "/canine_chain.storage.MsgSignContract", Value: []byte{0x0a, 0x01, 0x61, 0x12, 0x01, 0x63}},
	{TypeURL: "/canine_chain.storage.MsgPostKey", Value: []byte{0x0a, 0x01, 0x61, 0x12, 0x01, 0x6b}},
}

func TestBuild_Golden(t *testing.T) {
	call, err := NewBuilder(testConfig).Build(twoMessages, Options{
		Funds:      []ir.Coin{{Denom: "ubtsg", Amount: "100"}},
		ReplyToken: 2,
	})
	require.NoError(t, err)

	rendered, err := call.Render()
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "two_message_call", append(rendered, '\n'))
}

func TestBuild_LayerOrder(t *testing.T) {
	call, err := NewBuilder(testConfig).Build(twoMessages, Options{})
	require.NoError(t, err)

	var hops []Hop
	for _, l := range call.Envelope.Layers() {
		hops = append(hops, l.Hop)
	}
	assert.Equal(t, []Hop{
		HopAccountExec,
		HopClientRemote,
		HopHostDispatch,
		HopManager,
		HopProxyModule,
		HopStargate,
	}, hops)
	assert.Equal(t, 6, call.Envelope.Depth())

	layers := call.Envelope.Layers()
	assert.Equal(t, "bitsong1proxy", layers[0].Target)
	assert.Equal(t, "bitsong1ibcclient", layers[1].Target)
	assert.Equal(t, DefaultHostChain, layers[2].Target)
	assert.Equal(t, DefaultProxyModuleID, layers[4].Target)
}

func TestBuild_PreservesMessageOrder(t *testing.T) {
	msgs := []wire.EncodedMessage{
		{TypeURL: "/a", Value: []byte{1}},
		{TypeURL: "/b", Value: []byte{2}},
		{TypeURL: "/c", Value: []byte{3}},
	}
	call, err := NewBuilder(testConfig).Build(msgs, Options{})
	require.NoError(t, err)

	assert.Equal(t, msgs, call.Envelope.InnerMessages())
	assert.Equal(t, []string{"/a", "/b", "/c"}, call.TypeURLs())

	var action struct {
		ModuleAction struct {
			Msgs []struct {
				Stargate struct {
					TypeURL string `json:"type_url"`
					Value   []byte `json:"value"`
				} `json:"stargate"`
			} `json:"msgs"`
		} `json:"module_action"`
	}
	proxy := call.Envelope.Layers()[4]
	require.NoError(t, json.Unmarshal(proxy.Msg, &action))
	require.Len(t, action.ModuleAction.Msgs, 3)
	for i, m := range action.ModuleAction.Msgs {
		assert.Equal(t, msgs[i].TypeURL, m.Stargate.TypeURL)
		assert.Equal(t, msgs[i].Value, m.Stargate.Value)
	}
}

func TestBuild_FundsOnOutermostOnly(t *testing.T) {
	funds := []ir.Coin{{Denom: "ubtsg", Amount: "5"}, {Denom: "ujkl", Amount: "7"}}
	call, err := NewBuilder(testConfig).Build(twoMessages, Options{Funds: funds})
	require.NoError(t, err)

	layers := call.Envelope.Layers()
	assert.Equal(t, funds, layers[0].Funds)
	assert.Equal(t, funds, call.Funds())
	for _, l := range layers[1:] {
		assert.Empty(t, l.Funds, "layer %s", l.Hop)
	}

	// The client call inside the account layer renders with no funds.
	var outer struct {
		ModuleActionWithData struct {
			Msg wasmMsg `json:"msg"`
		} `json:"module_action_with_data"`
	}
	require.NoError(t, json.Unmarshal(layers[0].Msg, &outer))
	assert.Equal(t, []ir.Coin{}, outer.ModuleActionWithData.Msg.Wasm.Execute.Funds)
}

func TestBuild_ReplySettings(t *testing.T) {
	b := NewBuilder(testConfig)

	call, err := b.Build(twoMessages, Options{ReplyToken: 2})
	require.NoError(t, err)
	assert.Equal(t, ReplySuccess, call.ReplyOn)

	call, err = b.Build(twoMessages, Options{})
	require.NoError(t, err)
	assert.Equal(t, ReplyNever, call.ReplyOn)

	rendered, err := call.Render()
	require.NoError(t, err)
	var sub struct {
		ID      uint64 `json:"id"`
		ReplyOn string `json:"reply_on"`
	}
	require.NoError(t, json.Unmarshal(rendered, &sub))
	assert.Equal(t, uint64(0), sub.ID)
	assert.Equal(t, "never", sub.ReplyOn)
}

func TestBuild_HostChainOverride(t *testing.T) {
	call, err := NewBuilder(testConfig).Build(twoMessages, Options{HostChain: "jackal-testnet"})
	require.NoError(t, err)
	assert.Equal(t, "jackal-testnet", call.HostChain)

	var remote struct {
		RemoteAction struct {
			HostChain string `json:"host_chain"`
		} `json:"remote_action"`
	}
	require.NoError(t, json.Unmarshal(call.Envelope.Layers()[1].Msg, &remote))
	assert.Equal(t, "jackal-testnet", remote.RemoteAction.HostChain)
}

func TestBuild_ExecMsgIsBase64Json(t *testing.T) {
	call, err := NewBuilder(testConfig).Build(twoMessages, Options{})
	require.NoError(t, err)
	layers := call.Envelope.Layers()

	var exec struct {
		ExecOnModule struct {
			ModuleID string `json:"module_id"`
			ExecMsg  string `json:"exec_msg"`
		} `json:"exec_on_module"`
	}
	require.NoError(t, json.Unmarshal(layers[3].Msg, &exec))
	assert.Equal(t, DefaultProxyModuleID, exec.ExecOnModule.ModuleID)

	decoded, err := base64.StdEncoding.DecodeString(exec.ExecOnModule.ExecMsg)
	require.NoError(t, err)
	assert.JSONEq(t, string(layers[4].Msg), string(decoded))
}

func TestBuild_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		opts Options
		want string
	}{
		{"missing proxy", Config{IBCClient: "c"}, Options{}, "account proxy"},
		{"missing client", Config{AccountProxy: "p"}, Options{}, "ibc client"},
		{"empty denom", testConfig, Options{Funds: []ir.Coin{{Amount: "1"}}}, "denom is required"},
		{"bad amount", testConfig, Options{Funds: []ir.Coin{{Denom: "u", Amount: "-1"}}}, "not a non-negative integer"},
		{"duplicate denom", testConfig, Options{Funds: []ir.Coin{{Denom: "u", Amount: "1"}, {Denom: "u", Amount: "2"}}}, "listed twice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBuilder(tt.cfg).Build(twoMessages, tt.opts)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestBuild_Pure(t *testing.T) {
	b := NewBuilder(testConfig)
	opts := Options{Funds: []ir.Coin{{Denom: "ubtsg", Amount: "1"}}, ReplyToken: 2}

	a, err := b.Build(twoMessages, opts)
	require.NoError(t, err)
	c, err := b.Build(twoMessages, opts)
	require.NoError(t, err)

	ra, err := a.Render()
	require.NoError(t, err)
	rc, err := c.Render()
	require.NoError(t, err)
	assert.Equal(t, ra, rc)
}
