package envelope

import (
	"encoding/json"

	"github.com/bitsong/usb/internal/ir"
	"github.com/bitsong/usb/internal/wire"
)

// JSON shapes of the CosmWasm messages each hop produces. Fields are structs
// so the rendered key order is fixed. []byte values render as base64, the
// encoding CosmWasm uses for Binary.

type stargateMsg struct {
	Stargate stargateBody `json:"stargate"`
}

type stargateBody struct {
	TypeURL string `json:"type_url"`
	Value   []byte `json:"value"`
}

type moduleActionMsg struct {
	ModuleAction moduleActionBody `json:"module_action"`
}

type moduleActionBody struct {
	Msgs []stargateMsg `json:"msgs"`
}

type execOnModuleMsg struct {
	ExecOnModule execOnModuleBody `json:"exec_on_module"`
}

type execOnModuleBody struct {
	ModuleID string `json:"module_id"`
	ExecMsg  []byte `json:"exec_msg"`
}

type dispatchMsg struct {
	Dispatch dispatchBody `json:"dispatch"`
}

type dispatchBody struct {
	ManagerMsgs []json.RawMessage `json:"manager_msgs"`
}

type remoteActionMsg struct {
	RemoteAction remoteActionBody `json:"remote_action"`
}

type remoteActionBody struct {
	HostChain string          `json:"host_chain"`
	Action    json.RawMessage `json:"action"`
}

type moduleActionWithDataMsg struct {
	ModuleActionWithData moduleActionWithDataBody `json:"module_action_with_data"`
}

type moduleActionWithDataBody struct {
	Msg wasmMsg `json:"msg"`
}

type wasmMsg struct {
	Wasm wasmBody `json:"wasm"`
}

type wasmBody struct {
	Execute wasmExecute `json:"execute"`
}

type wasmExecute struct {
	ContractAddr string    `json:"contract_addr"`
	Msg          []byte    `json:"msg"`
	Funds        []ir.Coin `json:"funds"`
}

type subMsg struct {
	ID      uint64  `json:"id"`
	Msg     wasmMsg `json:"msg"`
	ReplyOn ReplyOn `json:"reply_on"`
}

func stargateMsgs(msgs []wire.EncodedMessage) []stargateMsg {
	out := make([]stargateMsg, len(msgs))
	for i, m := range msgs {
		out[i] = stargateMsg{Stargate: stargateBody{TypeURL: m.TypeURL, Value: m.Value}}
	}
	return out
}

// executeOn renders a wasm execute of msg on contract with funds.
func executeOn(contract string, msg json.RawMessage, funds []ir.Coin) wasmMsg {
	if funds == nil {
		funds = []ir.Coin{}
	}
	return wasmMsg{Wasm: wasmBody{Execute: wasmExecute{
		ContractAddr: contract,
		Msg:          []byte(msg),
		Funds:        funds,
	}}}
}
