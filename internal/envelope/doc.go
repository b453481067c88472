// Package envelope wraps encoded destination messages into the layered
// call that routes them from the local account to the destination chain.
//
// Each relay hop is a Transform. A Pipeline applies its transforms
// innermost-first, so the default pipeline produces, from the inside out:
//
//	stargate messages          the encoded destination messages, in order
//	ProxyModuleAction          module_action on the remote account proxy
//	ManagerExecOnModule        exec_on_module on the remote account manager
//	HostDispatch               dispatch on the host-side relay
//	ClientRemoteAction         remote_action on the client-side IBC relay
//	AccountExecute             module_action_with_data on the local proxy
//
// Only the outermost layer carries funds. A pipeline that produces funds on
// any inner layer is refused.
package envelope
