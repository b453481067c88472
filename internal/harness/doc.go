// Package harness runs relay scenarios against a real engine.
//
// A scenario drives command batches and collaborator calls through the
// batch executor, the engine loop, an in-process loopback relay and the
// adapter, then checks the relay log and the final store state.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	sender: bitsong1alice
//	relay: loopback            # or fail
//	admin: bitsong1admin
//	namespace_owner: bitsong1owner
//	setup:
//	  - action: instantiate
//	    count: 0
//	flow:
//	  - action: send
//	    with_reply: true
//	    commands:
//	      - post_key: {key: "pubkey"}
//	    expect:
//	      outcome: success
//	  - action: increment
//	    expect:
//	      error_code: UNAUTHORIZED
//	assertions:
//	  - type: trace_contains
//	    type_url: /canine_chain.storage.MsgPostKey
//	  - type: final_state
//	    table: count
//	    where: { id: 1 }
//	    expect: { value: 0 }
//
// # Assertion Types
//
//   - trace_contains: some dispatch or reply matches every given filter
//   - trace_order: inner message type URLs first appear in the given order
//   - trace_count: exactly N events, or N inner messages of a type URL
//   - final_state: queries a store table and verifies expected values
//
// # Deterministic Testing
//
// Every scenario runs in its own in-memory SQLite database with batch IDs
// batch-0001, batch-0002, ... and a logical clock starting at zero. Each
// step waits for the reply to its dispatch before the next step starts, so
// the same scenario always produces the same trace. Traces are compared to
// golden files under testdata/golden.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/relay_failure.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(ctx, scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
