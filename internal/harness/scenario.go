package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/bitsong/usb/internal/ir"
)

// Scenario defines a relay scenario.
// Scenarios drive command batches and collaborator calls through a fresh
// engine and assert on the resulting relay log and final state.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Sender is the default caller for every step that does not set one.
	Sender string `yaml:"sender,omitempty"`

	// Admin may increment and reset the counter.
	Admin string `yaml:"admin,omitempty"`

	// NamespaceOwner owns the usb namespace and may update the config.
	NamespaceOwner string `yaml:"namespace_owner,omitempty"`

	// Accounts maps caller addresses to account IDs. Unmapped addresses
	// are their own account ID.
	Accounts map[string]string `yaml:"accounts,omitempty"`

	// Relay selects the transport: "loopback" (default) completes every
	// dispatch, "fail" rejects every send.
	Relay string `yaml:"relay,omitempty"`

	// HostChain overrides the default destination chain.
	HostChain string `yaml:"host_chain,omitempty"`

	// Setup steps run before the flow and must succeed.
	Setup []Step `yaml:"setup,omitempty"`

	// Flow steps run in order; each may carry an expect clause.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final trace and state.
	// Supported types: trace_contains, trace_order, trace_count, final_state
	Assertions []Assertion `yaml:"assertions"`
}

// Step actions.
const (
	ActionSend         = "send"
	ActionInstantiate  = "instantiate"
	ActionSetStatus    = "set_status"
	ActionUpdateConfig = "update_config"
	ActionIncrement    = "increment"
	ActionReset        = "reset"
)

// Relay modes.
const (
	RelayLoopback = "loopback"
	RelayFail     = "fail"
)

// Step is one call made by the scenario.
type Step struct {
	// Action is one of send, instantiate, set_status, update_config,
	// increment or reset.
	Action string `yaml:"action"`

	// Sender overrides Scenario.Sender for this step.
	Sender string `yaml:"sender,omitempty"`

	// Commands is the batch for send, in the externally tagged form
	// ({post_key: {key: ...}}). An absent list sends an empty batch.
	Commands []map[string]any `yaml:"commands,omitempty"`

	// Funds are attached to the outer call of a send.
	Funds []ir.Coin `yaml:"funds,omitempty"`

	// WithReply requests a completion notification for a send.
	WithReply bool `yaml:"with_reply,omitempty"`

	// Status is the value written by set_status.
	Status string `yaml:"status,omitempty"`

	// Count is the initial count for instantiate and the new count for reset.
	Count int32 `yaml:"count,omitempty"`

	// Config holds the entries for instantiate and update_config.
	Config map[string]string `yaml:"config,omitempty"`

	// Expect validates the step. Without it the step must succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected result of a step.
type ExpectClause struct {
	// Outcome is the expected reply outcome ("success" or "failure").
	Outcome string `yaml:"outcome,omitempty"`

	// ErrorCode is the expected synchronous error code, for example
	// UNSUPPORTED_OPERATION or UNAUTHORIZED. The step must fail with it.
	ErrorCode string `yaml:"error_code,omitempty"`

	// Count is the expected count returned by increment.
	Count *int32 `yaml:"count,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": some event matches every given filter
	// - "trace_order": type URLs first appear in the given order
	// - "trace_count": exactly Count events or messages match
	// - "final_state": query a table and verify expected values
	Type string `yaml:"type"`

	// Event filters by event type ("dispatch" or "reply").
	Event string `yaml:"event,omitempty"`

	// TypeURL filters dispatches carrying this inner message type.
	TypeURL string `yaml:"type_url,omitempty"`

	// ReplyAction filters replies by token action (dispatch_reply, ...).
	ReplyAction string `yaml:"reply_action,omitempty"`

	// Outcome filters replies by outcome.
	Outcome string `yaml:"outcome,omitempty"`

	// Count is the expected number of matches (used by trace_count).
	Count int `yaml:"count,omitempty"`

	// TypeURLs is the expected message order (used by trace_order).
	TypeURLs []string `yaml:"type_urls,omitempty"`

	// Table is the state table name (used by final_state).
	Table string `yaml:"table,omitempty"`

	// Where specifies query filters (used by final_state).
	// All fields must match exactly.
	Where map[string]any `yaml:"where,omitempty"`

	// Expect contains expected field values (used by final_state).
	// Subset match - only specified fields are validated.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	switch s.Relay {
	case "", RelayLoopback, RelayFail:
	default:
		return fmt.Errorf("unknown relay %q (want %s or %s)", s.Relay, RelayLoopback, RelayFail)
	}

	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Setup {
		if err := validateStep(s, step); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
		if step.Expect != nil {
			return fmt.Errorf("setup[%d]: expect is not allowed in setup", i)
		}
	}

	for i, step := range s.Flow {
		if err := validateStep(s, step); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateStep checks the fields a step's action needs.
func validateStep(s *Scenario, step Step) error {
	caller := step.Sender
	if caller == "" {
		caller = s.Sender
	}

	switch step.Action {
	case "":
		return fmt.Errorf("action is required")
	case ActionInstantiate:
	case ActionSend, ActionSetStatus, ActionUpdateConfig, ActionIncrement, ActionReset:
		if caller == "" {
			return fmt.Errorf("%s needs a sender (step or scenario)", step.Action)
		}
	default:
		return fmt.Errorf("unknown action %q", step.Action)
	}

	if step.Expect == nil {
		return nil
	}
	switch step.Expect.Outcome {
	case "", ir.OutcomeSuccess, ir.OutcomeFailure:
	default:
		return fmt.Errorf("expect: unknown outcome %q", step.Expect.Outcome)
	}
	if step.Expect.Outcome != "" && step.Expect.ErrorCode != "" {
		return fmt.Errorf("expect: outcome and error_code are exclusive")
	}
	if step.Expect.Outcome != "" && step.Action != ActionSend && step.Action != ActionInstantiate {
		return fmt.Errorf("expect: outcome applies to send and instantiate only")
	}
	if step.Expect.Count != nil && step.Action != ActionIncrement {
		return fmt.Errorf("expect: count applies to increment only")
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Event {
	case "", EventDispatch, EventReply:
	default:
		return fmt.Errorf("assertions[%d]: unknown event %q", index, a.Event)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Event == "" && a.TypeURL == "" && a.ReplyAction == "" && a.Outcome == "" {
			return fmt.Errorf("assertions[%d]: trace_contains needs at least one filter", index)
		}
	case AssertTraceOrder:
		if len(a.TypeURLs) == 0 {
			return fmt.Errorf("assertions[%d]: type_urls list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Event == "" && a.TypeURL == "" {
			return fmt.Errorf("assertions[%d]: event or type_url is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
