package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitsong/usb/internal/ir"
)

// TestRunWithGolden_Scenarios runs every testdata scenario and compares its
// trace with testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -run TestRunWithGolden -update
func TestRunWithGolden_Scenarios(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), ".yaml")
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)
			require.Equal(t, name, scenario.Name, "golden file is named after the scenario")

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRunWithGolden_Deterministic(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/batch_with_reply.yaml")
	require.NoError(t, err)

	first, err := RunWithGolden(t, scenario)
	require.NoError(t, err)
	second, err := RunWithGolden(t, scenario)
	require.NoError(t, err)

	a, err := SnapshotJSON(scenario.Name, first)
	require.NoError(t, err)
	b, err := SnapshotJSON(scenario.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestTraceSnapshot_CanonicalShape(t *testing.T) {
	snapshot := TraceSnapshot{
		ScenarioName: "shape",
		Trace: []TraceEvent{
			{Type: EventDispatch, Seq: 1, BatchID: "b1", Sender: "s", HostChain: "jackal", TypeURLs: []string{}, ReplyToken: 0},
			{Type: EventReply, Seq: 2, BatchID: "b1", Outcome: "failure", Error: "boom"},
		},
	}

	data, err := ir.MarshalCanonical(snapshot.toCanonicalMap())
	require.NoError(t, err)
	assert.Equal(t,
		`{"scenario_name":"shape","trace":[`+
			`{"batch_id":"b1","host_chain":"jackal","reply_token":0,"sender":"s","seq":1,"type":"dispatch","type_urls":[]},`+
			`{"batch_id":"b1","error":"boom","outcome":"failure","seq":2,"type":"reply"}]}`,
		string(data))
}
