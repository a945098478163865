package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/quintal-io/agentdag/types"
)

// Chains of any length and any failure position must execute agents
// strictly in order, stop at the first failure, and return exactly the
// results of the stages that ran.
func TestProperty_ChainOrderAndCutoff(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("chain executes in order and stops at the first failure", prop.ForAll(
		func(length int, failAt int) bool {
			var mu sync.Mutex
			var executed []string

			agents := newStubManager()
			for i := 0; i < length; i++ {
				id := fmt.Sprintf("agent_%d", i)
				shouldFail := i == failAt
				agents.agents[id] = &stubAgent{id: id, fn: func(ctx context.Context, task *types.Task) (map[string]any, error) {
					mu.Lock()
					executed = append(executed, id)
					mu.Unlock()
					if shouldFail {
						return nil, errors.New("forced failure")
					}
					return map[string]any{"from": id}, nil
				}}
			}

			ids := make([]string, length)
			for i := range ids {
				ids[i] = fmt.Sprintf("agent_%d", i)
			}

			o := newTestOrchestrator(agents)
			results, err := o.ChainTasks(context.Background(), ids, "t", nil, nil)

			failing := failAt >= 0 && failAt < length
			if failing != (err != nil) {
				t.Logf("length=%d failAt=%d: err=%v", length, failAt, err)
				return false
			}

			wantRan := length
			if failing {
				wantRan = failAt + 1
			}
			if len(executed) != wantRan {
				t.Logf("length=%d failAt=%d: executed %d stages", length, failAt, len(executed))
				return false
			}
			for i, id := range executed {
				if id != ids[i] {
					t.Logf("stage %d ran %s, want %s", i, id, ids[i])
					return false
				}
			}

			wantResults := wantRan
			if failing {
				wantResults = failAt
			}
			if len(results) != wantResults {
				t.Logf("got %d results, want %d", len(results), wantResults)
				return false
			}
			for i, r := range results {
				if r["from"] != ids[i] {
					t.Logf("result %d came from %v", i, r["from"])
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 8),
		gen.IntRange(-1, 10),
	))

	properties.TestingRun(t)
}

// Peer-to-peer rounds must return exactly one result per registered
// peer, keyed by agent id, regardless of which peers fail.
func TestProperty_PeerResultsKeyedPerAgent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("one keyed result per peer", prop.ForAll(
		func(peerCount int, failMask int) bool {
			agents := newStubManager()
			ids := make([]string, peerCount)
			for i := 0; i < peerCount; i++ {
				id := fmt.Sprintf("peer_%d", i)
				ids[i] = id
				shouldFail := failMask&(1<<i) != 0
				agents.agents[id] = &stubAgent{id: id, fn: func(ctx context.Context, task *types.Task) (map[string]any, error) {
					if shouldFail {
						return nil, errors.New("peer failure")
					}
					return map[string]any{"peer": id}, nil
				}}
			}

			o := newTestOrchestrator(agents)
			out, err := o.CoordinatePeerToPeer(context.Background(), ids, TaskSpec{Type: "t"}, nil)
			if err != nil {
				t.Logf("coordinate: %v", err)
				return false
			}

			results := out.(map[string]PeerResult)
			if len(results) != peerCount {
				t.Logf("got %d results for %d peers", len(results), peerCount)
				return false
			}
			for i, id := range ids {
				pr, ok := results[id]
				if !ok || pr.AgentID != id {
					t.Logf("missing or mislabelled result for %s", id)
					return false
				}
				wantErr := failMask&(1<<i) != 0
				if wantErr != (pr.Err != nil) {
					t.Logf("peer %s: err=%v want failure=%v", id, pr.Err, wantErr)
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 8),
		gen.IntRange(0, 255),
	))

	properties.TestingRun(t)
}
