package grading

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mockmate/mockmate/internal/domain"
	"github.com/mockmate/mockmate/internal/oracle"
	"github.com/mockmate/mockmate/internal/runstore"
)

// scriptedOracle returns canned responses per call, in order. Once the
// script is exhausted it keeps returning the last entry.
type scriptedOracle struct {
	mu      sync.Mutex
	calls   int32
	script  []scriptStep
	blockCh chan struct{} // when set, calls block until closed
}

type scriptStep struct {
	payload json.RawMessage
	err     error
}

func (o *scriptedOracle) Grade(
	_ context.Context, _, _ string, _ domain.BackgroundMaterials,
) (json.RawMessage, error) {
	if o.blockCh != nil {
		<-o.blockCh
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	n := atomic.AddInt32(&o.calls, 1)
	idx := int(n) - 1
	if idx >= len(o.script) {
		idx = len(o.script) - 1
	}
	step := o.script[idx]
	return step.payload, step.err
}

func (o *scriptedOracle) callCount() int32 { return atomic.LoadInt32(&o.calls) }

func validPayload(question, response string, grade string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(
		`{"question":%q,"response":%q,"grade":%q,"summary":"ok","pros":["p"],"cons":["c"]}`,
		question, response, grade))
}

func testTask(runID string, index int) domain.GradingTask {
	return domain.GradingTask{
		RunID:         runID,
		QuestionIndex: index,
		Question:      fmt.Sprintf("question %d", index),
		Response:      fmt.Sprintf("response %d", index),
		Status:        domain.TaskStatusPending,
	}
}

func fastConfig() Config {
	return Config{MaxAttempts: 3, BackoffStep: time.Millisecond}
}

func TestCoordinator_GradeOne(t *testing.T) {
	ctx := context.Background()

	t.Run("succeeds on first attempt", func(t *testing.T) {
		task := testTask("run-1", 0)
		o := &scriptedOracle{script: []scriptStep{
			{payload: validPayload(task.Question, task.Response, "A")},
		}}
		runs := runstore.New()
		c := NewCoordinator(o, runs, fastConfig())

		v := c.GradeOne(ctx, task)
		require.NotNil(t, v)
		assert.Equal(t, domain.GradeA, v.Grade)
		assert.False(t, v.Fallback)
		assert.EqualValues(t, 1, o.callCount())

		stored, ok := runs.Verdict("run-1", 0)
		require.True(t, ok, "terminal verdict must land in the run store")
		assert.Equal(t, *v, stored)
	})

	t.Run("lowercase grade is normalized, not treated as malformed", func(t *testing.T) {
		task := testTask("run-1", 0)
		o := &scriptedOracle{script: []scriptStep{
			{payload: validPayload(task.Question, task.Response, "b")},
		}}
		c := NewCoordinator(o, runstore.New(), fastConfig())

		v := c.GradeOne(ctx, task)
		assert.Equal(t, domain.GradeB, v.Grade)
		assert.EqualValues(t, 1, o.callCount())
	})

	t.Run("transport failures retried up to the budget", func(t *testing.T) {
		task := testTask("run-1", 1)
		o := &scriptedOracle{script: []scriptStep{
			{err: oracle.ErrGradingUnavailable},
			{err: oracle.ErrGradingUnavailable},
			{payload: validPayload(task.Question, task.Response, "B")},
		}}
		c := NewCoordinator(o, runstore.New(), fastConfig())

		v := c.GradeOne(ctx, task)
		assert.Equal(t, domain.GradeB, v.Grade)
		assert.False(t, v.Fallback)
		assert.EqualValues(t, 3, o.callCount())
	})

	t.Run("malformed payloads consume attempts then valid on third", func(t *testing.T) {
		task := testTask("run-1", 2)
		o := &scriptedOracle{script: []scriptStep{
			{payload: json.RawMessage(`this is not JSON at all`)},
			{payload: json.RawMessage(`{"question":"q","response":"","grade":"A"}`)}, // bad shape
			{payload: validPayload(task.Question, task.Response, "A")},
		}}
		c := NewCoordinator(o, runstore.New(), fastConfig())

		v := c.GradeOne(ctx, task)
		assert.Equal(t, domain.GradeA, v.Grade)
		assert.False(t, v.Fallback)
		assert.EqualValues(t, 3, o.callCount())
	})

	t.Run("exhausted budget records deterministic fallback", func(t *testing.T) {
		task := testTask("run-1", 3)
		o := &scriptedOracle{script: []scriptStep{
			{err: oracle.ErrGradingUnavailable},
		}}
		runs := runstore.New()
		c := NewCoordinator(o, runs, fastConfig())

		v := c.GradeOne(ctx, task)
		require.NotNil(t, v)
		assert.True(t, v.Fallback)
		assert.Equal(t, domain.GradeC, v.Grade)
		assert.Equal(t, task.Question, v.Question)
		assert.Equal(t, task.Response, v.Response)
		assert.EqualValues(t, 3, o.callCount())

		stored, ok := runs.Verdict("run-1", 3)
		require.True(t, ok, "fallback must still reach the run store")
		assert.True(t, stored.Fallback)
	})
}

func TestCoordinator_Dedup(t *testing.T) {
	ctx := context.Background()

	t.Run("repeat submission reuses cached verdict", func(t *testing.T) {
		task := testTask("run-1", 0)
		o := &scriptedOracle{script: []scriptStep{
			{payload: validPayload(task.Question, task.Response, "A")},
		}}
		c := NewCoordinator(o, runstore.New(), fastConfig())

		first := c.GradeOne(ctx, task)
		second := c.GradeOne(ctx, task)

		assert.Equal(t, *first, *second)
		assert.EqualValues(t, 1, o.callCount(), "duplicate must not call the oracle again")
	})

	t.Run("cached verdict still fills a new question slot", func(t *testing.T) {
		// Same question and answer submitted under two indexes: one oracle
		// call, two filled slots.
		taskA := testTask("run-1", 0)
		taskB := taskA
		taskB.QuestionIndex = 1

		o := &scriptedOracle{script: []scriptStep{
			{payload: validPayload(taskA.Question, taskA.Response, "B")},
		}}
		runs := runstore.New()
		c := NewCoordinator(o, runs, fastConfig())

		c.GradeOne(ctx, taskA)
		c.GradeOne(ctx, taskB)

		assert.EqualValues(t, 1, o.callCount())
		_, okA := runs.Verdict("run-1", 0)
		_, okB := runs.Verdict("run-1", 1)
		assert.True(t, okA)
		assert.True(t, okB)
	})

	t.Run("concurrent duplicates share one in-flight call", func(t *testing.T) {
		task := testTask("run-1", 0)
		release := make(chan struct{})
		o := &scriptedOracle{
			script: []scriptStep{
				{payload: validPayload(task.Question, task.Response, "A")},
			},
			blockCh: release,
		}
		c := NewCoordinator(o, runstore.New(), fastConfig())

		const submitters = 5
		var wg sync.WaitGroup
		verdicts := make([]*domain.GradingVerdict, submitters)
		for i := 0; i < submitters; i++ {
			i := i
			wg.Add(1)
			go func() {
				defer wg.Done()
				verdicts[i] = c.GradeOne(ctx, task)
			}()
		}

		// Give all submitters time to pile onto the in-flight call.
		time.Sleep(50 * time.Millisecond)
		close(release)
		wg.Wait()

		assert.EqualValues(t, 1, o.callCount())
		for _, v := range verdicts {
			require.NotNil(t, v)
			assert.Equal(t, domain.GradeA, v.Grade)
		}
	})

	t.Run("different responses are graded independently", func(t *testing.T) {
		taskA := testTask("run-1", 0)
		taskB := testTask("run-1", 0)
		taskB.Response = "a completely different answer"

		o := &scriptedOracle{script: []scriptStep{
			{payload: validPayload(taskA.Question, taskA.Response, "A")},
			{payload: validPayload(taskB.Question, taskB.Response, "D")},
		}}
		c := NewCoordinator(o, runstore.New(), fastConfig())

		a := c.GradeOne(ctx, taskA)
		b := c.GradeOne(ctx, taskB)

		assert.EqualValues(t, 2, o.callCount())
		assert.Equal(t, domain.GradeA, a.Grade)
		assert.Equal(t, domain.GradeD, b.Grade)
	})
}

func TestCoordinator_Dispatch(t *testing.T) {
	t.Run("runs to terminal verdict in background", func(t *testing.T) {
		task := testTask("run-1", 0)
		o := &scriptedOracle{script: []scriptStep{
			{payload: validPayload(task.Question, task.Response, "A")},
		}}
		runs := runstore.New()
		c := NewCoordinator(o, runs, fastConfig())

		require.NoError(t, c.Dispatch(context.Background(), task))
		c.Wait()

		stored, ok := runs.Verdict("run-1", 0)
		require.True(t, ok)
		assert.Equal(t, domain.GradeA, stored.Grade)
	})

	t.Run("survives caller cancellation", func(t *testing.T) {
		task := testTask("run-1", 0)
		o := &scriptedOracle{script: []scriptStep{
			{err: oracle.ErrGradingUnavailable},
			{payload: validPayload(task.Question, task.Response, "B")},
		}}
		runs := runstore.New()
		c := NewCoordinator(o, runs, fastConfig())

		ctx, cancel := context.WithCancel(context.Background())
		require.NoError(t, c.Dispatch(ctx, task))
		cancel() // the dispatched task must keep going
		c.Wait()

		stored, ok := runs.Verdict("run-1", 0)
		require.True(t, ok)
		assert.Equal(t, domain.GradeB, stored.Grade)
		assert.False(t, stored.Fallback)
	})

	t.Run("invalid task rejected synchronously", func(t *testing.T) {
		c := NewCoordinator(&scriptedOracle{script: []scriptStep{{}}}, runstore.New(), fastConfig())
		err := c.Dispatch(context.Background(), domain.GradingTask{})
		assert.Error(t, err)
	})
}

func TestVerdictCache(t *testing.T) {
	t.Run("evicts oldest entry at capacity", func(t *testing.T) {
		c := newVerdictCache(2)
		c.put("k1", domain.GradingVerdict{Question: "q1", Response: "r", Grade: domain.GradeA})
		c.put("k2", domain.GradingVerdict{Question: "q2", Response: "r", Grade: domain.GradeB})
		c.put("k3", domain.GradingVerdict{Question: "q3", Response: "r", Grade: domain.GradeC})

		_, ok := c.get("k1")
		assert.False(t, ok, "oldest entry must be evicted")
		_, ok = c.get("k2")
		assert.True(t, ok)
		_, ok = c.get("k3")
		assert.True(t, ok)
		assert.Equal(t, 2, c.len())
	})

	t.Run("re-store refreshes without growing", func(t *testing.T) {
		c := newVerdictCache(2)
		c.put("k1", domain.GradingVerdict{Grade: domain.GradeA})
		c.put("k1", domain.GradingVerdict{Grade: domain.GradeB})
		assert.Equal(t, 1, c.len())

		v, ok := c.get("k1")
		require.True(t, ok)
		assert.Equal(t, domain.GradeB, v.Grade)
	})
}
