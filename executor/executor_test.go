package executor_test

import (
	"context"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/tommy-ca/binance-datatool-sub005/executor"
)

// fakeStrategy returns a scripted outcome, tracking how many times
// Execute was called (per task, since the executor always retries with
// single-task batches).
type fakeStrategy struct {
	name    executor.Strategy
	calls   int32
	execute func(calls int32, tasks []executor.TransferTask) []executor.TaskResult
	// ctxExecute, if set, takes priority over execute and receives the
	// per-call context so a test can observe its deadline.
	ctxExecute func(ctx context.Context, tasks []executor.TransferTask) []executor.TaskResult
}

func (f *fakeStrategy) Name() executor.Strategy { return f.name }

func (f *fakeStrategy) Execute(ctx context.Context, tasks []executor.TransferTask) []executor.TaskResult {
	n := atomic.AddInt32(&f.calls, 1)
	if f.ctxExecute != nil {
		return f.ctxExecute(ctx, tasks)
	}
	if f.execute != nil {
		return f.execute(n, tasks)
	}
	out := make([]executor.TaskResult, len(tasks))
	for i, t := range tasks {
		out[i] = executor.TaskResult{Task: t, Outcome: executor.OutcomeCopied, Attempts: 1, StrategyUsed: f.name}
	}
	return out
}

type fakeDestination struct {
	existing map[string]bool
}

func (d *fakeDestination) DestinationURI(targetKey string) string { return "file:///" + targetKey }

func (d *fakeDestination) Exists(_ context.Context, uri string) (bool, error) {
	return d.existing[uri], nil
}

func tasksN(n int) []executor.TransferTask {
	out := make([]executor.TransferTask, n)
	for i := range out {
		out[i] = executor.TransferTask{SourceURI: "s3://src/t", TargetKey: "k"}
	}
	return out
}

var _ = Describe("Executor", func() {
	It("returns no results for an empty plan", func() {
		strat := &fakeStrategy{name: executor.StrategyTraditional}
		ex := &executor.Executor{Primary: strat, Opts: executor.RunOptions{MaxConcurrency: 4, BatchSize: 10}}
		res := ex.Run(context.Background(), nil)
		Expect(res.Results).To(BeEmpty())
		Expect(res.Cancelled).To(BeFalse())
	})

	It("skips tasks the destination already has when incremental and not forced", func() {
		tasks := tasksN(2)
		tasks[0].TargetKey = "already-there"
		tasks[1].TargetKey = "missing"
		dest := &fakeDestination{existing: map[string]bool{"file:///already-there": true}}
		strat := &fakeStrategy{name: executor.StrategyTraditional}
		ex := &executor.Executor{
			Primary: strat, Destination: dest,
			Opts: executor.RunOptions{MaxConcurrency: 2, BatchSize: 1, Incremental: true},
		}
		res := ex.Run(context.Background(), tasks)
		Expect(res.Results[0].Outcome).To(Equal(executor.OutcomeSkippedExisting))
		Expect(res.Results[1].Outcome).To(Equal(executor.OutcomeCopied))
	})

	It("skips the existence probe and transfers everything when force is set even if incremental is on", func() {
		tasks := tasksN(1)
		tasks[0].TargetKey = "already-there"
		dest := &fakeDestination{existing: map[string]bool{"file:///already-there": true}}
		strat := &fakeStrategy{name: executor.StrategyTraditional}
		ex := &executor.Executor{
			Primary: strat, Destination: dest,
			Opts: executor.RunOptions{MaxConcurrency: 1, BatchSize: 1, Incremental: true, Force: true},
		}
		res := ex.Run(context.Background(), tasks)
		Expect(res.Results[0].Outcome).To(Equal(executor.OutcomeCopied))
	})

	It("retries a transient_error outcome up to the attempt budget then gives up", func() {
		strat := &fakeStrategy{name: executor.StrategyTraditional, execute: func(n int32, tasks []executor.TransferTask) []executor.TaskResult {
			out := make([]executor.TaskResult, len(tasks))
			for i, t := range tasks {
				out[i] = executor.TaskResult{Task: t, Outcome: executor.OutcomeTransientError, Attempts: 1, Err: "boom"}
			}
			return out
		}}
		ex := &executor.Executor{Primary: strat, Opts: executor.RunOptions{MaxConcurrency: 1, BatchSize: 1}}
		res := ex.Run(context.Background(), tasksN(1))
		Expect(res.Results[0].Outcome).To(Equal(executor.OutcomeTransientError))
		Expect(res.Results[0].Attempts).To(Equal(3))
	})

	It("succeeds on a later attempt after a transient failure", func() {
		strat := &fakeStrategy{name: executor.StrategyTraditional, execute: func(n int32, tasks []executor.TransferTask) []executor.TaskResult {
			out := make([]executor.TaskResult, len(tasks))
			for i, t := range tasks {
				if n < 2 {
					out[i] = executor.TaskResult{Task: t, Outcome: executor.OutcomeTransientError, Attempts: 1}
				} else {
					out[i] = executor.TaskResult{Task: t, Outcome: executor.OutcomeCopied, Attempts: 1}
				}
			}
			return out
		}}
		ex := &executor.Executor{Primary: strat, Opts: executor.RunOptions{MaxConcurrency: 1, BatchSize: 1}}
		res := ex.Run(context.Background(), tasksN(1))
		Expect(res.Results[0].Outcome).To(Equal(executor.OutcomeCopied))
		Expect(res.Results[0].Attempts).To(Equal(2))
	})

	It("does not retry a terminal, non-transient outcome", func() {
		strat := &fakeStrategy{name: executor.StrategyTraditional, execute: func(n int32, tasks []executor.TransferTask) []executor.TaskResult {
			out := make([]executor.TaskResult, len(tasks))
			for i, t := range tasks {
				out[i] = executor.TaskResult{Task: t, Outcome: executor.OutcomeSourceMissing, Attempts: 1}
			}
			return out
		}}
		ex := &executor.Executor{Primary: strat, Opts: executor.RunOptions{MaxConcurrency: 1, BatchSize: 1}}
		res := ex.Run(context.Background(), tasksN(1))
		Expect(res.Results[0].Outcome).To(Equal(executor.OutcomeSourceMissing))
		Expect(strat.calls).To(Equal(int32(1)))
	})

	It("downgrades to the fallback strategy when the primary reports tool_unavailable", func() {
		primary := &fakeStrategy{name: executor.StrategyDirect, execute: func(n int32, tasks []executor.TransferTask) []executor.TaskResult {
			out := make([]executor.TaskResult, len(tasks))
			for i, t := range tasks {
				out[i] = executor.TaskResult{Task: t, Outcome: executor.OutcomeTransientError, Attempts: 1, Err: "tool_unavailable: s5cmd not found"}
			}
			return out
		}}
		fallback := &fakeStrategy{name: executor.StrategyTraditional}
		ex := &executor.Executor{Primary: primary, Fallback: fallback, Opts: executor.RunOptions{MaxConcurrency: 1, BatchSize: 2}}
		res := ex.Run(context.Background(), tasksN(2))
		for _, r := range res.Results {
			Expect(r.Outcome).To(Equal(executor.OutcomeCopied))
			Expect(r.StrategyUsed).To(Equal(executor.StrategyTraditional))
		}
	})

	It("handles batch_size=1 and max_concurrency=1 without deadlocking", func() {
		strat := &fakeStrategy{name: executor.StrategyTraditional}
		ex := &executor.Executor{Primary: strat, Opts: executor.RunOptions{MaxConcurrency: 1, BatchSize: 1}}
		done := make(chan struct{})
		go func() {
			ex.Run(context.Background(), tasksN(5))
			close(done)
		}()
		Eventually(done, 2*time.Second).Should(BeClosed())
	})

	It("reports cancelled when the context is already done before dispatch completes", func() {
		strat := &fakeStrategy{name: executor.StrategyTraditional, execute: func(n int32, tasks []executor.TransferTask) []executor.TaskResult {
			time.Sleep(20 * time.Millisecond)
			out := make([]executor.TaskResult, len(tasks))
			for i, t := range tasks {
				out[i] = executor.TaskResult{Task: t, Outcome: executor.OutcomeCopied, Attempts: 1}
			}
			return out
		}}
		ctx, cancel := context.WithCancel(context.Background())
		ex := &executor.Executor{Primary: strat, Opts: executor.RunOptions{MaxConcurrency: 1, BatchSize: 1}}
		cancel()
		res := ex.Run(ctx, tasksN(3))
		Expect(res.Cancelled).To(BeTrue())
		for _, r := range res.Results {
			Expect(r.Outcome).To(BeEmpty(), "a task never dispatched before cancellation keeps a zero-value result")
		}
	})

	It("marks a task transient_error when every attempt exceeds TaskTimeout", func() {
		strat := &fakeStrategy{name: executor.StrategyTraditional, ctxExecute: func(ctx context.Context, tasks []executor.TransferTask) []executor.TaskResult {
			out := make([]executor.TaskResult, len(tasks))
			select {
			case <-ctx.Done():
				out[0] = executor.TaskResult{Task: tasks[0], Outcome: executor.OutcomeTransientError, Attempts: 1, Err: ctx.Err().Error()}
			case <-time.After(time.Second):
				out[0] = executor.TaskResult{Task: tasks[0], Outcome: executor.OutcomeCopied, Attempts: 1}
			}
			return out
		}}
		ex := &executor.Executor{
			Primary: strat,
			Opts:    executor.RunOptions{MaxConcurrency: 1, BatchSize: 1, TaskTimeout: 10 * time.Millisecond},
		}
		res := ex.Run(context.Background(), tasksN(1))
		Expect(res.Results[0].Outcome).To(Equal(executor.OutcomeTransientError))
		Expect(res.Results[0].Attempts).To(Equal(3))
	})

	It("never derives a deadline when TaskTimeout is unset", func() {
		strat := &fakeStrategy{name: executor.StrategyTraditional, ctxExecute: func(ctx context.Context, tasks []executor.TransferTask) []executor.TaskResult {
			_, hasDeadline := ctx.Deadline()
			Expect(hasDeadline).To(BeFalse())
			out := make([]executor.TaskResult, len(tasks))
			for i, t := range tasks {
				out[i] = executor.TaskResult{Task: t, Outcome: executor.OutcomeCopied, Attempts: 1}
			}
			return out
		}}
		ex := &executor.Executor{Primary: strat, Opts: executor.RunOptions{MaxConcurrency: 1, BatchSize: 1}}
		res := ex.Run(context.Background(), tasksN(1))
		Expect(res.Results[0].Outcome).To(Equal(executor.OutcomeCopied))
	})

	It("reports partial success when some tasks in a plan fail permanently and others succeed", func() {
		strat := &fakeStrategy{name: executor.StrategyTraditional, execute: func(n int32, tasks []executor.TransferTask) []executor.TaskResult {
			out := make([]executor.TaskResult, len(tasks))
			for i, t := range tasks {
				if t.TargetKey == "bad" {
					out[i] = executor.TaskResult{Task: t, Outcome: executor.OutcomePermanentError, Attempts: 1}
				} else {
					out[i] = executor.TaskResult{Task: t, Outcome: executor.OutcomeCopied, Attempts: 1}
				}
			}
			return out
		}}
		tasks := tasksN(2)
		tasks[0].TargetKey = "bad"
		tasks[1].TargetKey = "good"
		ex := &executor.Executor{Primary: strat, Opts: executor.RunOptions{MaxConcurrency: 2, BatchSize: 1}}
		res := ex.Run(context.Background(), tasks)
		Expect(res.Results[0].Outcome).To(Equal(executor.OutcomePermanentError))
		Expect(res.Results[1].Outcome).To(Equal(executor.OutcomeCopied))
	})
})
