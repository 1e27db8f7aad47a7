package transfer

import (
	"context"
	"errors"
	"time"

	"github.com/tommy-ca/binance-datatool-sub005/cmn"
	"github.com/tommy-ca/binance-datatool-sub005/executor"
	"github.com/tommy-ca/binance-datatool-sub005/storage"
)

// ToolUnavailableMarker prefixes TaskResult.Err when the bulk tool
// binary could not be invoked at all, so the batch executor can
// recognize a mid-run ToolUnavailable and downgrade to the traditional
// strategy instead of exhausting this task's retry budget on a pointless
// transient_error loop.
const ToolUnavailableMarker = "tool_unavailable: "

// DirectStrategy implements the Direct-Sync strategy (C5): each task
// becomes a single source-S3 -> destination-S3 copy line in the bulk
// tool's batch file. No bytes traverse the client.
type DirectStrategy struct {
	Tool    *ToolAdapter
	Backend storage.Backend
}

var _ Strategy = (*DirectStrategy)(nil)

func (s *DirectStrategy) Name() executor.Strategy { return executor.StrategyDirect }

func (s *DirectStrategy) Execute(ctx context.Context, tasks []executor.TransferTask) []executor.TaskResult {
	lines := make([]CopyLine, len(tasks))
	for i, t := range tasks {
		lines[i] = CopyLine{
			Source:      t.SourceURI,
			Destination: s.Backend.DestinationURI(t.TargetKey),
		}
	}

	start := time.Now()
	res, err := s.Tool.Run(ctx, lines)
	elapsed := time.Since(start)

	results := make([]executor.TaskResult, len(tasks))
	if err != nil {
		errMsg := err.Error()
		if errors.Is(err, cmn.ErrToolUnavailable) {
			errMsg = ToolUnavailableMarker + errMsg
		}
		for i, t := range tasks {
			results[i] = executor.TaskResult{
				Task: t, Outcome: executor.OutcomeTransientError,
				Duration: elapsed, Attempts: 1, StrategyUsed: executor.StrategyDirect,
				Err: errMsg,
			}
		}
		return results
	}

	for i, t := range tasks {
		outcome := executor.OutcomeCopied
		if res.ExitCode != 0 {
			if o, ok := res.LineOutcomes[i]; ok {
				outcome = o
			} else {
				outcome = executor.OutcomeTransientError
			}
		}
		results[i] = executor.TaskResult{
			Task: t, Outcome: outcome, Duration: elapsed / time.Duration(len(tasks)),
			Attempts: 1, StrategyUsed: executor.StrategyDirect,
		}
	}
	return results
}
