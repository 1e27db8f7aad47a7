// Package transfer implements the Transfer Tool Adapter (C4), the
// Direct-Sync (C5) and Traditional (C6) strategies, and the Mode
// Selector (C7).
/*
 * Copyright (c) 2026
 */
package transfer

import (
	"context"

	"github.com/tommy-ca/binance-datatool-sub005/cmn"
	"github.com/tommy-ca/binance-datatool-sub005/collect"
	"github.com/tommy-ca/binance-datatool-sub005/executor"
)

func errIncompatibleMode() error {
	return cmn.Wrapf(cmn.KindIncompatibleMode, "mode requires an S3-compatible destination")
}

// Strategy executes one batch of tasks and returns a result for each,
// in the same order as the input.
type Strategy interface {
	Name() executor.Strategy
	Execute(ctx context.Context, tasks []executor.TransferTask) []executor.TaskResult
}

// SelectStrategy implements the Mode Selector (C7): a deterministic,
// stateless decision over mode, destination kind, and tool
// availability. toolAvailable reports whether the bulk transfer tool
// binary was found on PATH.
func SelectStrategy(mode collect.Mode, destIsS3, toolAvailable bool) (executor.Strategy, error) {
	switch mode {
	case collect.ModeDirect:
		if !destIsS3 {
			return "", errIncompatibleMode()
		}
		return executor.StrategyDirect, nil
	case collect.ModeTraditional:
		return executor.StrategyTraditional, nil
	case collect.ModeHybrid:
		if destIsS3 {
			return executor.StrategyDirect, nil
		}
		return executor.StrategyTraditional, nil
	case collect.ModeAuto, "":
		if destIsS3 && toolAvailable {
			return executor.StrategyDirect, nil
		}
		return executor.StrategyTraditional, nil
	default:
		return "", errIncompatibleMode()
	}
}
