package core

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
)

type SwapTokensRequest struct {
	Payer       solana.PublicKey
	Instruction SwapInstruction
}

// SwapTokens forwards the instruction verbatim to the configured executor.
// Only the target program is checked here.
func (s *Service) SwapTokens(ctx context.Context, req SwapTokensRequest) (result SwapResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"payer":    req.Payer.String(),
		"program":  req.Instruction.Program.String(),
		"accounts": len(req.Instruction.Accounts),
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "swap_tokens", err, fields)
	}()

	if s.swapExecutor == nil {
		err = s.badInput("swap_executor", "swap executor is required")
		return SwapResult{}, err
	}
	if req.Instruction.Program.IsZero() {
		err = s.badInput("program", "swap program is required")
		return SwapResult{}, err
	}
	result, err = s.swapExecutor.Execute(ctx, req.Payer, SwapInstruction{
		Program:  req.Instruction.Program,
		Accounts: append([]SwapAccount(nil), req.Instruction.Accounts...),
		Data:     append([]byte(nil), req.Instruction.Data...),
	})
	if err != nil {
		err = s.mapError(err)
		return SwapResult{}, err
	}
	return result, nil
}
