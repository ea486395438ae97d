package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
)

type InitializeRequest struct {
	Caller       solana.PublicKey
	Router       solana.PublicKey
	FeeRecipient solana.PublicKey
	ProgramID    solana.PublicKey
	ChainID      string
}

type UpdateFeeScheduleRequest struct {
	Caller       solana.PublicKey
	FeeRecipient solana.PublicKey
	FixedBaseFee uint64
	FeeRateBps   uint16
}

// Initialize creates the deployment and its vault. The caller becomes the
// authority; fees start from the fees config block.
func (s *Service) Initialize(ctx context.Context, req InitializeRequest) (deployment Deployment, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"caller":   req.Caller.String(),
		"router":   req.Router.String(),
		"chain_id": req.ChainID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "initialize", err, fields)
	}()

	if err = s.requireStore(); err != nil {
		err = s.mapError(err)
		return Deployment{}, err
	}
	if req.Caller.IsZero() {
		err = s.badInput("caller", "caller is required")
		return Deployment{}, err
	}
	feeRecipient := req.FeeRecipient
	if feeRecipient.IsZero() {
		feeRecipient = req.Caller
	}
	now := s.now()
	deployment = Deployment{
		Authority:    req.Caller,
		FeeRecipient: feeRecipient,
		Router:       req.Router,
		ProgramID:    req.ProgramID,
		ChainID:      strings.TrimSpace(req.ChainID),
		FixedBaseFee: s.config.Fees.FixedBaseFee,
		FeeRateBps:   s.config.Fees.FeeRateBps,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err = deployment.Validate(); err != nil {
		err = s.mapError(err)
		return Deployment{}, err
	}
	authority := s.vaultAuthority(deployment)
	deployment.VaultAuthority = authority.PublicKey()
	fields["vault_authority"] = deployment.VaultAuthority.String()

	err = s.store.RunInUnit(ctx, func(ctx context.Context, unit SettlementUnit) error {
		if err := unit.CreateDeployment(ctx, deployment); err != nil {
			return err
		}
		if err := unit.CreateVault(ctx, Vault{
			Authority: deployment.VaultAuthority,
			UpdatedAt: now,
		}); err != nil {
			return err
		}
		return unit.AppendEvent(ctx, deploymentInitializedEvent(deployment, now))
	})
	if err != nil {
		err = s.mapError(err)
		return Deployment{}, err
	}
	return deployment, nil
}

func (s *Service) UpdateFeeSchedule(ctx context.Context, req UpdateFeeScheduleRequest) (deployment Deployment, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"caller":         req.Caller.String(),
		"fixed_base_fee": req.FixedBaseFee,
		"fee_rate_bps":   req.FeeRateBps,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "update_fee_schedule", err, fields)
	}()

	if err = s.requireStore(); err != nil {
		err = s.mapError(err)
		return Deployment{}, err
	}
	if err = ValidateFeeRate(req.FeeRateBps); err != nil {
		err = s.mapError(err)
		return Deployment{}, err
	}
	now := s.now()
	err = s.store.RunInUnit(ctx, func(ctx context.Context, unit SettlementUnit) error {
		current, err := unit.Deployment(ctx)
		if err != nil {
			return err
		}
		if !current.IsAuthority(req.Caller) {
			return fmt.Errorf("%w: only the deployment authority may update fees", ErrUnauthorized)
		}
		current.FixedBaseFee = req.FixedBaseFee
		current.FeeRateBps = req.FeeRateBps
		if !req.FeeRecipient.IsZero() {
			current.FeeRecipient = req.FeeRecipient
		}
		current.UpdatedAt = now
		if err := unit.UpdateDeployment(ctx, current); err != nil {
			return err
		}
		deployment = current
		return unit.AppendEvent(ctx, feeScheduleUpdatedEvent(current, now))
	})
	if err != nil {
		err = s.mapError(err)
		return Deployment{}, err
	}
	return deployment, nil
}

func (s *Service) GetDeployment(ctx context.Context) (Deployment, error) {
	if err := s.requireStore(); err != nil {
		return Deployment{}, s.mapError(err)
	}
	deployment, err := s.store.GetDeployment(ctx)
	if err != nil {
		return Deployment{}, s.mapError(err)
	}
	return deployment, nil
}

func (s *Service) GetVault(ctx context.Context) (Vault, error) {
	if err := s.requireStore(); err != nil {
		return Vault{}, s.mapError(err)
	}
	vault, err := s.store.GetVault(ctx)
	if err != nil {
		return Vault{}, s.mapError(err)
	}
	return vault, nil
}
