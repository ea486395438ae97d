package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	paychain "github.com/goliatone/go-paychain"
	paychaincommand "github.com/goliatone/go-paychain/command"
	"github.com/goliatone/go-paychain/core"
	"github.com/goliatone/go-paychain/httpapi"
	paychainquery "github.com/goliatone/go-paychain/query"
	"github.com/goliatone/go-paychain/security"
	"github.com/spf13/cobra"
)

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.config()
			if err != nil {
				return err
			}
			client, err := openPersistence(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer client.Close()
			if err := migrate(cmd.Context(), client, cfg.Database.Driver); err != nil {
				return err
			}
			return c.print(map[string]any{"migrated": true, "driver": cfg.Database.Driver})
		},
	}
}

func (c *cli) keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate an ed25519 keypair for callers and relays",
		RunE: func(*cobra.Command, []string) error {
			key, err := solana.NewRandomPrivateKey()
			if err != nil {
				return err
			}
			return c.print(map[string]any{
				"public_key":  key.PublicKey().String(),
				"private_key": key.String(),
			})
		},
	}
}

func (c *cli) sealSeedCmd() *cobra.Command {
	var seed string
	cmd := &cobra.Command{
		Use:   "seal-seed",
		Short: "Seal a custody seed with secrets.app_key for custody.seed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.config()
			if err != nil {
				return err
			}
			key := strings.TrimSpace(cfg.Secrets.AppKey)
			if key == "" {
				return fmt.Errorf("paychain: secrets.app_key is required to seal a seed")
			}
			provider, err := security.NewAppKeySecretProviderFromString(key)
			if err != nil {
				return err
			}
			if strings.TrimSpace(seed) == "" {
				if seed, err = security.GenerateSeed(); err != nil {
					return err
				}
			}
			sealed, err := security.SealSeed(cmd.Context(), provider, seed)
			if err != nil {
				return err
			}
			return c.print(map[string]any{
				"seed":   seed,
				"sealed": sealed,
				"key_id": provider.KeyID(),
			})
		},
	}
	cmd.Flags().StringVar(&seed, "seed", "", "0x hex seed to seal (generated when empty)")
	return cmd
}

func (c *cli) deploymentCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "deployment", Short: "Initialize and inspect the deployment"}

	var caller, router, program, feeRecipient, chainID string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create the deployment and its vault",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := core.InitializeRequest{ChainID: chainID}
			var err error
			if req.Caller, err = parsePublicKey("caller", caller); err != nil {
				return err
			}
			if req.Router, err = parsePublicKey("router", router); err != nil {
				return err
			}
			if req.ProgramID, err = parsePublicKey("program", program); err != nil {
				return err
			}
			if req.FeeRecipient, err = parsePublicKey("fee-recipient", feeRecipient); err != nil {
				return err
			}
			return c.withFacade(cmd, func(ctx context.Context, rt *runtime, facade *paychain.Facade) error {
				deployment, err := runCommand[paychaincommand.InitializeMessage, core.Deployment](
					ctx, facade.Commands().Initialize, paychaincommand.InitializeMessage{Request: req},
				)
				if err != nil {
					return err
				}
				return c.print(httpapi.NewDeploymentView(deployment, rt.cfg.Amount.Decimals))
			})
		},
	}
	initCmd.Flags().StringVar(&caller, "caller", "", "authority public key")
	initCmd.Flags().StringVar(&router, "router", "", "router public key")
	initCmd.Flags().StringVar(&program, "program", "", "program id")
	initCmd.Flags().StringVar(&feeRecipient, "fee-recipient", "", "fee recipient (defaults to the authority)")
	initCmd.Flags().StringVar(&chainID, "chain-id", "", "local chain id")

	var feeCaller, feeFeeRecipient string
	var fixedFee uint64
	var rateBps uint16
	feesCmd := &cobra.Command{
		Use:   "fees",
		Short: "Update the fee schedule",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := core.UpdateFeeScheduleRequest{FixedBaseFee: fixedFee, FeeRateBps: rateBps}
			var err error
			if req.Caller, err = parsePublicKey("caller", feeCaller); err != nil {
				return err
			}
			if req.FeeRecipient, err = parsePublicKey("fee-recipient", feeFeeRecipient); err != nil {
				return err
			}
			return c.withFacade(cmd, func(ctx context.Context, rt *runtime, facade *paychain.Facade) error {
				deployment, err := runCommand[paychaincommand.UpdateFeeScheduleMessage, core.Deployment](
					ctx, facade.Commands().UpdateFeeSchedule, paychaincommand.UpdateFeeScheduleMessage{Request: req},
				)
				if err != nil {
					return err
				}
				return c.print(httpapi.NewDeploymentView(deployment, rt.cfg.Amount.Decimals))
			})
		},
	}
	feesCmd.Flags().StringVar(&feeCaller, "caller", "", "authority public key")
	feesCmd.Flags().StringVar(&feeFeeRecipient, "fee-recipient", "", "new fee recipient")
	feesCmd.Flags().Uint64Var(&fixedFee, "fixed-fee", core.DefaultFixedBaseFee, "fixed base fee in base units")
	feesCmd.Flags().Uint16Var(&rateBps, "rate-bps", core.DefaultFeeRateBps, "proportional fee in basis points")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the deployment",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withFacade(cmd, func(ctx context.Context, rt *runtime, facade *paychain.Facade) error {
				deployment, err := runQuery[paychainquery.GetDeploymentMessage, core.Deployment](
					ctx, facade.Queries().GetDeployment, paychainquery.GetDeploymentMessage{},
				)
				if err != nil {
					return err
				}
				return c.print(httpapi.NewDeploymentView(deployment, rt.cfg.Amount.Decimals))
			})
		},
	}

	cmd.AddCommand(initCmd, feesCmd, showCmd)
	return cmd
}

func (c *cli) vaultCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vault",
		Short: "Print the custody vault",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withFacade(cmd, func(ctx context.Context, rt *runtime, facade *paychain.Facade) error {
				vault, err := runQuery[paychainquery.GetVaultMessage, core.Vault](
					ctx, facade.Queries().GetVault, paychainquery.GetVaultMessage{},
				)
				if err != nil {
					return err
				}
				return c.print(httpapi.NewVaultView(vault, rt.cfg.Amount.Decimals))
			})
		},
	}
}

// ledgerCmd manages balances in the sql token ledger that backs custody
// transfers.
func (c *cli) ledgerCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "ledger", Short: "Fund and inspect token balances"}

	var owner, token string
	var amount uint64
	fundCmd := &cobra.Command{
		Use:   "fund",
		Short: "Mint an amount into an owner's balance",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ownerKey, tokenKey, err := ledgerKeys(owner, token)
			if err != nil {
				return err
			}
			if amount == 0 {
				return fmt.Errorf("paychain: --amount must be greater than zero")
			}
			rt, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()
			if err := rt.ledger.Fund(cmd.Context(), ownerKey, tokenKey, amount); err != nil {
				return err
			}
			return c.printBalance(cmd.Context(), rt, ownerKey, tokenKey)
		},
	}
	fundCmd.Flags().StringVar(&owner, "owner", "", "owner public key")
	fundCmd.Flags().StringVar(&token, "token", "", "token mint (native when empty)")
	fundCmd.Flags().Uint64Var(&amount, "amount", 0, "amount in base units")

	var balanceOwner, balanceToken string
	balanceCmd := &cobra.Command{
		Use:   "balance",
		Short: "Print an owner's balance",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ownerKey, tokenKey, err := ledgerKeys(balanceOwner, balanceToken)
			if err != nil {
				return err
			}
			rt, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()
			return c.printBalance(cmd.Context(), rt, ownerKey, tokenKey)
		},
	}
	balanceCmd.Flags().StringVar(&balanceOwner, "owner", "", "owner public key")
	balanceCmd.Flags().StringVar(&balanceToken, "token", "", "token mint (native when empty)")

	cmd.AddCommand(fundCmd, balanceCmd)
	return cmd
}

func ledgerKeys(owner, token string) (solana.PublicKey, solana.PublicKey, error) {
	ownerKey, err := parsePublicKey("owner", owner)
	if err != nil {
		return solana.PublicKey{}, solana.PublicKey{}, err
	}
	if ownerKey.IsZero() {
		return solana.PublicKey{}, solana.PublicKey{}, fmt.Errorf("paychain: --owner is required")
	}
	tokenKey, err := parsePublicKey("token", token)
	if err != nil {
		return solana.PublicKey{}, solana.PublicKey{}, err
	}
	return ownerKey, tokenKey, nil
}

func (c *cli) printBalance(ctx context.Context, rt *runtime, owner, token solana.PublicKey) error {
	balance, err := rt.ledger.Balance(ctx, owner, token)
	if err != nil {
		return err
	}
	return c.print(map[string]any{
		"owner":           owner.String(),
		"token":           token.String(),
		"balance":         fmt.Sprintf("%d", balance),
		"balance_display": core.FormatAmount(balance, rt.cfg.Amount.Decimals),
	})
}
