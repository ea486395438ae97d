package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gagliardetto/solana-go"
	gocmd "github.com/goliatone/go-command"
	paychain "github.com/goliatone/go-paychain"
	"github.com/goliatone/go-paychain/core"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	outputYAML = "yaml"
	outputJSON = "json"
)

type cli struct {
	v          *viper.Viper
	configPath string
	output     string
	out        io.Writer
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{v: newViper(), out: out}
	root := &cobra.Command{
		Use:           "paychain",
		Short:         "Cross-chain payment settlement engine",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			switch c.output {
			case outputYAML, outputJSON:
				return nil
			default:
				return fmt.Errorf("paychain: --output must be yaml or json")
			}
		},
	}
	root.SetOut(out)

	flags := root.PersistentFlags()
	flags.StringVarP(&c.configPath, "config", "c", "", "config file (yaml)")
	flags.StringVarP(&c.output, "output", "o", outputYAML, "output format: yaml or json")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("db-driver", "", "database driver (sqlite3 or postgres)")
	flags.String("db-dsn", "", "database dsn")
	_ = c.v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = c.v.BindPFlag("database.driver", flags.Lookup("db-driver"))
	_ = c.v.BindPFlag("database.dsn", flags.Lookup("db-dsn"))

	root.AddCommand(
		c.migrateCmd(),
		c.keygenCmd(),
		c.sealSeedCmd(),
		c.deploymentCmd(),
		c.vaultCmd(),
		c.ledgerCmd(),
		c.paymentCmd(),
		c.requestCmd(),
		c.offrampCmd(),
		c.relayCmd(),
		c.settlementCmd(),
		c.swapCmd(),
		c.dispatchCmd(),
		c.serveCmd(),
	)
	return root
}

func (c *cli) config() (appConfig, error) {
	return loadConfig(c.v, c.configPath)
}

func (c *cli) open(cmd *cobra.Command, extra ...core.Option) (*runtime, error) {
	cfg, err := c.config()
	if err != nil {
		return nil, err
	}
	return openRuntime(cmd.Context(), c.v, cfg, extra...)
}

// withFacade opens a runtime, builds the command/query facade and runs fn.
func (c *cli) withFacade(cmd *cobra.Command, fn func(ctx context.Context, rt *runtime, facade *paychain.Facade) error) error {
	rt, err := c.open(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()
	facade, err := paychain.NewFacade(rt.svc, paychain.WithEventSinks(newEventSink(rt)))
	if err != nil {
		return err
	}
	return fn(cmd.Context(), rt, facade)
}

func (c *cli) print(value any) error {
	if c.output == outputJSON {
		encoder := json.NewEncoder(c.out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(value)
	}
	encoder := yaml.NewEncoder(c.out)
	encoder.SetIndent(2)
	if err := encoder.Encode(value); err != nil {
		return err
	}
	return encoder.Close()
}

type validatable interface {
	Validate() error
}

func runCommand[M validatable, R any](ctx context.Context, handler interface {
	Execute(context.Context, M) error
}, msg M) (R, error) {
	var zero R
	if err := msg.Validate(); err != nil {
		return zero, err
	}
	collector := gocmd.NewResult[R]()
	if err := handler.Execute(gocmd.ContextWithResult(ctx, collector), msg); err != nil {
		return zero, err
	}
	out, _ := collector.Load()
	return out, nil
}

func runQuery[M validatable, R any](ctx context.Context, handler interface {
	Query(context.Context, M) (R, error)
}, msg M) (R, error) {
	var zero R
	if err := msg.Validate(); err != nil {
		return zero, err
	}
	return handler.Query(ctx, msg)
}

func parsePublicKey(flag string, value string) (solana.PublicKey, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return solana.PublicKey{}, nil
	}
	key, err := solana.PublicKeyFromBase58(value)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("paychain: --%s is not a base58 public key: %w", flag, err)
	}
	return key, nil
}

func parsePrivateKey(flag string, value string) (solana.PrivateKey, error) {
	key, err := solana.PrivateKeyFromBase58(strings.TrimSpace(value))
	if err != nil {
		return nil, fmt.Errorf("paychain: --%s is not a base58 private key: %w", flag, err)
	}
	return key, nil
}

func parseBytes32(flag string, value string) (core.Bytes32, error) {
	if strings.TrimSpace(value) == "" {
		return core.Bytes32{}, nil
	}
	out, err := core.ParseBytes32(value)
	if err != nil {
		return core.Bytes32{}, fmt.Errorf("paychain: --%s: %w", flag, err)
	}
	return out, nil
}

// parseAddress accepts 0x hex up to 32 bytes, left-padded, or a base58
// public key widened to 32 bytes.
func parseAddress(flag string, value string) (core.Bytes32, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return core.Bytes32{}, nil
	}
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		raw, err := hexutil.Decode(value)
		if err != nil {
			return core.Bytes32{}, fmt.Errorf("paychain: --%s: %w", flag, err)
		}
		if len(raw) > 32 {
			return core.Bytes32{}, fmt.Errorf("paychain: --%s is %d bytes, max 32", flag, len(raw))
		}
		var out core.Bytes32
		copy(out[32-len(raw):], raw)
		return out, nil
	}
	key, err := parsePublicKey(flag, value)
	if err != nil {
		return core.Bytes32{}, err
	}
	return core.Bytes32FromPublicKey(key), nil
}

// newIdentifier derives a random 32-byte id.
func newIdentifier() core.Bytes32 {
	id := uuid.New()
	return core.Bytes32(crypto.Keccak256Hash(id[:]))
}
