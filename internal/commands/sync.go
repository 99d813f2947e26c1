package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/cleared-dev/banksync/internal/config"
	"github.com/cleared-dev/banksync/internal/logger"
	"github.com/cleared-dev/banksync/internal/model"
	"github.com/cleared-dev/banksync/internal/runner"
)

type syncFlags struct {
	bank       string
	accounts   []string
	categorize bool
	categories []string
	report     string
	dryRun     bool
}

func newSyncCommand(e env) *cobra.Command {
	var f syncFlags

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Import the last 30 days of transactions into the ledger",
		Example: `  banksync sync --bank up --accounts actual-checking=up-account-id
  banksync sync --bank akahu -c --categories Supermarket=Groceries \
    --accounts checking=acc_123 --accounts savings=acc_456`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, e.getenv)
			if err != nil {
				return err
			}
			if err := f.apply(cmd.Flags(), cfg); err != nil {
				return err
			}
			if errs := cfg.Validate(); len(errs) > 0 {
				joined := make([]error, len(errs))
				for i, ve := range errs {
					joined[i] = ve
				}
				return fmt.Errorf("invalid configuration:\n%w", errors.Join(joined...))
			}

			log := logger.NewWithWriter(cmd.ErrOrStderr(), logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
			ctx := logger.WithContext(cmd.Context(), log)

			summary, err := runner.Run(ctx, runner.Options{
				Config:     cfg,
				Registry:   e.registry,
				OpenLedger: e.openLedger,
				DryRun:     f.dryRun,
			})
			printSummary(cmd.OutOrStdout(), summary)
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.bank, "bank", "", "bank provider to use (see 'banksync banks')")
	flags.StringArrayVar(&f.accounts, "accounts", nil, "account to sync as ledger-account-id=bank-account-id (repeatable)")
	flags.BoolVarP(&f.categorize, "categorize", "c", false, "categorize transactions when the bank supports it")
	flags.StringArrayVar(&f.categories, "categories", nil, "map a bank category to a ledger category as bank-category=ledger-category (repeatable); requires --categorize")
	flags.StringVar(&f.report, "report", "", "append a per-account run report to this CSV file")
	flags.BoolVar(&f.dryRun, "dry-run", false, "fetch and compare without changing the ledger")

	return cmd
}

// loadConfig reads the config file, falling back to defaults when the
// default file is absent, then overlays the environment.
func loadConfig(cmd *cobra.Command, getenv config.Getenv) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) || cmd.Flags().Changed("config") {
			return nil, err
		}
		cfg = config.Default()
	}
	cfg.ApplyEnv(getenv)
	return cfg, nil
}

// apply overlays flags the user set on cfg.
func (f *syncFlags) apply(flags *pflag.FlagSet, cfg *config.Config) error {
	if flags.Changed("bank") {
		cfg.Bank = strings.ToLower(f.bank)
	}
	if flags.Changed("accounts") {
		cfg.Accounts = cfg.Accounts[:0:0]
		for _, raw := range f.accounts {
			m, err := model.ParseAccountMapping(raw)
			if err != nil {
				return err
			}
			cfg.Accounts = append(cfg.Accounts, m)
		}
	}
	if flags.Changed("categorize") {
		cfg.Categorize = f.categorize
	}
	if flags.Changed("categories") {
		if cfg.CategoryMapping == nil {
			cfg.CategoryMapping = make(map[string]string, len(f.categories))
		}
		for _, raw := range f.categories {
			bankCategory, ledgerCategory, ok := strings.Cut(raw, "=")
			if !ok || bankCategory == "" || ledgerCategory == "" {
				return fmt.Errorf("invalid category mapping %q: want bank-category=ledger-category", raw)
			}
			cfg.CategoryMapping[bankCategory] = ledgerCategory
		}
	}
	if flags.Changed("report") {
		cfg.Report.Path = f.report
	}
	return nil
}
