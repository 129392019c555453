package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/bytedance/sonic"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"FieldScan/internal/di"
	"FieldScan/internal/domain/models"
	"FieldScan/pkg/config"
	"FieldScan/pkg/server"
)

var (
	configPath string
	envFile    string
	outFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "fieldscan",
	Short: "Field-model signal scanner and trade resolver",
	Long: `fieldscan scores daily bars of a ticker universe, emits LONG signals with
ATR-based exits and resolves them into trades. Backtest replays full history;
live evaluates the latest bar and keeps signals open for review.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the scheduled live scan and the scan request consumer",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, app *server.App) error {
			return app.Serve(ctx)
		})
	},
}

var backtestCmd = &cobra.Command{
	Use:   "backtest [TICKER...]",
	Short: "Replay full history and resolve every signal",
	Example: `  fieldscan backtest                 # whole universe
  fieldscan backtest AAPL MSFT       # selected tickers
  fieldscan backtest --format=json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScan(cmd, models.ModeBacktest, args)
	},
}

var scanCmd = &cobra.Command{
	Use:   "scan [TICKER...]",
	Short: "Evaluate the latest bar of each ticker and record open signals",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScan(cmd, models.ModeLive, args)
	},
}

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Walk open live signals forward and close the ones whose exit triggered",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, app *server.App) error {
			sum, err := app.Review(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), sum)
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "Path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional dotenv file loaded before the environment overrides")
	for _, c := range []*cobra.Command{backtestCmd, scanCmd} {
		c.Flags().StringVar(&outFormat, "format", "table", "Output format: table or json")
	}
	rootCmd.AddCommand(serveCmd, backtestCmd, scanCmd, reviewCmd)
}

func loadConfig() (*config.Config, error) {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}
	return config.LoadWithEnv(configPath)
}

// withApp wires the application, runs fn until it returns or a signal
// arrives, and always shuts the application down.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, app *server.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	app, err := di.InitializeApp(cfg)
	if err != nil {
		return fmt.Errorf("app initialization failed: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := fn(ctx, app)
	if err := app.Shutdown(context.Background()); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func runScan(cmd *cobra.Command, mode models.ScanMode, tickers []string) error {
	if outFormat != "table" && outFormat != "json" {
		return fmt.Errorf("unknown format %q", outFormat)
	}
	return withApp(cmd, func(ctx context.Context, app *server.App) error {
		res, err := app.Scan(ctx, mode, tickers)
		if err != nil {
			return err
		}
		if outFormat == "json" {
			return printJSON(cmd.OutOrStdout(), res)
		}
		return printTable(cmd.OutOrStdout(), res)
	})
}

func printJSON(w io.Writer, v interface{}) error {
	b, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func printTable(w io.Writer, res *models.ScanResult) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "mode\t%s\n", res.Mode)
	fmt.Fprintf(tw, "tickers\t%d processed of %d (%d skipped, %d failed)\n", res.Processed, res.Total, res.Skipped, res.Failed)
	if res.Cancelled {
		fmt.Fprintln(tw, "cancelled\ttrue")
	}
	fmt.Fprintf(tw, "open signals\t%d\n", len(res.Signals))
	fmt.Fprintf(tw, "trades\t%d\n\n", len(res.Trades))

	if len(res.Trades) > 0 {
		fmt.Fprintln(tw, "TICKER\tGENERATED\tENTRY\tCLOSED\tSTATUS\tP/L %\tDAYS")
		for _, t := range res.Trades {
			fmt.Fprintf(tw, "%s\t%s\t%.2f\t%s\t%s\t%.2f\t%d\n",
				t.Ticker, t.GenerationDate.Format("2006-01-02"), t.EntryPrice,
				t.CloseDate.Format("2006-01-02"), t.Status, t.ProfitLossPct, t.HoldingDays)
		}
		fmt.Fprintln(tw)
	}
	if len(res.Signals) > 0 {
		fmt.Fprintln(tw, "TICKER\tGENERATED\tENTRY\tSTOP\tTARGET\tSTATUS")
		for _, s := range res.Signals {
			fmt.Fprintf(tw, "%s\t%s\t%.2f\t%.2f\t%.2f\t%s\n",
				s.Ticker, s.GenerationDate.Format("2006-01-02"), s.EntryPrice, s.StopLoss, s.TakeProfit, s.Status)
		}
	}
	return tw.Flush()
}
