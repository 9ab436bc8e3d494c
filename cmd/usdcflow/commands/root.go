package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/vitwit/usdcflow"
	"github.com/vitwit/usdcflow/clients"
	"github.com/vitwit/usdcflow/config"
	"github.com/vitwit/usdcflow/logger"
	"github.com/vitwit/usdcflow/metrics"
	"github.com/vitwit/usdcflow/types"
	"github.com/vitwit/usdcflow/utils"
	"github.com/vitwit/usdcflow/wallet"
)

const defaultKeyEnv = "USDCFLOW_PRIVATE_KEY"

var (
	configPath string
	jsonOutput bool
	keyEnv     string
)

var rootCmd = &cobra.Command{
	Use:   "usdcflow",
	Short: "Move, consolidate and settle USDC across testnets",
	Long: `usdcflow drives Circle Gateway transfers and PayRouter settlements from a
local key.

Examples:
  usdcflow chains
  usdcflow sku --kind unlock --post p1
  usdcflow transfer 5 --from 84532
  usdcflow consolidate
  usdcflow settle --intent intent.json --chain 5042002
  usdcflow verify --intent intent.json --chain 5042002 --tx 0x...`,
	Version:       usdcflow.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Ctrl+C cancels the running flow.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default ./usdcflow.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&keyEnv, "key-env", defaultKeyEnv, "Environment variable holding the private key")
}

// env is everything a command needs once config is loaded.
type env struct {
	cfg   *config.Config
	log   logger.Logger
	pool  *clients.Pool
	flow  *usdcflow.Flow
	close func()
}

func setup(ctx context.Context) (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	log, err := logger.NewZapLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	endpoints, err := cfg.Endpoints()
	if err != nil {
		return nil, err
	}
	pool, err := clients.DialPool(ctx, endpoints)
	if err != nil {
		return nil, err
	}

	closers := []func(){pool.Close}
	opts := []usdcflow.Option{usdcflow.WithLogger(log)}

	if cfg.Metrics.Enabled {
		recorder, shutdown, err := serveMetrics(cfg.Metrics.Addr, log)
		if err != nil {
			pool.Close()
			return nil, err
		}
		opts = append(opts, usdcflow.WithMetrics(recorder))
		closers = append(closers, shutdown)
	}

	flow, err := usdcflow.New(cfg, pool, opts...)
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &env{
		cfg:  cfg,
		log:  log,
		pool: pool,
		flow: flow,
		close: func() {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i]()
			}
			if z, ok := log.(*logger.ZapLogger); ok {
				_ = z.Sync()
			}
		},
	}, nil
}

func serveMetrics(addr string, log logger.Logger) (metrics.Recorder, func(), error) {
	reg := prometheus.NewRegistry()
	recorder, err := metrics.NewPrometheusRecorder(reg)
	if err != nil {
		return nil, nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server stopped", map[string]any{"error": err.Error()})
		}
	}()

	return recorder, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

// session opens a key session on chain using the key named by --key-env.
func (e *env) session(chain types.ChainID) (*wallet.KeySession, error) {
	raw := os.Getenv(keyEnv)
	if raw == "" {
		return nil, fmt.Errorf("%s is not set", keyEnv)
	}
	key, err := utils.PrivateKeyFromHex(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid private key in %s: %w", keyEnv, err)
	}

	backends := make(map[types.ChainID]wallet.Backend)
	for _, id := range e.pool.Chains() {
		client, err := e.pool.Client(id)
		if err != nil {
			return nil, err
		}
		backends[id] = client
	}
	return wallet.NewKeySession(key, backends, chain, wallet.WithLogger(e.log))
}

func parseChain(s string) (types.ChainID, error) {
	if s == "" {
		return 0, errors.New("chain is required")
	}
	return utils.ParseChainID(s)
}

func printJSON(v any) error {
	data, err := utils.NormalizeJSON(v)
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func printSuccess(format string, args ...any) {
	color.Green("\n"+format+"\n", args...)
}

func printField(label string, value any) {
	fmt.Printf("  %-14s %v\n", label+":", value)
}

func describeError(err error) string {
	var coded *types.Error
	if errors.As(err, &coded) {
		return fmt.Sprintf("[%s] %s", coded.Code, coded.Message)
	}
	return err.Error()
}
