package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MarkoPoloResearchLab/pointsledger/internal/httpapi"
	"github.com/MarkoPoloResearchLab/pointsledger/internal/notify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	flagDatabaseURL       = "database-url"
	flagStoreDriver       = "store-driver"
	flagListenAddr        = "listen-addr"
	flagGRPCListenAddr    = "grpc-listen-addr"
	flagAllowedOrigins    = "allowed-origins"
	flagRequestTimeout    = "request-timeout"
	flagRedisAddr         = "redis-addr"
	flagRedisPassword     = "redis-password"
	flagRedisDB           = "redis-db"
	flagNotifyChannel     = "notify-channel"
	flagNotifyWorkers     = "notify-workers"
	flagNotifyQueueSize   = "notify-queue-size"
	flagCashoutFeePercent = "cashout-fee-percent"
	flagMaxAttempts       = "max-attempts"
	flagHealthInterval    = "health-interval"
	flagLogDevelopment    = "log-development"
	envPrefix             = "POINTSD"

	storeDriverGorm = "gorm"
	storeDriverPgx  = "pgx"

	defaultDatabaseURL    = "sqlite:///tmp/pointsd.db"
	defaultListenAddr     = ":8080"
	defaultGRPCListenAddr = ":7000"
	defaultAllowedOrigins = "http://localhost:8000"
	defaultMaxAttempts    = 5
	defaultHealthInterval = 10 * time.Second
)

type runtimeConfig struct {
	DatabaseURL       string
	StoreDriver       string
	GRPCListenAddr    string
	CashoutFeePercent string
	MaxAttempts       int
	HealthInterval    time.Duration
	LogDevelopment    bool
	HTTP              httpapi.Config
	Notify            notify.Config
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "pointsd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "pointsd",
		Short:         "Points wallet ledger server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	cmd.Flags().String(flagDatabaseURL, defaultDatabaseURL, "postgres://, sqlite:// or memory:// store location")
	cmd.Flags().String(flagStoreDriver, storeDriverGorm, "store implementation: gorm or pgx (pgx requires postgres)")
	cmd.Flags().String(flagListenAddr, defaultListenAddr, "HTTP listen address")
	cmd.Flags().String(flagGRPCListenAddr, defaultGRPCListenAddr, "gRPC health listen address (empty disables)")
	cmd.Flags().String(flagAllowedOrigins, defaultAllowedOrigins, "comma-separated list of allowed CORS origins")
	cmd.Flags().Duration(flagRequestTimeout, 5*time.Second, "per-request ledger timeout")
	cmd.Flags().String(flagRedisAddr, "", "redis address for notification fan-out (empty disables)")
	cmd.Flags().String(flagRedisPassword, "", "redis password")
	cmd.Flags().Int(flagRedisDB, 0, "redis database number")
	cmd.Flags().String(flagNotifyChannel, "points:notifications", "redis pub/sub channel for notifications")
	cmd.Flags().Int(flagNotifyWorkers, 2, "notification worker goroutines")
	cmd.Flags().Int(flagNotifyQueueSize, 256, "notification queue capacity")
	cmd.Flags().String(flagCashoutFeePercent, "0", "cashout fee percentage")
	cmd.Flags().Int(flagMaxAttempts, defaultMaxAttempts, "optimistic retry budget per ledger operation")
	cmd.Flags().Duration(flagHealthInterval, defaultHealthInterval, "store health check interval")
	cmd.Flags().Bool(flagLogDevelopment, false, "use the development logger")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for _, flagName := range []string{
		flagDatabaseURL, flagStoreDriver, flagListenAddr, flagGRPCListenAddr, flagAllowedOrigins,
		flagRequestTimeout, flagRedisAddr, flagRedisPassword, flagRedisDB, flagNotifyChannel,
		flagNotifyWorkers, flagNotifyQueueSize, flagCashoutFeePercent, flagMaxAttempts,
		flagHealthInterval, flagLogDevelopment,
	} {
		if err := v.BindPFlag(flagName, cmd.Flags().Lookup(flagName)); err != nil {
			return err
		}
	}

	cfg.DatabaseURL = strings.TrimSpace(v.GetString(flagDatabaseURL))
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(v.GetString(flagStoreDriver)))
	cfg.GRPCListenAddr = strings.TrimSpace(v.GetString(flagGRPCListenAddr))
	cfg.CashoutFeePercent = v.GetString(flagCashoutFeePercent)
	cfg.MaxAttempts = v.GetInt(flagMaxAttempts)
	cfg.HealthInterval = v.GetDuration(flagHealthInterval)
	cfg.LogDevelopment = v.GetBool(flagLogDevelopment)
	cfg.HTTP = httpapi.Config{
		ListenAddr:     v.GetString(flagListenAddr),
		AllowedOrigins: httpapi.ParseAllowedOrigins(v.GetString(flagAllowedOrigins)),
		RequestTimeout: v.GetDuration(flagRequestTimeout),
	}
	cfg.Notify = notify.Config{
		Workers:       v.GetInt(flagNotifyWorkers),
		QueueSize:     v.GetInt(flagNotifyQueueSize),
		Channel:       v.GetString(flagNotifyChannel),
		RedisAddr:     v.GetString(flagRedisAddr),
		RedisPassword: v.GetString(flagRedisPassword),
		RedisDB:       v.GetInt(flagRedisDB),
	}
	return cfg.validate()
}

func (cfg *runtimeConfig) validate() error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("%s is required", flagDatabaseURL)
	}
	if cfg.StoreDriver != storeDriverGorm && cfg.StoreDriver != storeDriverPgx {
		return fmt.Errorf("unsupported %s %q", flagStoreDriver, cfg.StoreDriver)
	}
	if _, err := resolveStoreTarget(cfg.DatabaseURL, cfg.StoreDriver); err != nil {
		return err
	}
	if cfg.MaxAttempts <= 0 {
		return fmt.Errorf("%s must be positive", flagMaxAttempts)
	}
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = defaultHealthInterval
	}
	if err := cfg.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}
	if err := cfg.Notify.Validate(); err != nil {
		return fmt.Errorf("notify config: %w", err)
	}
	return nil
}
