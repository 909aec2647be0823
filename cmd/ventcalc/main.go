package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ventcalc/ventcalc/internal/config"
	"github.com/ventcalc/ventcalc/internal/domain/ventilation"
	"github.com/ventcalc/ventcalc/internal/platform/auth"
	"github.com/ventcalc/ventcalc/internal/platform/db"
	"github.com/ventcalc/ventcalc/internal/platform/events"
	"github.com/ventcalc/ventcalc/internal/platform/metrics"
	"github.com/ventcalc/ventcalc/internal/platform/middleware"
	"github.com/ventcalc/ventcalc/internal/platform/openapi"
)

const apiVersion = "1.0.0"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "ventcalc",
		Short:        "Ventilator settings calculator",
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(predictCmd())
	root.AddCommand(adjustCmd())
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the calculator API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}
	if cfg.IsDev() {
		logger.Warn().Msg("ENV=development: every request is served as admin without a token")
	}

	ctx := context.Background()

	// History storage
	var (
		history ventilation.CalculationRepository
		pinger  db.Pinger
	)
	if cfg.HasDatabase() {
		pool, err := db.NewPool(ctx, db.PoolConfig{
			URL:      cfg.DatabaseURL,
			MaxConns: cfg.DBMaxConns,
			MinConns: cfg.DBMinConns,
			Schema:   cfg.DBSchema,
		})
		if err != nil {
			logger.Error().Err(err).Msg("failed to connect to database")
			return err
		}
		defer pool.Close()
		history = ventilation.NewCalculationRepoPG(pool)
		pinger = pool
		logger.Info().Str("schema", cfg.DBSchema).Msg("connected to database")
	} else {
		history = ventilation.NewCalculationRepoMemory()
		logger.Warn().Msg("DATABASE_URL not set, calculation history is kept in memory")
	}

	opts := []ventilation.Option{ventilation.WithLogger(logger)}
	if cfg.HasBroker() {
		pub := events.NewPublisher(events.Config{URL: cfg.AMQPURL, Queue: cfg.AMQPQueue}, logger)
		defer pub.Close()
		opts = append(opts, ventilation.WithPublisher(pub))
		logger.Info().Str("queue", cfg.AMQPQueue).Msg("publishing calculations to AMQP")
	}

	e, svc := newServer(cfg, logger, history, pinger, opts...)

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go sweepWorksheets(sweepCtx, svc, cfg.WorksheetIdleTTL)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newServer wires the HTTP surface. pinger is nil when history is in memory.
func newServer(cfg *config.Config, logger zerolog.Logger, history ventilation.CalculationRepository, pinger db.Pinger, opts ...ventilation.Option) (*echo.Echo, *ventilation.Service) {
	m := metrics.New()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(m.Middleware())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(pinger))
	e.GET("/metrics", echo.WrapHandler(m.Handler()))
	openapi.NewGenerator(apiVersion, "/api/v1").RegisterRoutes(e.Group("/api"))

	// Auth middleware
	apiV1 := e.Group("/api/v1", middleware.SecurityHeaders())
	if cfg.IsDev() {
		apiV1.Use(auth.DevAuthMiddleware())
	} else {
		apiV1.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.AuthSigningKey),
		}))
	}

	opts = append(opts, ventilation.WithObserver(m))
	calc := ventilation.NewCalculator(ventilation.DefaultFactors())
	svc := ventilation.NewService(calc, history, ventilation.NewWorksheetStore(), opts...)
	ventilation.NewHandler(svc).RegisterRoutes(apiV1)

	return e, svc
}

// sweepWorksheets evicts idle worksheets until ctx is done. It checks every
// minute, or every ttl when that is shorter.
func sweepWorksheets(ctx context.Context, svc *ventilation.Service, ttl time.Duration) {
	ticker := time.NewTicker(min(ttl, time.Minute))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			svc.SweepWorksheets(ttl)
		}
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	openMigrator := func(cmd *cobra.Command) (*db.Migrator, func(), error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, nil, err
		}
		if !cfg.HasDatabase() {
			return nil, nil, fmt.Errorf("DATABASE_URL is required for migrations")
		}
		dir, _ := cmd.Flags().GetString("dir")
		if dir == "" {
			dir = cfg.MigrationsDir
		}
		ctx := cmd.Context()
		pool, err := db.NewPool(ctx, db.PoolConfig{
			URL:      cfg.DatabaseURL,
			MaxConns: cfg.DBMaxConns,
			MinConns: cfg.DBMinConns,
			Schema:   cfg.DBSchema,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := db.EnsureSchema(ctx, pool, cfg.DBSchema); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return db.NewMigrator(pool, dir, cfg.DBSchema), pool.Close, nil
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrator, closeFn, err := openMigrator(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			count, err := migrator.Up(cmd.Context())
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrator, closeFn, err := openMigrator(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			statuses, err := migrator.Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Fprintln(out, "---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(statusCmd)

	return cmd
}

// tvOptionFlag maps the --tv flag to a selection option.
func tvOptionFlag(s string) (ventilation.TidalVolumeOption, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", nil
	case "6":
		return ventilation.Option6, nil
	case "7":
		return ventilation.Option7, nil
	case "8":
		return ventilation.Option8, nil
	case "custom":
		return ventilation.Custom, nil
	}
	return ventilation.ParseTidalVolumeOption(s)
}

func predictCmd() *cobra.Command {
	var (
		height, weight, customTV            float64
		heightUnit, weightUnit, sex, tvFlag string
	)
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Compute IBW, tidal volumes, BSA, minute ventilation and respiratory rate",
		RunE: func(cmd *cobra.Command, args []string) error {
			hu, err := ventilation.ParseUnit(heightUnit, ventilation.FamilyLength)
			if err != nil {
				return err
			}
			wu, err := ventilation.ParseUnit(weightUnit, ventilation.FamilyMass)
			if err != nil {
				return err
			}
			sx, err := ventilation.ParseSex(sex)
			if err != nil {
				return err
			}
			opt, err := tvOptionFlag(tvFlag)
			if err != nil {
				return err
			}

			calc := ventilation.NewCalculator(ventilation.DefaultFactors())
			d := calc.Recompute(ventilation.PatientInputs{
				Height: ventilation.Measurement{Value: height, Unit: hu},
				Weight: ventilation.Measurement{Value: weight, Unit: wu},
				Sex:    sx,
			}, ventilation.TidalVolumeSelection{Option: opt, CustomML: customTV})
			disp := ventilation.DisplayPrediction(d)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "IBW (kg):          %s\n", disp.IBW)
			fmt.Fprintf(out, "TV 6 mL/kg (mL):   %s\n", disp.TV6)
			fmt.Fprintf(out, "TV 7 mL/kg (mL):   %s\n", disp.TV7)
			fmt.Fprintf(out, "TV 8 mL/kg (mL):   %s\n", disp.TV8)
			fmt.Fprintf(out, "BSA (m2):          %s\n", disp.BSA)
			fmt.Fprintf(out, "MV (L/min):        %s\n", disp.PredictedMV)
			fmt.Fprintf(out, "RR (breaths/min):  %s\n", disp.PredictedRR)
			for _, w := range disp.Warnings {
				fmt.Fprintf(out, "warning: %s\n", w)
			}
			return nil
		},
	}
	cmd.Flags().Float64Var(&height, "height", 0, "Patient height")
	cmd.Flags().StringVar(&heightUnit, "height-unit", "cm", "Height unit (cm|in)")
	cmd.Flags().Float64Var(&weight, "weight", 0, "Patient weight")
	cmd.Flags().StringVar(&weightUnit, "weight-unit", "kg", "Weight unit (kg|lb)")
	cmd.Flags().StringVar(&sex, "sex", "M", "Patient sex (M|F)")
	cmd.Flags().StringVar(&tvFlag, "tv", "", "Tidal volume for the RR prediction (6|7|8|custom)")
	cmd.Flags().Float64Var(&customTV, "custom-tv", 0, "Custom tidal volume in mL, used with --tv custom")
	return cmd
}

func adjustCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "adjust",
		Short: "Adjust respiratory rate or tidal volume toward a target PaCO2",
	}

	var rr, rrCurrent, rrDesired float64
	rrCmd := &cobra.Command{
		Use:   "rr",
		Short: "Adjusted respiratory rate",
		RunE: func(cmd *cobra.Command, args []string) error {
			calc := ventilation.NewCalculator(ventilation.DefaultFactors())
			v := calc.AdjustRespiratoryRate(ventilation.RRAdjustment{
				CurrentRR:    rr,
				CurrentPaCO2: rrCurrent,
				DesiredPaCO2: rrDesired,
			})
			fmt.Fprintf(cmd.OutOrStdout(), "Adjusted RR (breaths/min): %s\n", ventilation.Format2(v))
			return nil
		},
	}
	rrCmd.Flags().Float64Var(&rr, "current-rr", 0, "Current respiratory rate")
	rrCmd.Flags().Float64Var(&rrCurrent, "current-paco2", 0, "Current PaCO2")
	rrCmd.Flags().Float64Var(&rrDesired, "desired-paco2", 0, "Desired PaCO2")
	cmd.AddCommand(rrCmd)

	var (
		tv, tvCurrent, tvDesired float64
		inUnit, outUnit          string
	)
	tvCmd := &cobra.Command{
		Use:   "tv",
		Short: "Adjusted tidal volume",
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := ventilation.ParseUnit(inUnit, ventilation.FamilyVolume)
			if err != nil {
				return err
			}
			out, err := ventilation.ParseUnit(outUnit, ventilation.FamilyVolume)
			if err != nil {
				return err
			}
			calc := ventilation.NewCalculator(ventilation.DefaultFactors())
			res := calc.AdjustTidalVolume(ventilation.TVAdjustment{
				CurrentTV:    tv,
				InputUnit:    in,
				CurrentPaCO2: tvCurrent,
				DesiredPaCO2: tvDesired,
				OutputUnit:   out,
			})
			fmt.Fprintf(cmd.OutOrStdout(), "Adjusted TV (%s): %s\n", res.Unit, ventilation.Format2(res.AdjustedTV))
			return nil
		},
	}
	tvCmd.Flags().Float64Var(&tv, "current-tv", 0, "Current tidal volume")
	tvCmd.Flags().StringVar(&inUnit, "in-unit", "mL", "Unit of --current-tv (mL|L)")
	tvCmd.Flags().Float64Var(&tvCurrent, "current-paco2", 0, "Current PaCO2")
	tvCmd.Flags().Float64Var(&tvDesired, "desired-paco2", 0, "Desired PaCO2")
	tvCmd.Flags().StringVar(&outUnit, "out-unit", "mL", "Unit of the result (mL|L)")
	cmd.AddCommand(tvCmd)

	return cmd
}
