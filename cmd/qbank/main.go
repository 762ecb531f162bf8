package main

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"qbank/internal/app"
	"qbank/internal/auth"
	internaldb "qbank/internal/db"
	"qbank/internal/exam"
	"qbank/internal/export"
	"qbank/internal/logger"
	"qbank/internal/question"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "qbank",
		Short:        "Exam question bank: selection and Moodle/Aiken export",
		SilenceUsage: true,
	}
	pf := root.PersistentFlags()
	pf.String("dsn", "", "Postgres DSN (or QBANK_DB_DSN)")
	pf.String("log-level", "", "Log level (debug, info, warn, error)")
	pf.String("storage-dir", "", "Directory holding uploaded question images")

	root.AddCommand(serveCmd(), migrateCmd(), exportCmd(), apikeyCmd())
	return root
}

// env bundles what every subcommand needs once config is resolved.
type env struct {
	cfg app.Config
	log *logger.Logger
	db  *sql.DB
}

func (e *env) Close() {
	if e.db != nil {
		_ = e.db.Close()
	}
	e.log.Sync()
}

func setup(cmd *cobra.Command, withDB bool) (*env, error) {
	v, err := app.NewViper()
	if err != nil {
		return nil, err
	}
	bindFlags(v, cmd.Flags(), map[string]string{
		"dsn":         "db_dsn",
		"log-level":   "log_level",
		"storage-dir": "storage_dir",
		"addr":        "http_addr",
	})
	cfg := app.LoadConfig(v)

	log, err := logger.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	if used := v.ConfigFileUsed(); used != "" {
		log.Info("loaded config file", "path", used)
	}

	out := &env{cfg: cfg, log: log}
	if !withDB {
		return out, nil
	}
	out.db, err = internaldb.Open(cmd.Context(), cfg.DBDSN, internaldb.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime(),
	})
	if err != nil {
		log.Sync()
		return nil, err
	}
	return out, nil
}

// bindFlags maps explicitly set flags onto config keys so they win over the
// environment and the config file.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet, keys map[string]string) {
	for flagName, key := range keys {
		if f := fs.Lookup(flagName); f != nil && f.Changed {
			_ = v.BindPFlag(key, f)
		}
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE:  runServe,
	}
	cmd.Flags().StringP("addr", "a", "", "HTTP listen address (or QBANK_HTTP_ADDR)")
	cmd.Flags().Bool("migrate", false, "Apply the schema before serving")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	e, err := setup(cmd, true)
	if err != nil {
		return err
	}
	defer e.Close()

	if migrate, _ := cmd.Flags().GetBool("migrate"); migrate {
		if err := internaldb.Migrate(cmd.Context(), e.db); err != nil {
			return err
		}
		e.log.Info("schema applied")
	}
	if e.cfg.JWTSecret == "" {
		e.log.Warn("jwt_secret is empty; only API keys will authenticate")
	}

	handler, err := app.NewRouter(e.cfg, e.db, e.log)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              e.cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		e.log.Info("qbank listening", "addr", e.cfg.HTTPAddr, "env", e.cfg.AppEnv, "timezone", e.cfg.Timezone)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
	}

	e.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(cmd, true)
			if err != nil {
				return err
			}
			defer e.Close()
			if err := internaldb.Migrate(cmd.Context(), e.db); err != nil {
				return err
			}
			e.log.Info("schema applied")
			return nil
		},
	}
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export an exam's selected questions",
	}

	moodle := &cobra.Command{
		Use:   "moodle",
		Short: "Write the selection as Moodle XML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExport(cmd, "moodle")
		},
	}
	aiken := &cobra.Command{
		Use:   "aiken",
		Short: "Write the selection in Aiken format",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExport(cmd, "aiken")
		},
	}
	aiken.Flags().Bool("verify", false, "Parse the output back before writing it")

	for _, c := range []*cobra.Command{moodle, aiken} {
		f := c.Flags()
		f.Int64("exam-id", 0, "Exam id (required)")
		f.StringP("output", "o", "-", "Output file path (- for stdout)")
		f.Int64("as-user", 0, "Export as this user id; omitted means a superuser operator")
		f.Bool("superuser", false, "Treat --as-user as a superuser")
		f.Bool("staff", false, "Treat --as-user as staff")
		_ = c.MarkFlagRequired("exam-id")
		cmd.AddCommand(c)
	}
	return cmd
}

func runExport(cmd *cobra.Command, format string) error {
	e, err := setup(cmd, true)
	if err != nil {
		return err
	}
	defer e.Close()
	ctx := cmd.Context()

	loc, err := e.cfg.Location()
	if err != nil {
		return err
	}
	examID, _ := cmd.Flags().GetInt64("exam-id")
	actor, err := cliActor(ctx, cmd, auth.NewService(e.db, auth.NewTokenVerifier(e.cfg.JWTSecret, e.cfg.JWTIssuer)))
	if err != nil {
		return err
	}

	images := export.FileImageLoader{Images: question.NewService(e.db, e.cfg.StorageDir), StorageDir: e.cfg.StorageDir}
	svc := export.NewService(e.db, exam.NewService(e.db, loc), images, e.log)

	var buf bytes.Buffer
	var n int
	switch format {
	case "moodle":
		n, err = svc.Moodle(ctx, actor, examID, &buf)
	default:
		n, err = svc.Aiken(ctx, actor, examID, &buf)
	}
	if err != nil {
		return fmt.Errorf("export %s: %w", format, err)
	}

	if verify, _ := cmd.Flags().GetBool("verify"); verify {
		parsed, err := export.ParseAiken(bytes.NewReader(buf.Bytes()))
		if err != nil {
			return fmt.Errorf("verify aiken: %w", err)
		}
		e.log.Info("aiken output verified", "questions", len(parsed), "skipped", n-len(parsed))
	}

	output, _ := cmd.Flags().GetString("output")
	if err := writeOutput(output, buf.Bytes()); err != nil {
		return err
	}
	e.log.Info("export written", "format", format, "exam_id", examID, "items", n, "output", output)
	return nil
}

func cliActor(ctx context.Context, cmd *cobra.Command, svc *auth.Service) (*auth.Actor, error) {
	userID, _ := cmd.Flags().GetInt64("as-user")
	superuser, _ := cmd.Flags().GetBool("superuser")
	staff, _ := cmd.Flags().GetBool("staff")
	if userID == 0 {
		return &auth.Actor{UserID: operatorUserID, Username: "cli", IsSuperuser: true, Source: "cli"}, nil
	}
	return svc.LoadActor(ctx, userID, superuser, staff)
}

// operatorUserID stands in for the shell user when no --as-user is given.
const operatorUserID = 1

func writeOutput(path string, data []byte) error {
	if path == "" || path == "-" {
		if _, err := os.Stdout.Write(data); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	_, writeErr := f.Write(data)
	closeErr := f.Close()
	if writeErr != nil {
		return fmt.Errorf("write output: %w", writeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close output file: %w", closeErr)
	}
	return nil
}

func apikeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys for automation clients",
	}

	create := &cobra.Command{
		Use:   "create",
		Short: "Create an API key and print it once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(cmd, true)
			if err != nil {
				return err
			}
			defer e.Close()

			userID, _ := cmd.Flags().GetInt64("user-id")
			label, _ := cmd.Flags().GetString("label")
			superuser, _ := cmd.Flags().GetBool("superuser")
			staff, _ := cmd.Flags().GetBool("staff")

			svc := auth.NewService(e.db, auth.NewTokenVerifier(e.cfg.JWTSecret, e.cfg.JWTIssuer))
			key, meta, err := svc.CreateAPIKey(cmd.Context(), auth.CreateAPIKeyInput{
				UserID:      userID,
				Label:       label,
				IsSuperuser: superuser,
				IsStaff:     staff,
			})
			if err != nil {
				return err
			}
			e.log.Info("api key created", "prefix", meta.Prefix, "user_id", meta.UserID, "label", meta.Label)
			_, err = fmt.Fprintln(cmd.OutOrStdout(), key)
			return err
		},
	}
	cf := create.Flags()
	cf.Int64("user-id", 0, "Identity provider user id the key acts as (required)")
	cf.String("label", "", "Human readable label (required)")
	cf.Bool("superuser", false, "Grant superuser rights")
	cf.Bool("staff", false, "Grant staff rights")
	_ = create.MarkFlagRequired("user-id")
	_ = create.MarkFlagRequired("label")

	revoke := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke an API key by prefix",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(cmd, true)
			if err != nil {
				return err
			}
			defer e.Close()
			prefix, _ := cmd.Flags().GetString("prefix")
			svc := auth.NewService(e.db, auth.NewTokenVerifier(e.cfg.JWTSecret, e.cfg.JWTIssuer))
			if err := svc.RevokeAPIKey(cmd.Context(), prefix); err != nil {
				return err
			}
			e.log.Info("api key revoked", "prefix", prefix)
			return nil
		},
	}
	revoke.Flags().String("prefix", "", "Key prefix (required)")
	_ = revoke.MarkFlagRequired("prefix")

	cmd.AddCommand(create, revoke)
	return cmd
}
