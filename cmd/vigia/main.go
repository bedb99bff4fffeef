package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "vigia",
		Usage:   "moderation pipeline daemon for citizen incident reports",
		Version: versioninfo.Short(),
	}

	app.Commands = []*cli.Command{
		runCmd,
	}

	return app.Run(args)
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "run the service",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "database-url",
			Value:   "sqlite://data/vigia/moderation.db",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.IntFlag{
			Name:    "max-db-connections",
			EnvVars: []string{"MAX_DB_CONNECTIONS"},
			Value:   40,
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis connection URL for counters, caches and flags; in-memory stores when empty",
			EnvVars: []string{"VIGIA_REDIS_URL", "REDIS_URL"},
		},
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "IP or address, and port, to listen on for HTTP APIs",
			Value:   ":3950",
			EnvVars: []string{"VIGIA_BIND"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs",
			Value:   ":3951",
			EnvVars: []string{"VIGIA_METRICS_LISTEN"},
		},
		&cli.StringFlag{
			Name:    "slack-webhook-url",
			Usage:   "webhook URL for escalation notifications",
			EnvVars: []string{"SLACK_WEBHOOK_URL"},
		},
		&cli.StringFlag{
			Name:    "role-host",
			Usage:   "base URL of the role directory service; static citizen-only roles when empty",
			EnvVars: []string{"VIGIA_ROLE_HOST"},
		},
		&cli.StringFlag{
			Name:    "report-lexicons-json",
			Usage:   "path of JSON file with lexicon overrides for incident report scoring",
			EnvVars: []string{"VIGIA_REPORT_LEXICONS_JSON"},
		},
		&cli.StringFlag{
			Name:    "chat-lexicons-json",
			Usage:   "path of JSON file with lexicon overrides for chat message scoring",
			EnvVars: []string{"VIGIA_CHAT_LEXICONS_JSON"},
		},
		&cli.BoolFlag{
			Name:    "sync-scoring",
			Usage:   "score submissions inline instead of through the async worker",
			EnvVars: []string{"VIGIA_SYNC_SCORING"},
		},
		&cli.IntFlag{
			Name:    "scoring-rate-limit",
			Usage:   "max scoring operations per second for the async worker",
			Value:   20,
			EnvVars: []string{"VIGIA_SCORING_RATE_LIMIT"},
		},
		&cli.IntFlag{
			Name:    "submission-quota-hour",
			Usage:   "max submissions per author per hour (0 to disable)",
			Value:   30,
			EnvVars: []string{"VIGIA_SUBMISSION_QUOTA_HOUR"},
		},
		&cli.IntFlag{
			Name:    "report-quota-day",
			Usage:   "max abuse reports per reporter per day (0 to disable)",
			Value:   50,
			EnvVars: []string{"VIGIA_REPORT_QUOTA_DAY"},
		},
		&cli.IntFlag{
			Name:    "escalation-quota-day",
			Usage:   "max escalation notifications per day (0 to disable)",
			Value:   100,
			EnvVars: []string{"VIGIA_ESCALATION_QUOTA_DAY"},
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx := context.Background()
		logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
		slog.SetDefault(logger)

		// Enable OTLP HTTP exporter
		// For relevant environment variables:
		// https://pkg.go.dev/go.opentelemetry.io/otel/exporters/otlp/otlptrace#readme-environment-variables
		// At a minimum, you need to set
		// OTEL_EXPORTER_OTLP_ENDPOINT=http://localhost:4318
		if ep := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); ep != "" {
			slog.Info("setting up trace exporter", "endpoint", ep)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			exp, err := otlptracehttp.New(ctx)
			if err != nil {
				log.Fatal("failed to create trace exporter", "error", err)
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				if err := exp.Shutdown(ctx); err != nil {
					slog.Error("failed to shutdown trace exporter", "error", err)
				}
			}()

			tp := tracesdk.NewTracerProvider(
				tracesdk.WithBatcher(exp),
				tracesdk.WithResource(resource.NewWithAttributes(
					semconv.SchemaURL,
					semconv.ServiceNameKey.String("vigia"),
					attribute.String("env", os.Getenv("ENVIRONMENT")),         // DataDog
					attribute.String("environment", os.Getenv("ENVIRONMENT")), // Others
					attribute.Int64("ID", 1),
				)),
			)
			otel.SetTracerProvider(tp)
		}

		srv, err := NewServer(Config{
			Logger:             logger,
			DatabaseURL:        cctx.String("database-url"),
			MaxDBConnections:   cctx.Int("max-db-connections"),
			RedisURL:           cctx.String("redis-url"),
			Bind:               cctx.String("bind"),
			SlackWebhookURL:    cctx.String("slack-webhook-url"),
			RoleHost:           cctx.String("role-host"),
			ReportLexiconsJSON: cctx.String("report-lexicons-json"),
			ChatLexiconsJSON:   cctx.String("chat-lexicons-json"),
			SyncScoring:        cctx.Bool("sync-scoring"),
			ScoringRateLimit:   cctx.Int("scoring-rate-limit"),
			SubmissionQuota:    cctx.Int("submission-quota-hour"),
			ReportQuota:        cctx.Int("report-quota-day"),
			EscalationQuota:    cctx.Int("escalation-quota-day"),
		})
		if err != nil {
			return err
		}

		go func() {
			if err := srv.RunMetrics(cctx.String("metrics-listen")); err != nil {
				slog.Error("failed to start metrics endpoint", "error", err)
				panic(fmt.Errorf("failed to start metrics endpoint: %w", err))
			}
		}()

		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("failed to run moderation service: %w", err)
		}
		return nil
	},
}
