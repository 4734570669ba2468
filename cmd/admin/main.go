package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"outreach/internal/bootstrap"
	"outreach/internal/config"
	"outreach/internal/logger"
	"outreach/internal/pubsub"
	"outreach/internal/repository"
	"outreach/internal/secrets"
	"outreach/internal/service"

	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

func main() {
	// Parse mode flag
	mode := flag.String("mode", "", "Admin mode: migrate|reset-credits|resume|setup-pubsub|set-secret|token")
	jobID := flag.String("job", "", "resume: job id")
	profileID := flag.String("profile", "", "resume: profile id, defaults to the one recorded on the job")
	directURL := flag.String("url", "", "resume: finished video URL to store instead of polling")
	secretName := flag.String("name", "", "set-secret: secret name ("+secrets.ApifyTokenSecret+", "+secrets.HeyGenAPIKeySecret+" or "+secrets.AnthropicKeySecret+")")
	secretValue := flag.String("value", "", "set-secret: secret value")
	account := flag.String("account", "", "token: account id to put in the subject")
	email := flag.String("email", "", "token: email claim")
	ttl := flag.Duration("ttl", 24*time.Hour, "token: lifetime")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		logger.New().Warn().Msg("Warning: no .env file found")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.New().Fatal().Msgf("Error loading config: %v", err)
	}
	logger := logger.NewWithLevel(cfg.LogLevel).With().Str("mode", *mode).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch *mode {
	case "migrate":
		err = migrate(ctx, cfg, logger)
	case "reset-credits":
		err = resetCredits(ctx, cfg, logger)
	case "resume":
		err = resume(ctx, cfg, *jobID, *profileID, *directURL, logger)
	case "setup-pubsub":
		err = setupPubSub(ctx, cfg, logger)
	case "set-secret":
		err = setSecret(ctx, cfg, *secretName, *secretValue, logger)
	case "token":
		err = issueToken(cfg, *account, *email, *ttl)
	default:
		logger.Fatal().Msgf("Unknown mode %q", *mode)
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("Admin command failed")
	}
}

func migrate(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	store, err := bootstrap.OpenStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	store.Close()
	logger.Info().Msg("Schema is up to date")
	return nil
}

// resetCredits runs the monthly reset. Schedule it on the first day of each month.
func resetCredits(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	svcs, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svcs.Close(context.Background(), logger)

	n, err := svcs.Credits.ResetAll(ctx, bootstrap.MonthlyAllowance(cfg), time.Now().UTC())
	if err != nil {
		return err
	}
	logger.Info().Int("accounts", n).Msg("Monthly credits reset")
	return nil
}

// resume finishes a video job that lost its poller, typically after a crash or a
// poll timeout. The provider is never asked to render again.
func resume(ctx context.Context, cfg *config.Config, jobID, profileID, directURL string, logger zerolog.Logger) error {
	if jobID == "" {
		return errors.New("-job is required")
	}
	svcs, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svcs.Close(context.Background(), logger)

	job, err := svcs.Store.FindJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("job %s not found", jobID)
		}
		return err
	}
	resumed, err := svcs.Video.ResumeVideoGeneration(ctx, job.AccountID, job.ID, profileID, service.ResumeOptions{DirectURL: directURL})
	if err != nil {
		return err
	}
	logger.Info().
		Str("account_id", resumed.AccountID).
		Str("job_id", resumed.ID).
		Str("status", string(resumed.Status)).
		Msg("Video job resumed")
	return nil
}

func setupPubSub(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	if cfg.PubSubEmulatorHost == "" {
		logger.Warn().Msg("PUBSUB_EMULATOR_HOST is not set, creating the topic in the real project")
	}
	pub, err := pubsub.NewPublisher(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := pub.Close(); err != nil {
			logger.Error().Msgf("Failed to close pubsub client: %v", err)
		}
	}()

	if err := pub.EnsureTopic(ctx, cfg.PubSubJobEventsTopic); err != nil {
		return err
	}
	logger.Info().Str("topic", cfg.PubSubJobEventsTopic).Msg("Pub/Sub topic ready")
	return nil
}

func setSecret(ctx context.Context, cfg *config.Config, name, value string, logger zerolog.Logger) error {
	switch name {
	case secrets.ApifyTokenSecret, secrets.HeyGenAPIKeySecret, secrets.AnthropicKeySecret:
	default:
		return fmt.Errorf("unknown secret %q", name)
	}
	if value == "" {
		return errors.New("-value is required")
	}
	sm, err := secrets.NewSecretManager(cfg)
	if err != nil {
		return err
	}
	if err := sm.Put(ctx, name, value); err != nil {
		return err
	}
	logger.Info().Str("secret", name).Msg("Secret version added")
	return nil
}

// issueToken prints a signed bearer token for local testing.
func issueToken(cfg *config.Config, account, email string, ttl time.Duration) error {
	if account == "" {
		return errors.New("-account is required")
	}
	claims := jwt.MapClaims{
		"sub": account,
		"exp": time.Now().Add(ttl).Unix(),
		"iat": time.Now().Unix(),
	}
	if email != "" {
		claims["email"] = email
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
	if err != nil {
		return fmt.Errorf("signing token: %w", err)
	}
	fmt.Fprintln(os.Stdout, token)
	return nil
}
