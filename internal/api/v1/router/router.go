package router

import (
	"net/http"
	"os"
	"strings"

	"outreach/internal/api/v1/handler"
	"outreach/internal/bootstrap"
	"outreach/internal/config"
	"outreach/internal/middleware"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// New builds the HTTP surface on top of already wired services. The API lives under /v1.
func New(cfg *config.Config, svcs *bootstrap.Services, logger zerolog.Logger) http.Handler {
	jobHandler := handler.NewJobHandler(svcs.Scraping, svcs.Video, svcs.Jobs, logger)
	creditHandler := handler.NewCreditHandler(svcs.Credits, bootstrap.MonthlyAllowance(cfg), logger)
	profileHandler := handler.NewProfileHandler(svcs.Profiles, logger)
	scriptHandler := handler.NewScriptHandler(svcs.Scripts, logger)

	authMiddleware := middleware.AuthMiddleware(cfg.JWTSecret, logger)
	adminMiddleware := middleware.AdminOnly(cfg.AdminEmail, logger)

	apiRouter, api := SetupHumaAPI(cfg, authMiddleware, adminMiddleware, logger)
	RegisterRoutes(api, jobHandler, creditHandler, profileHandler, scriptHandler, logger)

	root := chi.NewRouter()
	root.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	root.Mount("/v1", apiRouter)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})
	return middleware.LoggerMiddleware(logger)(c.Handler(root))
}

// SetupHumaAPI creates a Huma API instance
func SetupHumaAPI(
	cfg *config.Config,
	authMiddleware func(http.Handler) http.Handler,
	adminMiddleware func(http.Handler) http.Handler,
	logger zerolog.Logger,
) (*chi.Mux, huma.API) {
	chiRouter := chi.NewRouter()

	// Apply middleware based on path
	chiRouter.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := strings.TrimPrefix(r.URL.Path, "/v1")
			// Skip all auth for OpenAPI docs endpoint
			if path == "/openapi.json" || path == "/openapi.yaml" || path == "/docs" || strings.HasPrefix(path, "/schemas") {
				next.ServeHTTP(w, r)
				return
			}
			if strings.HasPrefix(path, "/admin/") {
				authMiddleware(adminMiddleware(next)).ServeHTTP(w, r)
				return
			}
			authMiddleware(next).ServeHTTP(w, r)
		})
	})

	// Get version from environment or default to development
	version := os.Getenv("GIT_COMMIT_SHA")
	if version == "" {
		version = "development"
	}

	humaConfig := huma.DefaultConfig("Outreach API v1", version)
	humaConfig.Info.Description = "Profile scraping and intro video jobs metered by monthly credits"
	humaConfig.Servers = []*huma.Server{{URL: cfg.APIBaseURL}}

	api := humachi.New(chiRouter, humaConfig)

	logger.Info().Str("version", version).Msg("Huma API initialized for /v1")
	return chiRouter, api
}

// RegisterRoutes registers all Huma operations
func RegisterRoutes(
	api huma.API,
	jobHandler *handler.JobHandler,
	creditHandler *handler.CreditHandler,
	profileHandler *handler.ProfileHandler,
	scriptHandler *handler.ScriptHandler,
	logger zerolog.Logger,
) {
	// ========== JOB OPERATIONS ==========
	huma.Register(api, huma.Operation{
		OperationID:   "startScraping",
		Method:        http.MethodPost,
		Path:          "/jobs/scraping",
		Summary:       "Start profile scraping",
		Description:   "Debits one scraping credit per URL and starts a scraping run. The job finishes in the background.",
		Tags:          []string{"jobs"},
		DefaultStatus: http.StatusAccepted,
	}, jobHandler.StartScraping)

	huma.Register(api, huma.Operation{
		OperationID:   "startVideo",
		Method:        http.MethodPost,
		Path:          "/jobs/video",
		Summary:       "Start intro video generation",
		Description:   "Debits the estimated video seconds and submits the script to the avatar provider",
		Tags:          []string{"jobs"},
		DefaultStatus: http.StatusAccepted,
	}, jobHandler.StartVideo)

	huma.Register(api, huma.Operation{
		OperationID: "resumeJob",
		Method:      http.MethodPost,
		Path:        "/jobs/{jobId}/resume",
		Summary:     "Resume a video job",
		Description: "Polls the recorded provider video without submitting again and stores the result",
		Tags:        []string{"jobs"},
	}, jobHandler.ResumeJob)

	huma.Register(api, huma.Operation{
		OperationID: "getJob",
		Method:      http.MethodGet,
		Path:        "/jobs/{jobId}",
		Summary:     "Get a job",
		Tags:        []string{"jobs"},
	}, jobHandler.GetJob)

	huma.Register(api, huma.Operation{
		OperationID: "listJobs",
		Method:      http.MethodGet,
		Path:        "/jobs",
		Summary:     "List jobs",
		Description: "Lists the caller's jobs, newest first",
		Tags:        []string{"jobs"},
	}, jobHandler.ListJobs)

	// ========== CREDIT OPERATIONS ==========
	huma.Register(api, huma.Operation{
		OperationID: "getCredits",
		Method:      http.MethodGet,
		Path:        "/credits",
		Summary:     "Get credit balance",
		Description: "Returns remaining credits and month-to-date usage",
		Tags:        []string{"credits"},
	}, creditHandler.GetCredits)

	// ========== PROFILE OPERATIONS ==========
	huma.Register(api, huma.Operation{
		OperationID: "listProfiles",
		Method:      http.MethodGet,
		Path:        "/profiles",
		Summary:     "List scraped profiles",
		Tags:        []string{"profiles"},
	}, profileHandler.ListProfiles)

	huma.Register(api, huma.Operation{
		OperationID: "getProfile",
		Method:      http.MethodGet,
		Path:        "/profiles/{profileId}",
		Summary:     "Get a scraped profile",
		Tags:        []string{"profiles"},
	}, profileHandler.GetProfile)

	// ========== SCRIPT OPERATIONS ==========
	huma.Register(api, huma.Operation{
		OperationID: "generateScript",
		Method:      http.MethodPost,
		Path:        "/scripts/generate",
		Summary:     "Draft an intro script",
		Description: "Writes a personalized intro script from a scraped profile. Does not debit credits.",
		Tags:        []string{"scripts"},
	}, scriptHandler.GenerateScript)

	huma.Register(api, huma.Operation{
		OperationID: "improveScript",
		Method:      http.MethodPost,
		Path:        "/scripts/improve",
		Summary:     "Polish a script",
		Description: "Rewrites a script to read naturally when spoken",
		Tags:        []string{"scripts"},
	}, scriptHandler.ImproveScript)

	// ========== ADMIN OPERATIONS ==========
	huma.Register(api, huma.Operation{
		OperationID: "listAccounts",
		Method:      http.MethodGet,
		Path:        "/admin/accounts",
		Summary:     "List accounts",
		Description: "Lists every account with its credits and most recent usage records",
		Tags:        []string{"admin"},
	}, creditHandler.ListAccounts)

	huma.Register(api, huma.Operation{
		OperationID: "getAccountCredits",
		Method:      http.MethodGet,
		Path:        "/admin/accounts/{accountId}/credits",
		Summary:     "Get an account's credits",
		Tags:        []string{"admin"},
	}, creditHandler.GetAccountCredits)

	huma.Register(api, huma.Operation{
		OperationID: "setAccountCredits",
		Method:      http.MethodPatch,
		Path:        "/admin/accounts/{accountId}/credits",
		Summary:     "Override an account's credits",
		Tags:        []string{"admin"},
	}, creditHandler.SetAccountCredits)

	huma.Register(api, huma.Operation{
		OperationID: "resetCredits",
		Method:      http.MethodPost,
		Path:        "/admin/credits/reset",
		Summary:     "Run the monthly credit reset",
		Tags:        []string{"admin"},
	}, creditHandler.ResetCredits)

	logger.Info().Msg("All operations registered successfully")
}
