// orangejuiced serves the Task API surface and runs the background
// janitor jobs, dispatching crawl-testcases and create-accounts tasks
// onto goroutines backed by pkg/orchestrator. Grounded on
// codeready-toolchain/tarsy/cmd/tarsy/main.go's flag/env/.env bootstrap
// and gin.Default()/router.Run wiring.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/time/rate"

	"github.com/wangicheng/orange-juice/pkg/accountpool"
	"github.com/wangicheng/orange-juice/pkg/api"
	"github.com/wangicheng/orange-juice/pkg/captcha"
	"github.com/wangicheng/orange-juice/pkg/database"
	"github.com/wangicheng/orange-juice/pkg/ojclient"
	"github.com/wangicheng/orange-juice/pkg/orchestrator"
	"github.com/wangicheng/orange-juice/pkg/repository"
	"github.com/wangicheng/orange-juice/pkg/scheduler"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// taskDispatcher implements api.Dispatcher by handing each task id to
// pkg/orchestrator on its own goroutine: the external job runner's only
// contract is "start a unit of work asynchronously, given a task id".
type taskDispatcher struct {
	tasks     *repository.TaskRepository
	problems  *repository.ProblemRepository
	templates *repository.CodeTemplateSetRepository
	accounts  *repository.AccountRepository
	testcases *repository.TestCaseRepository

	ojBaseURL       string
	accountPassword string
	newAuth         accountpool.NewAuthenticatorFunc
	newRegistrar    func() orchestrator.Registrar
}

func (d *taskDispatcher) DispatchCrawl(taskID string) {
	go func() {
		ctx := context.Background()
		if err := orchestrator.RunCrawl(ctx, orchestrator.CrawlConfig{
			TaskID:          taskID,
			Tasks:           d.tasks,
			Problems:        d.problems,
			Templates:       d.templates,
			Accounts:        d.accounts,
			NewAuth:         d.newAuth,
			Recorder:        d.testcases,
			AccountPassword: d.accountPassword,
		}); err != nil {
			slog.Error("crawl task failed", "task_id", taskID, "error", err)
		}
	}()
}

func (d *taskDispatcher) DispatchCreateAccounts(taskID string) {
	go func() {
		ctx := context.Background()
		if err := orchestrator.RunCreateAccounts(ctx, orchestrator.CreateAccountsConfig{
			TaskID:          taskID,
			Tasks:           d.tasks,
			Accounts:        d.accounts,
			NewRegistrar:    d.newRegistrar,
			AccountPassword: d.accountPassword,
		}); err != nil {
			slog.Error("create-accounts task failed", "task_id", taskID, "error", err)
		}
	}()
}

func main() {
	envFile := flag.String("env-file", getEnv("ENV_FILE", ".env"), "Path to .env file")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		log.Printf("Warning: could not load %s: %v", *envFile, err)
		log.Printf("Continuing with existing environment variables...")
	} else {
		log.Printf("Loaded environment from %s", *envFile)
	}

	httpPort := getEnv("HTTP_PORT", "8080")
	ginMode := getEnv("GIN_MODE", "debug")
	ojBaseURL := getEnv("OJ_BASE_URL", "https://vjudge.net")
	accountPassword := getEnv("ACCOUNT_PASSWORD", "")
	if accountPassword == "" {
		log.Fatal("ACCOUNT_PASSWORD must be set")
	}

	log.Printf("Starting orangejuiced")
	log.Printf("HTTP Port: %s", httpPort)
	log.Printf("OJ base URL: %s", ojBaseURL)

	ctx := context.Background()

	dbCfg, err := database.LoadConfigFromEnv()
	if err != nil {
		log.Fatalf("Failed to load database config: %v", err)
	}
	pool, err := database.NewPool(ctx, dbCfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()
	log.Println("Connected to PostgreSQL database; migrations applied")

	recognizer, err := newRecognizer()
	if err != nil {
		log.Fatalf("Failed to configure captcha recognizer: %v", err)
	}

	authLimiter := rate.NewLimiter(rate.Every(2*time.Second), 1)
	newClient := func() *ojclient.Client {
		return ojclient.New(ojBaseURL, recognizer, ojclient.WithAuthLimiter(authLimiter))
	}

	dispatch := &taskDispatcher{
		tasks:           repository.NewTaskRepository(pool),
		problems:        repository.NewProblemRepository(pool),
		templates:       repository.NewCodeTemplateSetRepository(pool),
		accounts:        repository.NewAccountRepository(pool),
		testcases:       repository.NewTestCaseRepository(pool),
		ojBaseURL:       ojBaseURL,
		accountPassword: accountPassword,
		newAuth:         func() accountpool.Authenticator { return newClient() },
		newRegistrar:    func() orchestrator.Registrar { return newClient() },
	}

	sched := scheduler.New(repository.NewAccountRepository(pool))
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}
	defer sched.Stop()
	log.Println("Scheduler started: stale-lease sweep and account metrics refresh")

	srv := api.NewServer(pool, dispatch, ginMode)

	log.Printf("HTTP server listening on :%s", httpPort)
	if err := http.ListenAndServe(":"+httpPort, srv.Handler()); err != nil {
		log.Fatalf("HTTP server exited: %v", err)
	}
}

// newRecognizer builds the process-wide captcha.Recognizer from
// CAPTCHA_RECOGNIZER: "stub" (default, deterministic) or "none" (fails
// closed). A real CNN-backed recognizer has no Go analogue in the
// retrieval pack (see DESIGN.md) so it is never an option here.
func newRecognizer() (captcha.Recognizer, error) {
	factory := captcha.NewFactory(func() (captcha.Recognizer, error) {
		switch getEnv("CAPTCHA_RECOGNIZER", "stub") {
		case "none":
			return captcha.Unconfigured(), nil
		default:
			return captcha.NewStub(), nil
		}
	})
	return factory.Get()
}
