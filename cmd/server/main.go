package main

import (
	"context"
	"database/sql"
	"embed"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	auth "github.com/JOHN-REY-CARLO-A-GEMAO/gemao-finals"
	"github.com/JOHN-REY-CARLO-A-GEMAO/gemao-finals/cmd/server/config"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/template/django/v3"
	"github.com/goliatone/go-router"
	mflash "github.com/goliatone/go-router/middleware/flash"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

//go:embed views
var viewsFS embed.FS

type App struct {
	config *config.AppConfig
	bunDB  *bun.DB
	repo   auth.RepositoryManager
	auther auth.HTTPAuthenticator
	srv    router.Server[*fiber.App]
	logger auth.Logger
}

func main() {
	cfg := config.Load()

	app := &App{
		config: cfg,
		logger: auth.NewLogger("server"),
	}

	ctx := context.Background()

	if err := withPersistence(ctx, app); err != nil {
		log.Fatal(err)
	}

	if err := withHTTPServer(app); err != nil {
		log.Fatal(err)
	}

	if err := withAuth(app); err != nil {
		log.Fatal(err)
	}

	if cfg.SeedUsers {
		if err := seedUsers(ctx, app); err != nil {
			log.Fatal(err)
		}
	}

	stopReaper := startPasscodeReaper(ctx, app)
	defer stopReaper()

	app.srv.Serve(cfg.Server.Address)

	waitExitSignal()
}

func withPersistence(ctx context.Context, app *App) error {
	sqldb, err := sql.Open(sqliteshim.ShimName, app.config.Persistence.DSN)
	if err != nil {
		return err
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())

	if err := runMigrations(ctx, db); err != nil {
		return err
	}

	app.bunDB = db
	app.repo = auth.NewRepositoryManager(db)

	return app.repo.Validate()
}

// runMigrations applies the embedded SQL files in lexical order. Statements
// are idempotent so re-running on boot is safe.
func runMigrations(ctx context.Context, db *bun.DB) error {
	migrations := auth.MigrationsFS()

	names, err := auth.MigrationFiles()
	if err != nil {
		return err
	}

	for _, name := range names {
		blob, err := fs.ReadFile(migrations, name)
		if err != nil {
			return err
		}
		if _, err := db.ExecContext(ctx, string(blob)); err != nil {
			return err
		}
	}

	return nil
}

func withHTTPServer(app *App) error {
	templates, err := fs.Sub(viewsFS, "views")
	if err != nil {
		return err
	}

	engine := django.NewFileSystem(http.FS(templates), ".html")

	srv := router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		return router.DefaultFiberOptions(fiber.New(fiber.Config{
			UnescapePath:      true,
			EnablePrintRoutes: app.config.Server.Debug,
			StrictRouting:     false,
			PassLocalsToViews: true,
			Views:             engine,
		}))
	})

	srv.Router().Use(mflash.New(mflash.ConfigDefault))

	srv.Router().Get("/", func(ctx router.Context) error {
		return ctx.Redirect("/login", router.StatusSeeOther)
	})

	app.srv = srv
	return nil
}

func withAuth(app *App) error {
	cfg := app.config.Auth

	sink := auth.NewActivityRecorder(app.repo.ActivityLogs(), app.logger)

	userProvider := auth.NewUserProvider(auth.UserStoreFromRepository(app.repo.Users()))
	userProvider.WithLogger(auth.NewLogger("auth:prv"))

	authenticator := auth.NewAuthenticator(userProvider, cfg).
		WithLogger(auth.NewLogger("auth")).
		WithActivitySink(sink)

	httpAuth, err := auth.NewHTTPAuthenticator(authenticator, cfg)
	if err != nil {
		return err
	}
	httpAuth.WithActivitySink(sink)

	app.auther = httpAuth

	var notifier auth.Notifier
	if app.config.Server.Debug {
		notifier = auth.NewLogNotifier(app.logger)
	} else {
		notifier = auth.NewSMTPNotifier(app.config.SMTP)
	}

	auth.RegisterAuthRoutes(app.srv.Router().Group("/"),
		func(ac *auth.AuthController) *auth.AuthController {
			ac.Debug = app.config.Server.Debug
			ac.Repo = app.repo
			ac.Auther = httpAuth
			ac.Config = cfg
			ac.Notifier = notifier
			ac.Sink = sink
			ac.Logger = auth.NewLogger("auth:ctrl")
			return ac
		})

	return nil
}

// seedUsers provisions a default admin and member account for local
// development. Existing usernames are left untouched.
func seedUsers(ctx context.Context, app *App) error {
	seeds := []struct {
		username string
		email    string
		role     auth.UserRole
		password string
	}{
		{"admin", "admin@localhost", auth.RoleAdmin, "admin123"},
		{"member", "member@localhost", auth.RoleUser, "member123"},
	}

	for _, seed := range seeds {
		exists, err := app.repo.Users().UsernameExists(ctx, seed.username)
		if err != nil {
			return err
		}
		if exists {
			continue
		}

		hash, err := auth.HashPassword(seed.password)
		if err != nil {
			return err
		}

		now := time.Now()
		user := &auth.User{
			FirstName:    seed.username,
			LastName:     "Account",
			Username:     seed.username,
			Email:        seed.email,
			PasswordHash: hash,
			Role:         seed.role,
			Status:       auth.UserStatusActive,
			VerifiedAt:   &now,
		}

		if _, err := app.repo.Users().Register(ctx, user); err != nil {
			return err
		}

		app.logger.Info("seeded account username=%s role=%s", seed.username, seed.role)
	}

	return nil
}

// startPasscodeReaper deletes expired passcodes on an interval. Expired rows
// are already unusable, the reaper only keeps the table small.
func startPasscodeReaper(ctx context.Context, app *App) func() {
	interval := time.Duration(app.config.ReapMinutes) * time.Minute
	if interval <= 0 {
		return func() {}
	}

	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if n, err := app.repo.Passcodes().Reap(ctx); err != nil {
					app.logger.Warn("passcode reap error: %v", err)
				} else if n > 0 {
					app.logger.Debug("reaped %d expired passcodes", n)
				}
			}
		}
	}()

	return func() {
		ticker.Stop()
		close(done)
	}
}

func waitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}
