package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"peggymeter/apiclient"
	"peggymeter/cmd/moodcli"
	"peggymeter/internal/config"
	firebaseclient "peggymeter/internal/firebase"
	"peggymeter/service/archive"
	"peggymeter/service/database"
	"peggymeter/service/dbservice"
	"peggymeter/service/httpserver"
	"peggymeter/service/identity"
	"peggymeter/service/llmservice"
	"peggymeter/service/storage"
)

const startupTimeout = 30 * time.Second

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		log.Fatalf("load .env: %v", err)
	}
	config.UseCredentialsFile("google-services.json")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	cliMode := flag.Bool("cli", false, "Run the interactive mood CLI")
	serveMode := flag.Bool("serve", false, "Serve the mood HTTP API")
	exportMode := flag.Bool("export", false, "Upload the mood history to S3 and exit")
	reflectMode := flag.Bool("reflect", false, "Print a reflection on recent moods and exit")
	reset := flag.Bool("reset", false, "Forget the stored anonymous session before starting")
	serverURL := flag.String("server-url", cfg.ServerURL, "Use a running peggymeter API instead of Firebase (use PEGGY_SERVER_URL)")
	addr := flag.String("addr", cfg.HTTPAddr, "HTTP listen address (use PEGGY_HTTP_ADDR)")
	timeout := flag.Duration("timeout", cfg.RequestTimeout, "Per-request timeout")
	flag.StringVar(&cfg.FirebaseDatabaseURL, "firebase-db-url", cfg.FirebaseDatabaseURL, "Firebase Realtime Database URL (use FIREBASE_DATABASE_URL)")
	flag.StringVar(&cfg.FirebaseAPIKey, "firebase-api-key", cfg.FirebaseAPIKey, "Firebase web API key (use FIREBASE_API_KEY)")
	flag.StringVar(&cfg.GoogleChatModel, "model", cfg.GoogleChatModel, "Google Generative Language model (use GOOGLE_CHAT_MODEL)")
	flag.Parse()

	if !*cliMode && !*serveMode && !*exportMode && !*reflectMode {
		fmt.Println("No mode selected. Run again with -cli, -serve, -export or -reflect.")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *cliMode && strings.TrimSpace(*serverURL) != "" {
		client, err := apiclient.NewClient(*serverURL, nil)
		if err != nil {
			log.Fatalf("configure api client: %v", err)
		}
		if err := moodcli.Run(ctx, moodcli.Config{Client: client, Exporter: newExporter(ctx, cfg), Timeout: *timeout}); err != nil {
			log.Fatal(err)
		}
		return
	}

	app, err := newApp(ctx, cfg, *reset)
	if err != nil {
		log.Fatal(err)
	}
	defer app.Close()

	switch {
	case *serveMode:
		h, err := httpserver.NewHandler(app.controller, app.reflector())
		if err != nil {
			log.Fatal(err)
		}
		if err := httpserver.Run(ctx, httpserver.Config{Addr: *addr}, h); err != nil {
			log.Fatal(err)
		}

	case *cliMode:
		err := moodcli.Run(app.signedIn, moodcli.Config{
			Controller: app.controller,
			Reflector:  app.reflector(),
			Exporter:   newExporter(ctx, cfg),
			Timeout:    *timeout,
		})
		if err != nil {
			log.Fatal(err)
		}

	case *exportMode:
		if err := runExport(app.signedIn, app, newExporter(ctx, cfg), *timeout); err != nil {
			log.Fatal(err)
		}

	case *reflectMode:
		if err := runReflect(app.signedIn, app, *timeout); err != nil {
			log.Fatal(err)
		}
	}
}

// app holds the wired services for the local (non remote) modes.
type app struct {
	// signedIn is canceled when anonymous sign in fails, ending any wait on the controller.
	signedIn context.Context

	sessions   *identity.SessionStore
	controller *database.Controller
	mongo      *dbservice.Service
	llm        *llmservice.Client
}

func newApp(ctx context.Context, cfg *config.Config, reset bool) (*app, error) {
	clients, err := firebaseclient.NewClients(ctx, cfg.FirebaseDatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("configure firebase: %w", err)
	}
	store, err := database.NewStore(clients.Database)
	if err != nil {
		return nil, err
	}

	sessions, err := identity.OpenSessionStore(ctx, cfg.SessionPath)
	if err != nil {
		return nil, err
	}
	a := &app{sessions: sessions}

	provider, err := identity.NewFirebaseProvider(ctx, identity.Config{
		APIKey:   cfg.FirebaseAPIKey,
		Sessions: sessions,
		Auth:     clients.Auth,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	if reset {
		if err := provider.SignOut(ctx); err != nil {
			a.Close()
			return nil, err
		}
		log.Printf("cleared stored session")
	}

	signedIn, authFailed := context.WithCancel(ctx)
	a.signedIn = signedIn
	ctrl, err := database.New(ctx, database.Options{
		Identity:     provider,
		Store:        store,
		PollInterval: cfg.PollInterval,
		OnAuthError: func(error) {
			authFailed()
		},
	})
	if err != nil {
		authFailed()
		a.Close()
		return nil, err
	}
	a.controller = ctrl

	if cfg.Mongo.Enabled() {
		a.startMirror(ctx, cfg.Mongo)
	}

	if strings.TrimSpace(cfg.GoogleAPIKey) != "" {
		llm, err := llmservice.NewClient(llmservice.Config{APIKey: cfg.GoogleAPIKey, Model: cfg.GoogleChatModel})
		if err != nil {
			log.Printf("reflections disabled: %v", err)
		} else {
			a.llm = llm
		}
	}
	return a, nil
}

// startMirror copies the mood history into MongoDB. The listener is usually registered while
// anonymous sign in is still running, so the controller buffers it until the adapters exist.
func (a *app) startMirror(ctx context.Context, cfg config.MongoConfig) {
	mongoSvc, err := dbservice.New(ctx, dbservice.Config{
		URI:      cfg.URI,
		Host:     cfg.Host,
		Username: cfg.Username,
		Password: cfg.Password,
		Database: cfg.Database,
	})
	if err != nil {
		log.Printf("mongo mirror disabled: %v", err)
		return
	}
	a.mongo = mongoSvc
	mirror, err := archive.NewMirror(mongoSvc, a.controller.UID)
	if err != nil {
		log.Printf("mongo mirror disabled: %v", err)
		return
	}
	a.controller.AddMoodListener(mirror)

	go func() {
		waitCtx, cancel := context.WithTimeout(ctx, startupTimeout)
		defer cancel()
		if err := a.controller.Wait(waitCtx); err != nil {
			return
		}
		if created, err := mirror.TouchUser(waitCtx); err != nil {
			log.Printf("mirror user: %v", err)
		} else if created {
			log.Printf("mirrored new user %s", a.controller.UID())
		}
	}()
}

func (a *app) reflector() httpserver.Reflector {
	if a.llm == nil {
		return nil
	}
	return a.llm
}

func (a *app) Close() {
	if a.controller != nil {
		a.controller.Close()
	}
	if a.llm != nil {
		_ = a.llm.Close()
	}
	if a.mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.mongo.Close(ctx)
		cancel()
	}
	if a.sessions != nil {
		_ = a.sessions.Close()
	}
}

// newExporter returns nil when S3 cannot be configured so callers can report export as unavailable.
func newExporter(ctx context.Context, cfg *config.Config) moodcli.Exporter {
	svc, err := storage.New(ctx, storage.Config{
		Bucket: cfg.Export.Bucket,
		Prefix: cfg.Export.Prefix,
		Region: cfg.Export.Region,
	})
	if err != nil {
		log.Printf("export disabled: %v", err)
		return nil
	}
	return svc
}

func runExport(ctx context.Context, a *app, exporter moodcli.Exporter, timeout time.Duration) error {
	if exporter == nil {
		return fmt.Errorf("export is not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := a.controller.Wait(ctx); err != nil {
		return err
	}
	if err := a.controller.MoodAdapter().Sync(ctx); err != nil {
		return err
	}
	if err := a.controller.SettingAdapter().Sync(ctx); err != nil {
		return err
	}
	records, err := a.controller.Moods()
	if err != nil {
		return err
	}
	settings, err := a.controller.Settings()
	if err != nil {
		return err
	}
	now := time.Now()
	data, err := storage.EncodeExport(a.controller.UID(), settings, records, now)
	if err != nil {
		return err
	}
	location, err := exporter.UploadExport(ctx, storage.ExportObjectName(a.controller.UID(), now), "application/json", data)
	if err != nil {
		return err
	}
	fmt.Printf("Exported %d records to %s\n", len(records), location)
	return nil
}

func runReflect(ctx context.Context, a *app, timeout time.Duration) error {
	if a.llm == nil {
		return fmt.Errorf("reflections are not configured (set GOOGLE_API_KEY)")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := a.controller.Wait(ctx); err != nil {
		return err
	}
	if err := a.controller.MoodAdapter().Sync(ctx); err != nil {
		return err
	}
	records, err := a.controller.Moods()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("no mood records yet")
	}
	text, err := a.llm.Reflect(ctx, records, time.Now())
	if err != nil {
		return err
	}
	fmt.Println(text)
	return nil
}
