package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clinicore.org/internal/audit"
	"clinicore.org/internal/auth"
	"clinicore.org/internal/httpapi"
	"clinicore.org/internal/invite"
	"clinicore.org/internal/obs"
	"clinicore.org/internal/patient"
	"clinicore.org/internal/store/pg"
)

var version = "0.3.1"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("CLINICORE_COMMIT"))

	var (
		authStore    auth.Store
		inviteStore  invite.Store
		patientStore patient.Store
		eventStore   audit.Store
		probe        httpapi.ReadyProbe
	)

	if dsn := os.Getenv("CLINICORE_PG_DSN"); dsn != "" {
		store, err := pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer store.Close()
		authStore = store
		inviteStore = store
		patientStore = store
		eventStore = store
		probe = httpapi.ReadyProbe{DB: store.DB()}
	} else {
		// In-memory fallback for local development.
		log.Println("CLINICORE_PG_DSN not set, using in-memory stores")
		mem := auth.NewMemoryStore()
		events := audit.NewMemoryStore()
		authStore = mem
		inviteStore = invite.NewMemoryStore(mem, events)
		patientStore = patient.NewMemoryStore()
		eventStore = events
	}

	recorder := audit.NewRecorder(eventStore)

	identity, err := auth.NewService(authStore)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}
	registry, err := auth.NewRegistry(authStore)
	if err != nil {
		log.Fatalf("role registry: %v", err)
	}
	eval, err := auth.NewEvaluator(authStore)
	if err != nil {
		log.Fatalf("evaluator: %v", err)
	}
	invites, err := invite.NewService(inviteStore, authStore, recorder)
	if err != nil {
		log.Fatalf("invite service: %v", err)
	}
	patients, err := patient.NewService(patientStore, eval, recorder, patient.DefaultDedupePolicy)
	if err != nil {
		log.Fatalf("patient service: %v", err)
	}

	api := httpapi.New(probe, version, httpapi.Services{
		Identity: identity,
		Registry: registry,
		Eval:     eval,
		Invites:  invites,
		Patients: patients,
		Recorder: recorder,
		Trail:    eventStore,
	})

	addr := os.Getenv("CLINICORE_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting clinicore-api %s on %s", version, srv.Addr)

	// graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}
