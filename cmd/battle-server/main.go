package main

import (
    "context"
    "errors"
    "log"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "go.uber.org/zap"

    "github.com/RunRun-labs/RunRun-Backend-sub001/internal/battle"
    appcfg "github.com/RunRun-labs/RunRun-Backend-sub001/internal/config"
    "github.com/RunRun-labs/RunRun-Backend-sub001/internal/gateway"
    "github.com/RunRun-labs/RunRun-Backend-sub001/internal/ghost"
    "github.com/RunRun-labs/RunRun-Backend-sub001/internal/msgcat"
    "github.com/RunRun-labs/RunRun-Backend-sub001/internal/obslog"
    "github.com/RunRun-labs/RunRun-Backend-sub001/internal/rating"
    "github.com/RunRun-labs/RunRun-Backend-sub001/internal/relay"
    "github.com/RunRun-labs/RunRun-Backend-sub001/internal/userapi"
)

func main() {
    cfg, err := appcfg.Load()
    if err != nil {
        log.Fatalf("config error: %v", err)
    }
    if err := obslog.InitFromEnv(); err != nil {
        log.Fatalf("logger init error: %v", err)
    }

    rdb, err := battle.OpenRedis(cfg.RedisURL)
    if err != nil {
        log.Fatalf("redis init error: %v", err)
    }

    // fan-out: frames travel through Redis Pub/Sub so broadcasts reach
    // subscribers on every instance
    hub := relay.NewHub()
    pub := relay.NewPublisher(hub, rdb)
    bridge := relay.NewBridge(rdb, hub)
    bridge.Start(context.Background())

    mgr := battle.NewManager(rdb, pub)
    mgr.SetStartDelay(time.Duration(cfg.BattleStartDelaySec) * time.Second)
    mgr.SetSessionTTL(time.Duration(cfg.BattleSessionTTLSec) * time.Second)

    // rating + run-history stores; in-memory fallback keeps local development
    // working without Postgres
    var ratingRepo rating.Repository
    var ghostLoader ghost.Loader
    var pgRepo *rating.PostgresRepository
    var pgGhost *ghost.PostgresLoader
    if cfg.DatabaseURL != "" {
        pgRepo, err = rating.NewPostgresRepository(cfg.DatabaseURL)
        if err != nil {
            log.Fatalf("rating repo init error: %v", err)
        }
        ratingRepo = pgRepo
        pgGhost, err = ghost.NewPostgresLoader(cfg.DatabaseURL)
        if err != nil {
            log.Fatalf("ghost loader init error: %v", err)
        }
        ghostLoader = pgGhost
    } else {
        obslog.L().Warn("no DATABASE_URL configured, using in-memory rating store")
        ratingRepo = rating.NewMemoryRepository()
        ghostLoader = ghost.LoaderFunc(func(context.Context, string) (*ghost.Reference, error) { return nil, nil })
    }

    settler := rating.NewSettler(ratingRepo)
    mgr.AttachSettler(settler)

    var users *userapi.Client
    if cfg.UserAPIBaseURL != "" {
        users = userapi.NewClient(cfg.UserAPIBaseURL, userapi.WithHeaderProvider(func() map[string]string {
            if cfg.UserAPIToken == "" {
                return nil
            }
            return map[string]string{"Authorization": "Bearer " + cfg.UserAPIToken}
        }))
    }

    cat, err := msgcat.New(cfg.MsgOverrideDir)
    if err != nil {
        log.Fatalf("message catalog error: %v", err)
    }
    mgr.AttachMessages(cat)

    srv := gateway.NewServer(mgr, settler, hub, pub, ghost.NewCache(ghostLoader), users, cat, cfg.BattleMaxParticipant)
    mux := http.NewServeMux()
    srv.Routes(mux)

    httpSrv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
    go func() {
        obslog.L().Info("battle_server_listen", zap.String("addr", cfg.ListenAddr))
        if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
            obslog.L().Fatal("http server error", zap.Error(err))
        }
    }()

    sigCh := make(chan os.Signal, 1)
    signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
    <-sigCh

    sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancel()
    _ = httpSrv.Shutdown(sctx)
    _ = bridge.Close()
    if pgRepo != nil {
        _ = pgRepo.Close()
    }
    if pgGhost != nil {
        _ = pgGhost.Close()
    }
    _ = rdb.Close()
}
