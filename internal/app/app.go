package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/muzammilz7/study-bot/internal/config"
	"github.com/muzammilz7/study-bot/internal/scheduler"
	"github.com/muzammilz7/study-bot/internal/store"
	"github.com/muzammilz7/study-bot/internal/study"
	"github.com/muzammilz7/study-bot/internal/telegram"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	cfg      config.Config
	log      *zap.Logger
	bot      *tgbotapi.BotAPI
	httpSrv  *http.Server
	repo     store.Repo
	sessions *study.SessionManager
	router   *telegram.Router
}

func New(cfg config.Config, log *zap.Logger) (*App, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, err
	}
	bot.Debug = false

	a := &App{cfg: cfg, log: log, bot: bot}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", a.healthz)
	mux.Handle("/metrics", promhttp.Handler())
	a.httpSrv = &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      mux,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
	return a, nil
}

func (a *App) healthz(w http.ResponseWriter, r *http.Request) {
	if a.repo == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.repo.Ping(ctx); err != nil {
		a.log.Warn("healthz: store ping failed", zap.Error(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (a *App) Run(ctx context.Context) error {
	a.log.Info("starting study-bot",
		zap.String("bot", a.bot.Self.UserName),
		zap.String("db_driver", a.cfg.DBDriver),
		zap.String("http", a.cfg.HTTPAddr),
	)

	repo, err := store.Open(ctx, store.Dialect(a.cfg.DBDriver), a.cfg.DBDSN)
	if err != nil {
		a.log.Error("open store failed", zap.Error(err))
		return err
	}
	a.repo = repo
	a.log.Info("store ready")

	client := telegram.NewClient(a.bot, a.log.Named("telegram"))
	a.sessions = study.NewSessionManager(study.SessionDeps{
		Store:         a.repo,
		Notifier:      client,
		Members:       client,
		Scheduler:     scheduler.New(a.log.Named("scheduler"), a.cfg.TickInterval),
		Log:           a.log,
		CommandPrefix: a.cfg.CommandPrefix,
		StoreTimeout:  a.cfg.StoreTimeout,
	})
	todos := study.NewTodoManager(nil, a.repo, a.log, a.cfg.StoreTimeout)
	a.router = telegram.NewRouter(client, a.sessions, todos, a.log.Named("router"), a.cfg.CommandPrefix)

	// sessions left open by a previous process have no timer any more
	if n, err := a.sessions.CloseOrphans(ctx); err != nil {
		a.log.Warn("closing orphaned sessions failed", zap.Error(err))
	} else if n > 0 {
		a.log.Info("closed orphaned sessions", zap.Int("count", n))
	}

	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("http server error", zap.Error(err))
		}
	}()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updCh := a.bot.GetUpdatesChan(u)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			a.log.Info("shutdown signal received")
			a.shutdown()
			return nil

		case upd, ok := <-updCh:
			if !ok {
				a.shutdown()
				return errors.New("telegram updates channel closed")
			}
			a.router.HandleUpdate(ctx, upd)
		}
	}
}

func (a *App) shutdown() {
	a.bot.StopReceivingUpdates()

	shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	a.sessions.Shutdown(shCtx)
	if err := a.httpSrv.Shutdown(shCtx); err != nil {
		a.log.Warn("http server shutdown error", zap.Error(err))
	}
	if err := a.repo.Close(); err != nil {
		a.log.Warn("store close error", zap.Error(err))
	}
}
