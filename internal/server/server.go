// Package server HTTP частина бота: вебхук, перевірка стану, метрики.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/Geergon/tg-media-downloader/internal/messenger"
)

const Running = "Bot is running!"

// UpdateParser розбирає тіло запиту вебхука.
type UpdateParser interface {
	ParseWebhook(r *http.Request) (messenger.Update, bool, error)
}

type Options struct {
	Port        int
	WebhookPath string
	// Parser nil у режимах без вебхука.
	Parser  UpdateParser
	Handler messenger.Handler
	Metrics http.Handler
}

type Server struct {
	srv *http.Server
	log *zap.Logger
}

func New(opts Options, log *zap.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              fmt.Sprintf(":%d", opts.Port),
			Handler:           Router(opts, log),
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: log,
	}
}

func Router(opts Options, log *zap.Logger) *mux.Router {
	r := mux.NewRouter()
	health := func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(Running))
	}
	r.HandleFunc("/", health).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/health", health).Methods(http.MethodGet, http.MethodHead)
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics).Methods(http.MethodGet)
	}
	if opts.Parser != nil && opts.WebhookPath != "" {
		r.HandleFunc(opts.WebhookPath, webhook(opts, log)).Methods(http.MethodPost)
	}
	return r
}

// webhook відповідає 200 після передачі оновлення обробнику. Довгі задачі обробник ставить у фон сам.
func webhook(opts Options, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, ok, err := opts.Parser.ParseWebhook(r)
		if err != nil {
			log.Warn("Невалідний запит вебхука", zap.String("remote", r.RemoteAddr), zap.Error(err))
			http.Error(w, "bad update", http.StatusBadRequest)
			return
		}
		if ok {
			opts.Handler(r.Context(), u)
		}
		w.WriteHeader(http.StatusOK)
	}
}

// ListenAndServe блокується до Shutdown.
func (s *Server) ListenAndServe() error {
	s.log.Info("HTTP сервер слухає", zap.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "http сервер")
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "зупинка http сервера")
	}
	return nil
}
