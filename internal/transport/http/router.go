package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	middlewareChi "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	httpmw "github.com/MelvinVerLia/SiLaporRT-sub001/internal/transport/http/middleware"
)

type RouterDeps struct {
	Handler        *Handler
	Verifier       httpmw.TokenVerifier
	WS             http.HandlerFunc
	Metrics        http.Handler
	AllowedOrigins []string
	Log            *slog.Logger
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middlewareChi.RequestID)
	r.Use(middlewareChi.RealIP)
	r.Use(middlewareChi.Recoverer)
	r.Use(httpmw.Logging(d.Log))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// the socket authenticates with ?access_token= itself
	if d.WS != nil {
		r.Get("/ws", d.WS)
	}

	r.Group(func(pr chi.Router) {
		pr.Use(httpmw.Auth(d.Verifier))
		pr.Use(middlewareChi.Timeout(30 * time.Second))

		pr.Get("/conversations/{id}/messages", d.Handler.GetMessages)
		pr.Post("/reports/{reportId}/conversation", d.Handler.ResolveConversation)

		pr.Route("/push/subscription", func(ps chi.Router) {
			ps.Get("/", d.Handler.GetSubscription)
			ps.Put("/", d.Handler.PutSubscription)
			ps.Patch("/", d.Handler.PatchSubscription)
		})
	})

	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics)
	}
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
}
