package order

import (
	"context"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"restaurant-orders/internal/common/httpx"
	"restaurant-orders/internal/common/logger"
	"restaurant-orders/internal/config"
	"restaurant-orders/internal/intake"
	"restaurant-orders/internal/microservices/order/handlers"
	"restaurant-orders/internal/microservices/order/repository"
	"restaurant-orders/internal/microservices/order/service"
)

type Deps struct {
	Repo    *repository.Repository
	Queue   intake.Queue
	Changes service.ChangePublisher
	// Subscribe serves GET /ws when set.
	Subscribe http.Handler
	// Checks are run by GET /healthz.
	Checks map[string]func(context.Context) error
	Orders config.OrdersConfig
	Logger *zap.Logger
}

// Routes builds the order-service HTTP surface.
func Routes(deps Deps) (http.Handler, *service.Service) {
	lg := deps.Logger
	if lg == nil {
		lg = zap.NewNop()
	}
	svc := service.New(deps.Repo, deps.Queue, deps.Changes, deps.Orders.SkipSettlement, lg)

	var limiter *httpx.RateLimiter
	if deps.Orders.RateLimit > 0 {
		limiter = httpx.NewRateLimiter(deps.Orders.RateLimit, deps.Orders.RateBurst)
	}

	mux := http.NewServeMux()
	handlers.Register(mux, handlers.New(svc), limiter)
	if deps.Subscribe != nil {
		mux.Handle("GET /ws", deps.Subscribe)
	}
	mux.HandleFunc("GET /healthz", health(deps.Checks))

	return httpx.Chain(mux, logger.RequestIDMiddleware, logger.LoggingMiddleware(lg)), svc
}

// Run serves the order routes on port until ctx is done.
func Run(ctx context.Context, port int, deps Deps) error {
	h, _ := Routes(deps)
	if deps.Logger != nil {
		deps.Logger.Info("service_started", zap.Int("port", port))
	}
	return httpx.New(":"+strconv.Itoa(port), h).Run(ctx)
}

func health(checks map[string]func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{}
		code := http.StatusOK
		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				status[name] = err.Error()
				code = http.StatusServiceUnavailable
				continue
			}
			status[name] = "ok"
		}
		httpx.WriteJSON(w, code, map[string]any{"status": http.StatusText(code), "checks": status})
	}
}
