package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"

	checkInterval = 15 * time.Second
	checkTimeout  = 3 * time.Second
)

var Module = fx.Module("health",
	fx.Provide(ProvideHealth),
	fx.Invoke(runProbe),
)

type Dependency struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type Health struct {
	Status  string       `json:"status"`
	Message string       `json:"message"`
	Deps    []Dependency `json:"deps"`
}

func (h Health) Ready() bool { return h.Status == statusHealthy }

type HealthService interface {
	Liveness(c *gin.Context)
	Readiness(c *gin.Context)
	Check(ctx context.Context) Health
	// OnChange is called with the current readiness and again whenever it flips.
	OnChange(fn func(ready bool))
}

type health struct {
	db    *gorm.DB
	redis *redis.Client

	mu        sync.Mutex
	ready     bool
	listeners []func(bool)
}

type HealthParams struct {
	fx.In
	DB    *gorm.DB      `optional:"true"`
	Redis *redis.Client `optional:"true"`
}

func ProvideHealth(p HealthParams) HealthService {
	return &health{
		db:    p.DB,
		redis: p.Redis,
		ready: true,
	}
}

func (h *health) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, &Health{
		Status:  statusHealthy,
		Message: "OK",
	})
}

func (h *health) Readiness(c *gin.Context) {
	res := h.Check(c.Request.Context())
	code := http.StatusOK
	if !res.Ready() {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, res)
}

// Check pings every configured dependency.
func (h *health) Check(ctx context.Context) Health {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	res := Health{Status: statusHealthy, Message: "OK", Deps: []Dependency{}}
	add := func(name string, err error) {
		dep := Dependency{Name: name, Status: statusHealthy, Message: "OK"}
		if err != nil {
			dep.Status = statusUnhealthy
			dep.Message = err.Error()
			res.Status = statusUnhealthy
			res.Message = name + " unavailable"
		}
		res.Deps = append(res.Deps, dep)
	}

	if h.db != nil {
		sqlDB, err := h.db.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		add("database", err)
	}
	if h.redis != nil {
		add("redis", h.redis.Ping(ctx).Err())
	}

	h.set(res.Ready())
	return res
}

func (h *health) OnChange(fn func(ready bool)) {
	h.mu.Lock()
	h.listeners = append(h.listeners, fn)
	ready := h.ready
	h.mu.Unlock()
	fn(ready)
}

func (h *health) set(ready bool) {
	h.mu.Lock()
	if h.ready == ready {
		h.mu.Unlock()
		return
	}
	h.ready = ready
	listeners := append([]func(bool){}, h.listeners...)
	h.mu.Unlock()

	zap.L().Warn("readiness changed", zap.Bool("ready", ready))
	for _, fn := range listeners {
		fn(ready)
	}
}

func runProbe(lc fx.Lifecycle, hs HealthService) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				t := time.NewTicker(checkInterval)
				defer t.Stop()
				for {
					hs.Check(ctx)
					select {
					case <-ctx.Done():
						return
					case <-t.C:
					}
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
