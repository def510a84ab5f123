package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Ayi-pei/yunjvcrm/internal/storage"
)

// RateLimiter 请求限流中间件
//
// 通用接口按 IP 用令牌桶限流；登录接口单独用存储层计数器
// 做固定窗口限制，避免密钥被暴力枚举。
type RateLimiter struct {
	store storage.RateLimitRepository
	log   *zap.Logger

	mu       sync.Mutex
	visitors map[string]*visitor
	rps      rate.Limit
	burst    int
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter 创建限流中间件
//
// 参数:
//   - requests: 窗口内允许的请求数
//   - window: 窗口时长
func NewRateLimiter(store storage.RateLimitRepository, requests int, window time.Duration, log *zap.Logger) *RateLimiter {
	if log == nil {
		log = zap.NewNop()
	}
	rl := &RateLimiter{
		store:    store,
		log:      log,
		visitors: make(map[string]*visitor),
		rps:      rate.Limit(float64(requests) / window.Seconds()),
		burst:    requests,
	}
	go rl.cleanupLoop()
	return rl
}

// General 通用限流，按客户端 IP
func (rl *RateLimiter) General() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !rl.visitorFor(ip).Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"code": http.StatusTooManyRequests,
				"msg":  "请求过于频繁，请稍后再试",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// Login 登录限流
//
// 同一 IP 在窗口内的登录尝试次数超限后直接拒绝。
// 计数走存储层，多实例部署时共享窗口。
func (rl *RateLimiter) Login(maxAttempts int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		count, err := rl.store.IncrRateLimit("login:"+ip, window)
		if err != nil {
			// 限流不可用时放行，不阻塞登录
			rl.log.Warn("login rate limit unavailable", zap.Error(err))
			c.Next()
			return
		}

		if count > int64(maxAttempts) {
			rl.log.Warn("login attempts throttled",
				zap.String("ip", ip), zap.Int64("count", count))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"code": http.StatusTooManyRequests,
				"msg":  "登录尝试次数过多，请稍后再试",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

func (rl *RateLimiter) visitorFor(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = time.Now()
	return v.limiter
}

// cleanupLoop 定期清理不活跃的访客
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		cutoff := time.Now().Add(-10 * time.Minute)
		rl.mu.Lock()
		for ip, v := range rl.visitors {
			if v.lastSeen.Before(cutoff) {
				delete(rl.visitors, ip)
			}
		}
		rl.mu.Unlock()
	}
}
