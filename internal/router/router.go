package router

import (
	"context"
	"crypto/subtle"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/blues/tcf/internal/handler"
	"github.com/blues/tcf/internal/logger"
	"github.com/blues/tcf/internal/logic"
	"github.com/blues/tcf/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDHeader 请求 ID 头
const RequestIDHeader = "X-Request-ID"

// HealthChecker 链健康状态，由 chain.Manager 实现
type HealthChecker interface {
	GetHealthStatus(ctx context.Context) map[string]interface{}
}

// Dependencies 路由依赖
type Dependencies struct {
	Service    *service.CampaignService
	TxLogic    *logic.TxRecordLogic
	EventLogic *logic.EventLogic
	Health     HealthChecker // 可为空

	AllowedOrigins []string // 允许跨域的来源
	APIToken       string   // 写接口的 Bearer 令牌
}

// Setup 注册全部路由
func Setup(deps Dependencies) *gin.Engine {
	r := gin.New()

	// 中间件
	r.Use(gin.Recovery())
	r.Use(requestIDMiddleware())
	r.Use(accessLogMiddleware())
	r.Use(corsMiddleware(deps.AllowedOrigins))

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		body := gin.H{
			"status":     "ok",
			"service":    "token-crowdfunding-service",
			"campaigns":  len(deps.Service.Campaigns()),
			"updated_at": deps.Service.UpdatedAt(),
			"sender":     deps.Service.Sender(),
		}
		if deps.Health != nil {
			body["chain"] = deps.Health.GetHealthStatus(c.Request.Context())
		}
		c.JSON(http.StatusOK, body)
	})

	// API版本组
	v1 := r.Group("/api/v1")
	{
		campaignHandler := handler.NewCampaignHandler(deps.Service)
		recordHandler := handler.NewRecordHandler(deps.TxLogic, deps.EventLogic)
		// 加载了私钥时写接口以服务端账户签名，必须鉴权
		auth := authMiddleware(deps.APIToken, deps.Service.Sender() != "")

		campaigns := v1.Group("/campaigns")
		{
			campaigns.GET("", campaignHandler.GetCampaigns)
			campaigns.POST("", auth, campaignHandler.CreateCampaign)
			campaigns.GET("/:id", campaignHandler.GetCampaign)
			campaigns.GET("/:id/donators", campaignHandler.GetDonators)
			campaigns.GET("/:id/quote", campaignHandler.GetQuote)
			campaigns.GET("/:id/events", recordHandler.GetCampaignEvents)
			campaigns.POST("/:id/donate", auth, campaignHandler.Donate)
			campaigns.POST("/:id/refund", auth, campaignHandler.Refund)
			campaigns.POST("/:id/end", auth, campaignHandler.End)
			campaigns.POST("/:id/withdraw", auth, campaignHandler.Withdraw)
		}

		v1.GET("/transactions", recordHandler.GetTransactions)
	}

	return r
}

// requestIDMiddleware 为每个请求分配 ID，沿用客户端传入的值
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Header(RequestIDHeader, requestID)
		c.Next()
	}
}

// accessLogMiddleware 记录访问日志
func accessLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("%s %s %d %s request_id=%s",
			c.Request.Method,
			c.Request.URL.Path,
			c.Writer.Status(),
			time.Since(start),
			c.GetString("request_id"),
		)
	}
}

// CORS中间件，只回显白名单内的来源，其他跨域请求直接拒绝
func corsMiddleware(origins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(origins))
	for _, origin := range origins {
		allowed[strings.TrimSuffix(origin, "/")] = true
	}

	return func(c *gin.Context) {
		c.Header("Vary", "Origin")
		origin := c.GetHeader("Origin")
		if origin != "" && !sameOrigin(origin, c.Request.Host) {
			if !allowed[origin] {
				handler.ErrorResponse(c, http.StatusForbidden, "不允许的跨域来源: "+origin)
				c.Abort()
				return
			}
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization, X-Request-ID")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func sameOrigin(origin, host string) bool {
	u, err := url.Parse(origin)
	return err == nil && u.Host != "" && u.Host == host
}

// authMiddleware 校验写接口的 Bearer 令牌，未配置令牌但可签名时禁用写接口
func authMiddleware(token string, signing bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			if signing {
				handler.ErrorResponse(c, http.StatusForbidden, "未配置 API 令牌，写操作已禁用")
				c.Abort()
				return
			}
			// 只读模式下写接口本身会失败
			c.Next()
			return
		}

		got, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			handler.ErrorResponse(c, http.StatusUnauthorized, "无效的 API 令牌")
			c.Abort()
			return
		}
		c.Next()
	}
}
