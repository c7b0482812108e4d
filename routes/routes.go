package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"personachat/controllers"
	"personachat/middlewares"
	"personachat/services"
)

// Dependencies are the collaborators the router hands to its controllers.
type Dependencies struct {
	Relay         *services.Relay
	Logger        zerolog.Logger
	Gatherer      prometheus.Gatherer
	AllowedOrigin string
	// ServiceName names the server in request spans.
	ServiceName string
}

func SetupRouter(deps Dependencies) *gin.Engine {
	if deps.ServiceName == "" {
		deps.ServiceName = "personachat"
	}

	r := gin.New()
	r.Use(
		otelgin.Middleware(deps.ServiceName),
		middlewares.Logger(deps.Logger),
		middlewares.Recovery(deps.Logger),
		middlewares.CORS(deps.AllowedOrigin),
	)

	chat := controllers.NewChatController(deps.Relay, deps.Logger)
	socket := controllers.NewChatSocketController(deps.Relay, deps.AllowedOrigin, deps.Logger)

	// Streamed persona answer, one plain-text body per request
	r.POST("/api/chat", chat.HandleChat)
	// Same exchange over a WebSocket, one frame per fragment
	r.GET("/api/chat/ws", socket.HandleChatSocket)

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	return r
}
