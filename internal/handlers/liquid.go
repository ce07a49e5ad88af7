package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"wardwatch/internal/middleware"
	"wardwatch/internal/models"
)

// LiquidHandlers accepts sensor ingests and serves the subscribe
// endpoints. Two hubs, like the two streams: fill-colour samples and
// blood-detection events.
type LiquidHandlers struct {
	colourHub    *middleware.Hub
	detectionHub *middleware.Hub
	tokens       *middleware.TokenService
	logger       *zap.Logger
}

func NewLiquidHandlers(colourHub, detectionHub *middleware.Hub, tokens *middleware.TokenService, logger *zap.Logger) *LiquidHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LiquidHandlers{
		colourHub:    colourHub,
		detectionHub: detectionHub,
		tokens:       tokens,
		logger:       logger,
	}
}

// ColourIngest is the body for POST /liquid/colour.
type ColourIngest struct {
	R       int    `json:"r" validate:"min=0,max=255"`
	G       int    `json:"g" validate:"min=0,max=255"`
	B       int    `json:"b" validate:"min=0,max=255"`
	IsBlood bool   `json:"isBlood"`
	Room    string `json:"room"`
}

// PostColour handles POST /liquid/colour (write scope): broadcast one
// colour sample. Global subscribers receive it with the room attached;
// the room's own subscribers receive it without, since their stream is
// already room-scoped.
func (h *LiquidHandlers) PostColour(c *gin.Context) {
	var in ColourIngest
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "Malformed colour sample"})
		return
	}
	if err := middleware.ValidateStruct(in); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "Channel values must be 0-255"})
		return
	}

	sample := models.SensorSample{R: in.R, G: in.G, B: in.B, IsBlood: in.IsBlood, Room: in.Room}
	h.colourHub.Broadcast("", sample)
	if in.Room != "" {
		scoped := sample
		scoped.Room = ""
		h.colourHub.Broadcast(in.Room, scoped)
	}
	c.Status(http.StatusOK)
}

// PostDetected handles POST /liquid/detected (write scope): broadcast a
// detection event to the global detection stream.
func (h *LiquidHandlers) PostDetected(c *gin.Context) {
	var in ColourIngest
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "Malformed detection event"})
		return
	}
	if err := middleware.ValidateStruct(in); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "Channel values must be 0-255"})
		return
	}

	h.detectionHub.Broadcast("", models.SensorSample{
		R: in.R, G: in.G, B: in.B, IsBlood: in.IsBlood, Room: in.Room,
	})
	c.Status(http.StatusOK)
}

// SubscribeColour handles GET /liquid/colour/subscribe?token=<T>[&room=<R>].
func (h *LiquidHandlers) SubscribeColour(c *gin.Context) {
	if !h.authorizeSubscribe(c, h.colourHub) {
		return
	}
	h.colourHub.HandleSubscribe(c, c.Query("room"))
}

// SubscribeDetected handles GET /liquid/detected/subscribe?token=<T>.
func (h *LiquidHandlers) SubscribeDetected(c *gin.Context) {
	if !h.authorizeSubscribe(c, h.detectionHub) {
		return
	}
	h.detectionHub.HandleSubscribe(c, "")
}

// authorizeSubscribe enforces the read scope on the subscribe token. A
// missing or invalid token closes the socket with a policy violation
// rather than failing the HTTP upgrade, matching the stream contract.
func (h *LiquidHandlers) authorizeSubscribe(c *gin.Context, hub *middleware.Hub) bool {
	if _, err := h.tokens.ValidateQueryToken(c, middleware.ScopeRead); err != nil {
		h.logger.Warn("subscribe rejected",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
		hub.RejectUpgrade(c, "invalid token")
		return false
	}
	return true
}
