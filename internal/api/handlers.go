package api

import (
	"errors"
	"net/http"
	"time"

	"arena-service/internal/middleware"
	"arena-service/internal/service/rating"
	pkgAuth "arena-service/pkg/auth"
	appErr "arena-service/pkg/errors"
	"arena-service/pkg/response"

	"github.com/gin-gonic/gin"
)

type issueTokenBody struct {
	PlayerID string `json:"playerId" binding:"required"`
}

type reportResultBody struct {
	Result string `json:"result" binding:"required"` // a_win, b_win, draw
}

type internalPlayerBody struct {
	PlayerID string `json:"playerId" binding:"required"`
}

func (h *Handler) Healthz(c *gin.Context) {
	response.Success(c, gin.H{"status": "ok"})
}

// IssueToken creates the player on first sight and returns a bearer
// token. Dev-grade auth: real deployments front this with an identity
// provider.
func (h *Handler) IssueToken(c *gin.Context) {
	var body issueTokenBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request")
		return
	}

	profile, err := h.services.Profile.EnsurePlayer(c.Request.Context(), body.PlayerID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to load player")
		return
	}

	token, err := pkgAuth.GenerateToken(profile.ID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to issue token")
		return
	}
	response.Success(c, gin.H{"token": token, "playerId": profile.ID})
}

func (h *Handler) QueueJoin(c *gin.Context) {
	playerID := middleware.PlayerID(c)

	result, err := h.services.Cluster.AddPlayerToQueue(c.Request.Context(), playerID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, gin.H{
		"playerId":        result.PlayerID,
		"region":          result.Region,
		"position":        result.Position,
		"estimatedWaitMs": result.EstimatedWait.Milliseconds(),
	})
}

func (h *Handler) QueueLeave(c *gin.Context) {
	playerID := middleware.PlayerID(c)
	h.services.Cluster.RemovePlayerFromQueue(c.Request.Context(), playerID)
	response.Success(c, gin.H{"left": true})
}

func (h *Handler) QueueStatus(c *gin.Context) {
	playerID := middleware.PlayerID(c)

	status, err := h.services.Match.GetStatus(c.Request.Context(), playerID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, status)
}

func (h *Handler) ReportResult(c *gin.Context) {
	matchID := c.Param("id")

	var body reportResultBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request")
		return
	}

	var result rating.Result
	switch body.Result {
	case "a_win":
		result = rating.ResultAWin
	case "b_win":
		result = rating.ResultBWin
	case "draw":
		result = rating.ResultDraw
	default:
		response.Error(c, http.StatusBadRequest, "result must be a_win, b_win or draw")
		return
	}

	summary, err := h.services.Match.ReportMatchResult(c.Request.Context(), matchID, result)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, summary)
}

// ClusterStats is observability only: queue depth per region plus node
// health. Nothing should branch on it.
func (h *Handler) ClusterStats(c *gin.Context) {
	response.Success(c, gin.H{
		"regions":   h.services.Match.Stats(),
		"nodes":     h.services.Cluster.Stats(),
		"timestamp": time.Now().Unix(),
	})
}

func (h *Handler) InternalQueueJoin(c *gin.Context) {
	var body internalPlayerBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request")
		return
	}

	result, err := h.services.Match.JoinQueue(c.Request.Context(), body.PlayerID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, result)
}

// InternalQueueRehome is the failover enqueue: it transfers the
// player's owner claim to this node rather than contending for it.
func (h *Handler) InternalQueueRehome(c *gin.Context) {
	var body internalPlayerBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request")
		return
	}

	result, err := h.services.Match.Rehome(c.Request.Context(), body.PlayerID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, result)
}

func (h *Handler) InternalQueueLeave(c *gin.Context) {
	var body internalPlayerBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request")
		return
	}

	if err := h.services.Match.LeaveQueue(c.Request.Context(), body.PlayerID); err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, gin.H{"left": true})
}

func (h *Handler) InternalQueuePlayers(c *gin.Context) {
	response.Success(c, gin.H{"players": h.services.Match.QueuedPlayerIDs()})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, appErr.ErrUnauthorized):
		response.Error(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, appErr.ErrPlayerNotFound), errors.Is(err, appErr.ErrMatchNotFound):
		response.Error(c, http.StatusNotFound, err.Error())
	case errors.Is(err, appErr.ErrAlreadyInQueue),
		errors.Is(err, appErr.ErrQueueProcessing),
		errors.Is(err, appErr.ErrMatchAlreadySettled):
		response.Error(c, http.StatusConflict, err.Error())
	case errors.Is(err, appErr.ErrRegionUnavailable), errors.Is(err, appErr.ErrInvalidMatchResult):
		response.Error(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, appErr.ErrNoHealthyNodes), errors.Is(err, appErr.ErrNodeUnavailable):
		response.Error(c, http.StatusServiceUnavailable, err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, "internal error")
	}
}
