package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hoopcast/forecast-api/internal/models"
)

// PlayerBatchRequest is the body of a batch player prediction request
type PlayerBatchRequest struct {
	PlayerIDs []int `json:"player_ids" validate:"required,min=1,max=25,dive,gt=0"`
}

// GetTodaysGames returns today's schedule
// @Summary Get Today's Games
// @Tags Schedule
// @Produce json
// @Success 200 {object} models.Scoreboard
// @Failure 502 {object} map[string]string
// @Router /api/nba/games/today [get]
func (h *Handler) GetTodaysGames(w http.ResponseWriter, r *http.Request) {
	board, err := h.prediction.TodaysGames(r.Context())
	if err != nil {
		h.logger.Errorw("Failed to fetch schedule", "error", err)
		h.errorResponse(w, http.StatusBadGateway, "Failed to fetch today's schedule")
		return
	}
	h.jsonResponse(w, http.StatusOK, board)
}

// GetTodaysPredictions returns forecasts for every game on today's slate
// @Summary Get Today's Predictions
// @Tags Predictions
// @Produce json
// @Success 200 {object} models.SlatePrediction
// @Failure 503 {object} models.SlatePrediction "Warming up"
// @Router /api/nba/predictions/today [get]
func (h *Handler) GetTodaysPredictions(w http.ResponseWriter, r *http.Request) {
	slate, err := h.prediction.PredictSlate(r.Context())
	if err != nil {
		h.serviceError(w, err, "Failed to predict today's games")
		return
	}
	h.jsonResponse(w, h.gateStatus(w, slate.Status), slate)
}

// GetGamePrediction returns the forecast for one game on today's slate
// @Summary Get Game Prediction
// @Tags Predictions
// @Produce json
// @Param gameId path string true "Stats API game id"
// @Success 200 {object} models.GamePrediction
// @Failure 404 {object} map[string]string "Not on today's slate"
// @Failure 503 {object} models.GamePrediction "Warming up"
// @Router /api/nba/predictions/games/{gameId} [get]
func (h *Handler) GetGamePrediction(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameId")
	if gameID == "" {
		h.errorResponse(w, http.StatusBadRequest, "Game ID is required")
		return
	}

	pred, err := h.prediction.PredictGame(r.Context(), gameID)
	if err != nil {
		h.serviceError(w, err, "Failed to predict game")
		return
	}
	h.jsonResponse(w, h.gateStatus(w, pred.Status), pred)
}

// GetPlayerPrediction returns a player's points forecast
// @Summary Get Player Prediction
// @Tags Predictions
// @Produce json
// @Param playerId path int true "Stats API player id"
// @Success 200 {object} models.PlayerPrediction
// @Failure 400 {object} map[string]string
// @Failure 404 {object} models.PlayerPrediction "Unknown player"
// @Router /api/nba/predictions/players/{playerId} [get]
func (h *Handler) GetPlayerPrediction(w http.ResponseWriter, r *http.Request) {
	playerID, err := strconv.Atoi(chi.URLParam(r, "playerId"))
	if err != nil || playerID <= 0 {
		h.errorResponse(w, http.StatusBadRequest, "Player ID must be a positive integer")
		return
	}

	pred, err := h.prediction.PredictPlayer(r.Context(), playerID)
	if err != nil {
		h.serviceError(w, err, "Failed to predict player")
		return
	}

	status := http.StatusOK
	if pred.Status == models.StatusNotFound {
		status = http.StatusNotFound
	}
	h.jsonResponse(w, status, pred)
}

// PostPlayerPredictions forecasts a batch of players
// @Summary Batch Player Predictions
// @Tags Predictions
// @Accept json
// @Produce json
// @Param body body PlayerBatchRequest true "Up to 25 player ids"
// @Success 200 {object} map[string]models.BatchResult
// @Failure 400 {object} map[string]string
// @Router /api/nba/predictions/players [post]
func (h *Handler) PostPlayerPredictions(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodySize)

	var req PlayerBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorResponse(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		h.errorResponse(w, http.StatusBadRequest, "player_ids must hold 1 to 25 positive ids")
		return
	}

	results, err := h.prediction.PredictPlayers(r.Context(), req.PlayerIDs)
	if err != nil {
		h.serviceError(w, err, "Failed to predict players")
		return
	}
	h.jsonResponse(w, http.StatusOK, map[string]interface{}{"predictions": results})
}

// GetPlayerProps lists player points forecasts above a threshold
// @Summary Get Player Props
// @Tags Predictions
// @Produce json
// @Param player_ids query string false "Comma-separated player ids; defaults to today's rotation players"
// @Param threshold query number false "Minimum predicted points (default 15)"
// @Success 200 {array} models.PlayerProp
// @Failure 400 {object} map[string]string
// @Router /api/nba/props [get]
func (h *Handler) GetPlayerProps(w http.ResponseWriter, r *http.Request) {
	threshold := h.propsThreshold
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			h.errorResponse(w, http.StatusBadRequest, "threshold must be a non-negative number")
			return
		}
		threshold = v
	}

	var ids []int
	if raw := r.URL.Query().Get("player_ids"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			id, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil || id <= 0 {
				h.errorResponse(w, http.StatusBadRequest, "player_ids must be comma-separated positive integers")
				return
			}
			ids = append(ids, id)
		}
	}

	props, err := h.prediction.PlayerProps(r.Context(), ids, threshold)
	if err != nil {
		h.serviceError(w, err, "Failed to build player props")
		return
	}
	h.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"threshold": threshold,
		"count":     len(props),
		"props":     props,
	})
}

// gateStatus answers warm-up payloads with 503 and a retry hint.
func (h *Handler) gateStatus(w http.ResponseWriter, status string) int {
	if status == models.StatusWarmingUp {
		w.Header().Set("Retry-After", retryAfterSeconds)
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}
