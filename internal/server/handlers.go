package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"skycrash/internal/database"
	"skycrash/internal/game"
)

type betRequest struct {
	PlayerID string  `json:"player_id"`
	Amount   float64 `json:"amount"`
}

type cashoutRequest struct {
	PlayerID string `json:"player_id"`
}

type forceCrashRequest struct {
	Multipliers []float64 `json:"multipliers"`
}

// statusForError maps the engine's sentinel errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, game.ErrDuplicateBet),
		errors.Is(err, game.ErrConflict):
		return fiber.StatusConflict
	case errors.Is(err, game.ErrInvalidPlayer),
		errors.Is(err, game.ErrInvalidAmount),
		errors.Is(err, game.ErrBettingClosed),
		errors.Is(err, game.ErrInsufficientBalance),
		errors.Is(err, game.ErrNoActiveRound),
		errors.Is(err, game.ErrNoActiveBet),
		errors.Is(err, game.ErrAlreadyCrashed):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

func errorJSON(c *fiber.Ctx, err error) error {
	return c.Status(statusForError(err)).JSON(fiber.Map{
		"error": err.Error(),
	})
}

// gameStateHandler returns the current round, advancing it first so even a
// plain poll drives the state machine forward. Crash point and seed stay
// hidden until the round is over.
func (s *FiberServer) gameStateHandler(c *fiber.Ctx) error {
	round, err := s.engine.Advance(c.Context())
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(round.View())
}

func (s *FiberServer) gameHistoryHandler(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 0)
	entries, err := s.engine.History(c.Context(), limit)
	if err != nil {
		return errorJSON(c, err)
	}
	if entries == nil {
		entries = []game.HistoryEntry{}
	}
	return c.JSON(entries)
}

func (s *FiberServer) placeBetHandler(c *fiber.Ctx) error {
	var req betRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	result, err := s.engine.PlaceBet(c.Context(), req.PlayerID, req.Amount)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(result)
}

func (s *FiberServer) cashoutHandler(c *fiber.Ctx) error {
	var req cashoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	result, err := s.engine.CashOut(c.Context(), req.PlayerID)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(result)
}

// advanceHandler is the external scheduler's entry point. Any cadence works;
// the state machine catches up on its own.
func (s *FiberServer) advanceHandler(c *fiber.Ctx) error {
	if s.cronSecret != "" && c.Get("Authorization") != "Bearer "+s.cronSecret {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Unauthorized",
		})
	}

	round, err := s.engine.Advance(c.Context())
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(round.View())
}

func (s *FiberServer) forceCrashHandler(c *fiber.Ctx) error {
	if s.adminToken == "" || c.Get("Authorization") != "Bearer "+s.adminToken {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Unauthorized",
		})
	}

	var req forceCrashRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if len(req.Multipliers) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Multipliers must be a non-empty array",
		})
	}

	if err := s.engine.ForceCrashPoints(c.Context(), req.Multipliers); err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": fmt.Sprintf("Stored %d planned crashes", len(req.Multipliers)),
	})
}

func (s *FiberServer) getBalanceHandler(c *fiber.Ctx) error {
	playerID := c.Params("playerId")
	if playerID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Player ID is required",
		})
	}

	balance, err := s.ledger.Balance(c.Context(), playerID)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(fiber.Map{
		"player_id": playerID,
		"balance":   balance,
	})
}

// setBalanceHandler is the deposit/withdrawal collaborator surface: payment
// integrations and tests credit players through it.
func (s *FiberServer) setBalanceHandler(c *fiber.Ctx) error {
	playerID := c.Params("playerId")
	if playerID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Player ID is required",
		})
	}

	var body struct {
		Balance float64 `json:"balance"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if body.Balance < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Balance cannot be negative",
		})
	}

	if err := s.ledger.SetBalance(c.Context(), playerID, game.Floor2(body.Balance)); err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(fiber.Map{
		"player_id": playerID,
		"balance":   game.Floor2(body.Balance),
	})
}

func (s *FiberServer) getWagersHandler(c *fiber.Ctx) error {
	playerID := c.Params("playerId")
	if playerID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Player ID is required",
		})
	}

	limit := c.QueryInt("limit", 50)
	wagers, err := s.db.PlayerWagers(c.Context(), playerID, limit)
	if err != nil {
		return errorJSON(c, err)
	}
	if wagers == nil {
		wagers = []database.WagerRow{}
	}
	return c.JSON(wagers)
}

// gameWebSocketHandler serves real-time game updates and accepts bet/cashout
// commands over the socket.
func (s *FiberServer) gameWebSocketHandler(conn *websocket.Conn) {
	playerID := conn.Query("player_id", "anonymous")

	log.Printf("[WS] New connection from player: %s", playerID)

	s.hub.RegisterClient(conn, playerID)

	if round, err := s.engine.Advance(context.Background()); err == nil {
		initial, _ := json.Marshal(map[string]any{
			"event": "initial_state",
			"data":  round.View(),
		})
		conn.WriteMessage(websocket.TextMessage, initial)
	}

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			log.Printf("[WS] Read error for player %s: %v", playerID, err)
			s.hub.UnregisterClient(conn)
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var clientMsg map[string]any
		if err := json.Unmarshal(message, &clientMsg); err != nil {
			continue
		}
		msgType, ok := clientMsg["type"].(string)
		if !ok {
			continue
		}

		switch msgType {
		case "place_bet":
			amount, _ := strconv.ParseFloat(fmt.Sprintf("%v", clientMsg["amount"]), 64)
			result, err := s.engine.PlaceBet(context.Background(), playerID, amount)
			s.writeWSResult(conn, "bet_result", result, err)

		case "cashout":
			result, err := s.engine.CashOut(context.Background(), playerID)
			s.writeWSResult(conn, "cashout_result", result, err)

		case "ping":
			pong, _ := json.Marshal(map[string]string{"event": "pong"})
			conn.WriteMessage(websocket.TextMessage, pong)
		}
	}
}

func (s *FiberServer) writeWSResult(conn *websocket.Conn, event string, result any, err error) {
	payload := map[string]any{"event": event}
	if err != nil {
		payload["error"] = err.Error()
	} else {
		payload["data"] = result
	}
	msg, _ := json.Marshal(payload)
	conn.WriteMessage(websocket.TextMessage, msg)
}
