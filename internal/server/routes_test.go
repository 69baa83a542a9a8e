package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"

	"skycrash/internal/game"
)

func TestHealthHandler(t *testing.T) {
	// Minimal Fiber app mirroring the health route shape.
	app := fiber.New()

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"message": "Server is running",
		})
	})

	req, err := http.NewRequest("GET", "/health", nil)
	if err != nil {
		t.Fatalf("could not create request: %v", err)
	}

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("could not perform request: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status OK; got %v", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("could not read response body: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("could not unmarshal response: %v", err)
	}

	if result["status"] != "ok" {
		t.Errorf("expected status to be 'ok'; got %v", result["status"])
	}
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"duplicate bet", game.ErrDuplicateBet, fiber.StatusConflict},
		{"write conflict", game.ErrConflict, fiber.StatusConflict},
		{"invalid player", game.ErrInvalidPlayer, fiber.StatusBadRequest},
		{"invalid amount", game.ErrInvalidAmount, fiber.StatusBadRequest},
		{"betting closed", game.ErrBettingClosed, fiber.StatusBadRequest},
		{"insufficient balance", game.ErrInsufficientBalance, fiber.StatusBadRequest},
		{"no active round", game.ErrNoActiveRound, fiber.StatusBadRequest},
		{"no active bet", game.ErrNoActiveBet, fiber.StatusBadRequest},
		{"already crashed", game.ErrAlreadyCrashed, fiber.StatusBadRequest},
		{"unknown", errors.New("redis exploded"), fiber.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusForError(tt.err); got != tt.want {
				t.Errorf("statusForError(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}

	// Wrapped sentinels must map the same as bare ones.
	wrapped := fmt.Errorf("place bet: %w", game.ErrDuplicateBet)
	if got := statusForError(wrapped); got != fiber.StatusConflict {
		t.Errorf("wrapped duplicate bet mapped to %d, want %d", got, fiber.StatusConflict)
	}
}
