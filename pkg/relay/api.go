package relay

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-motionbridge/internal/validation"
	"github.com/teslashibe/go-motionbridge/pkg/mapping"
	"github.com/teslashibe/go-motionbridge/pkg/motion"
	"github.com/teslashibe/go-motionbridge/pkg/protocol"
)

const msgPlayerDisconnected = "MotionPlayer is disconnected."

func (s *Server) registerAPI(app *fiber.App) {
	api := app.Group("/api")
	api.Get("/status", s.handleStatus)

	api.Post("/player", s.handleSetPlayer)
	api.Get("/player/mode", func(c *fiber.Ctx) error { return c.JSON(protocol.Modes) })
	api.Get("/player/target", func(c *fiber.Ctx) error { return c.JSON(protocol.Targets) })
	api.Post("/restart/player", s.handleRestartPlayer)
	api.Post("/stop/player", s.handleStopPlayer)

	api.Get("/motions", s.handleListMotions)

	api.Get("/haptics-mapping", s.handleGetHaptics)
	api.Post("/haptics-mapping", s.handleUpdateHaptics)
	api.Put("/haptics-mapping", s.handleDeleteHapticsEntry)
	api.Delete("/haptics-mapping/:program", s.handleDeleteHapticsProgram)

	api.Get("/gesture-mapping", s.handleGetGestures)
	api.Post("/gesture-mapping", s.handleUpdateGestures)
	api.Get("/special-gesture", s.handleSpecialGestures)

	api.Get("/audio-mapping", s.handleGetAudio)
	api.Post("/audio-mapping", s.handleUpdateAudio)

	api.Post("/reload", s.handleReload)

	app.Post("/motion/play", s.handlePlayInline)
	app.Post("/motion/play/:name", s.handlePlayNamed)
}

func errorJSON(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"error": msg})
}

func validationJSON(c *fiber.Ctx, verr *validation.RequestValidationError) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error":  "Validation Error: " + verr.Error(),
		"fields": verr.Fields(),
	})
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.hub.Status())
}

// handleSetPlayer forwards a mode and target change to the player. The
// relay state only changes once the player reports back.
func (s *Server) handleSetPlayer(c *fiber.Ctx) error {
	if !s.hub.PlayerConnected() {
		return errorJSON(c, fiber.StatusServiceUnavailable, msgPlayerDisconnected)
	}

	var req struct {
		Mode   *string `json:"mode"`
		Target *string `json:"target"`
	}
	if err := json.Unmarshal(c.Body(), &req); err != nil || req.Mode == nil || req.Target == nil {
		return errorJSON(c, fiber.StatusBadRequest, "Missing 'mode' or 'target' field")
	}
	mode, err := protocol.ParseMode(*req.Mode)
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, fmt.Sprintf("Valid modes: %v", protocol.Modes))
	}
	target, err := protocol.ParseTarget(*req.Target)
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, fmt.Sprintf("Valid targets: %v", protocol.Targets))
	}

	curMode, curTarget, _ := s.hub.State().Snapshot()
	if mode != curMode || target != curTarget {
		s.hub.SendToPlayers(protocol.NewModeUpdate(mode, target))
	}
	return c.JSON(fiber.Map{"message": "Sent config change to MotionPlayer."})
}

// handleRestartPlayer re-sends the current target so the player
// reconnects its hardware.
func (s *Server) handleRestartPlayer(c *fiber.Ctx) error {
	if !s.hub.PlayerConnected() {
		return c.JSON(fiber.Map{"message": "MotionPlayer is not running."})
	}
	_, target, _ := s.hub.State().Snapshot()
	s.hub.SendToPlayers(protocol.NewModeUpdate("", target))
	return c.JSON(fiber.Map{"message": "Sent restart signal to MotionPlayer."})
}

func (s *Server) handleStopPlayer(c *fiber.Ctx) error {
	if !s.hub.PlayerConnected() {
		return c.JSON(fiber.Map{"message": "MotionPlayer is not running."})
	}
	s.hub.SendToPlayers(protocol.NewShutdown())
	return c.JSON(fiber.Map{"message": "Sent shutdown signal to MotionPlayer."})
}

func (s *Server) handleListMotions(c *fiber.Ctx) error {
	names, err := s.library.List(true)
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(names)
}

// handlePlayNamed plays a library motion from the start.
func (s *Server) handlePlayNamed(c *fiber.Ctx) error {
	if !s.hub.PlayerConnected() {
		return errorJSON(c, fiber.StatusServiceUnavailable, msgPlayerDisconnected)
	}
	name := c.Params("name")
	if !s.library.Contains(name) {
		return errorJSON(c, fiber.StatusNotFound, fmt.Sprintf("Motion %s not found in motion library.", name))
	}
	s.hub.SendToPlayers(protocol.NewMotionCommand(name, protocol.BehaviorReplace, 1.0))
	return c.JSON(fiber.Map{"message": fmt.Sprintf("Sent motion %s to MotionPlayer.", name)})
}

// handlePlayInline plays an unsaved motion document.
func (s *Server) handlePlayInline(c *fiber.Ctx) error {
	if !s.hub.PlayerConnected() {
		return errorJSON(c, fiber.StatusServiceUnavailable, msgPlayerDisconnected)
	}
	body := append([]byte(nil), c.Body()...)
	doc, err := motion.ParseDocument(body)
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err.Error())
	}
	s.hub.SendToPlayers(protocol.NewMotionDataCommand(body, protocol.BehaviorReplace, 1.0))
	return c.JSON(fiber.Map{"message": fmt.Sprintf("Sent motion %s to MotionPlayer.", doc.Name)})
}

func (s *Server) handleGetHaptics(c *fiber.Ctx) error {
	return c.JSON(s.haptics.Mapping())
}

func (s *Server) handleUpdateHaptics(c *fiber.Ctx) error {
	var req mapping.HapticsProgram
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Validation Error: "+err.Error())
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		return validationJSON(c, verr)
	}
	if err := s.haptics.Update(req.Program, req.HapticsList); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err.Error())
	}
	if err := s.haptics.Save(); err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(s.haptics.Mapping())
}

func (s *Server) handleDeleteHapticsEntry(c *fiber.Ctx) error {
	var req struct {
		Program string `json:"program" validate:"required"`
		Haptics string `json:"haptics" validate:"required,haptics"`
	}
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Validation Error: "+err.Error())
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		return validationJSON(c, verr)
	}
	s.haptics.DeleteEntry(req.Program, req.Haptics)
	if err := s.haptics.Save(); err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(s.haptics.Mapping())
}

func (s *Server) handleDeleteHapticsProgram(c *fiber.Ctx) error {
	program := c.Params("program")
	if err := s.haptics.DeleteProgram(program); err != nil {
		if errors.Is(err, mapping.ErrProgramNotFound) {
			return errorJSON(c, fiber.StatusNotFound, fmt.Sprintf("Haptics map for program %s not found.", program))
		}
		return errorJSON(c, fiber.StatusInternalServerError, err.Error())
	}
	if err := s.haptics.Save(); err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(s.haptics.Mapping())
}

func (s *Server) handleGetGestures(c *fiber.Ctx) error {
	return c.JSON(s.gestures.Mapping())
}

func (s *Server) handleUpdateGestures(c *fiber.Ctx) error {
	var items []mapping.GestureItem
	if err := json.Unmarshal(c.Body(), &items); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Validation Error: "+err.Error())
	}
	for i := range items {
		if verr := validation.ValidateStruct(&items[i]); verr != nil {
			return validationJSON(c, verr)
		}
	}
	if err := s.gestures.Update(items); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err.Error())
	}
	if err := s.gestures.Save(); err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(s.gestures.Mapping())
}

func (s *Server) handleSpecialGestures(c *fiber.Ctx) error {
	return c.JSON(s.specials)
}

func (s *Server) handleGetAudio(c *fiber.Ctx) error {
	return c.JSON(s.audio.Mapping())
}

func (s *Server) handleUpdateAudio(c *fiber.Ctx) error {
	var req struct {
		mapping.AudioEntry
		Flip *bool `json:"flip,omitempty"`
	}
	req.AudioEntry = mapping.DefaultAudioEntry()
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Validation Error: "+err.Error())
	}
	if verr := validation.ValidateStruct(&req.AudioEntry); verr != nil {
		return validationJSON(c, verr)
	}
	if err := s.audio.Update(req.AudioEntry); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err.Error())
	}
	if req.Flip != nil {
		s.audio.SetFlip(*req.Flip)
	}
	return c.JSON(s.audio.Mapping())
}

// handleReload re-reads every mapping file and drops cached motions.
func (s *Server) handleReload(c *fiber.Ctx) error {
	err := errors.Join(s.haptics.Load(), s.audio.Load(), s.gestures.Load(), s.hub.State().Load())
	if err != nil {
		s.logger.Error("reload failed", "error", err)
		return errorJSON(c, fiber.StatusInternalServerError, "Unhandled error during reload: "+err.Error())
	}
	s.library.Invalidate("")
	s.hub.BroadcastStatus()
	s.logger.Info("reloaded all mappings")
	return c.JSON(fiber.Map{"message": "Reloaded all mappings successfully."})
}
