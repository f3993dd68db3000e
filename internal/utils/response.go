package utils

import "github.com/gofiber/fiber/v2"

const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Envelope is the structure every handler replies with.
type Envelope struct {
	Result         string      `json:"result"`
	Msg            string      `json:"msg"`
	NewStageStates interface{} `json:"new_stage_states,omitempty"`
	Data           interface{} `json:"data,omitempty"`
}

// SendSuccess sends a successful envelope with a message.
func SendSuccess(c *fiber.Ctx, message string, data interface{}) error {
	return SendSuccessWithStates(c, fiber.StatusOK, message, nil, data)
}

// SendSuccessWithStates sends a successful envelope that also reports recomputed stage states.
func SendSuccessWithStates(c *fiber.Ctx, status int, message string, states interface{}, data interface{}) error {
	if message == "" {
		message = "success"
	}
	if status == 0 {
		status = fiber.StatusOK
	}

	return c.Status(status).JSON(Envelope{
		Result:         ResultSuccess,
		Msg:            message,
		NewStageStates: states,
		Data:           data,
	})
}

// SendError sends an error envelope with the given status code.
func SendError(c *fiber.Ctx, status int, message string) error {
	if message == "" {
		message = "error"
	}

	return c.Status(status).JSON(Envelope{
		Result: ResultError,
		Msg:    message,
	})
}

// SendErrorWithData sends an error envelope that still carries a payload, such as validation messages.
func SendErrorWithData(c *fiber.Ctx, status int, message string, data interface{}) error {
	if message == "" {
		message = "error"
	}

	return c.Status(status).JSON(Envelope{
		Result: ResultError,
		Msg:    message,
		Data:   data,
	})
}
