package protocol

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"parkpay/backend/services/payment-service/internal/service"
)

// Authorizer settles a payment request and records its outcome.
type Authorizer interface {
	Authorize(ctx context.Context, plate string, balance int64) service.Result
}

// Handler reads command lines from the controller channel and answers them one at a time.
type Handler struct {
	authorizer Authorizer
	logger     *zap.Logger
}

// NewHandler builds Handler.
func NewHandler(authorizer Authorizer, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{authorizer: authorizer, logger: logger}
}

// Serve processes lines from rw until the channel fails or ctx is done. Each command is
// answered before the next line is read; requests are never pipelined.
func (h *Handler) Serve(ctx context.Context, rw io.ReadWriter) error {
	reader := bufio.NewReader(rw)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, readErr := reader.ReadString('\n')
		if line != "" {
			if err := h.HandleLine(ctx, line, rw); err != nil {
				return err
			}
		}
		if readErr != nil {
			return readErr
		}
	}
}

// HandleLine dispatches one line and writes at most one reply to w. Only a failed reply write
// is returned as an error.
func (h *Handler) HandleLine(ctx context.Context, line string, w io.Writer) error {
	cmd, err := ParseLine(line)
	if err != nil {
		h.logger.Warn("ignoring malformed command", zap.String("line", strings.TrimSpace(line)), zap.Error(err))
		return nil
	}

	switch cmd.Kind {
	case KindProcessPayment:
		res := h.authorizer.Authorize(ctx, cmd.Plate, cmd.Balance)
		reply := EncodeReply(res)
		if _, err := io.WriteString(w, reply); err != nil {
			return fmt.Errorf("protocol: write reply: %w", err)
		}
		h.logger.Debug("reply sent", zap.String("plate", cmd.Plate), zap.String("reply", reply))
	case KindInsufficientBalance:
		h.logger.Info("controller reported insufficient balance", zap.Int64("balance", cmd.Balance), zap.String("line", cmd.Raw))
	default:
		if cmd.Raw != "" {
			h.logger.Debug("ignoring unrecognized line", zap.String("line", cmd.Raw))
		}
	}
	return nil
}
