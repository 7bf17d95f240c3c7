package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"parkpay/backend/services/payment-service/internal/service"
)

// Line prefixes exchanged with the controller. Matching is by prefix, first match wins.
const (
	PrefixProcessPayment      = "PROCESS_PAYMENT:"
	PrefixInsufficientBalance = "INSUFFICIENT_BALANCE:"
	PrefixNewBalance          = "NEW_BALANCE:"
	PrefixError               = "ERROR:"
)

// Kind identifies an inbound command.
type Kind int

// Inbound command kinds.
const (
	KindUnknown Kind = iota
	KindProcessPayment
	KindInsufficientBalance
)

// ErrMalformedCommand is returned for a recognized prefix with an unusable payload.
var ErrMalformedCommand = errors.New("protocol: malformed command")

// Command is one decoded inbound line.
type Command struct {
	Kind    Kind
	Plate   string
	Balance int64
	Raw     string
}

type matcher struct {
	prefix string
	parse  func(raw, payload string) (Command, error)
}

var matchers = []matcher{
	{prefix: PrefixProcessPayment, parse: parseProcessPayment},
	{prefix: PrefixInsufficientBalance, parse: parseInsufficientBalance},
}

// ParseLine decodes a single line. Lines that match no prefix yield KindUnknown and no error.
func ParseLine(line string) (Command, error) {
	raw := strings.TrimSpace(line)
	for _, m := range matchers {
		if strings.HasPrefix(raw, m.prefix) {
			return m.parse(raw, raw[len(m.prefix):])
		}
	}
	return Command{Kind: KindUnknown, Raw: raw}, nil
}

func parseProcessPayment(raw, payload string) (Command, error) {
	parts := strings.Split(payload, ",")
	if len(parts) != 2 {
		return Command{}, fmt.Errorf("%w: want <plate>,<balance>, got %q", ErrMalformedCommand, payload)
	}
	balance, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return Command{}, fmt.Errorf("%w: balance %q", ErrMalformedCommand, parts[1])
	}
	return Command{
		Kind:    KindProcessPayment,
		Plate:   strings.TrimSpace(parts[0]),
		Balance: balance,
		Raw:     raw,
	}, nil
}

func parseInsufficientBalance(raw, payload string) (Command, error) {
	cmd := Command{Kind: KindInsufficientBalance, Raw: raw}
	if balance, err := strconv.ParseInt(strings.TrimSpace(payload), 10, 64); err == nil {
		cmd.Balance = balance
	}
	return cmd, nil
}

// EncodeReply renders the reply line for an authorization result, newline included.
func EncodeReply(res service.Result) string {
	if res.Status == service.StatusSuccess {
		return fmt.Sprintf("%s%d\n", PrefixNewBalance, res.NewBalance)
	}
	return fmt.Sprintf("%s%s\n", PrefixError, res.StatusText())
}
