// Package broker carries typed, versioned game events between the engine and
// the gateway over a RabbitMQ topic exchange. Routing keys are operator
// scoped; neither process shares memory with the other.
package broker

import (
	"fmt"
	"regexp"
)

const Exchange = "crash.game"

// operatorSlug rejects anything that could collide with AMQP routing-key
// separators or wildcards.
var operatorSlug = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,62}$`)

func ValidateOperatorID(operatorID string) error {
	if !operatorSlug.MatchString(operatorID) {
		return fmt.Errorf("broker: operator id %q is not a safe slug", operatorID)
	}
	return nil
}

func mustTopic(operatorID, suffix string) string {
	if err := ValidateOperatorID(operatorID); err != nil {
		panic(err)
	}
	return "game." + operatorID + "." + suffix
}

func TopicRoundNew(op string) string      { return mustTopic(op, "round.new") }
func TopicRoundBetting(op string) string  { return mustTopic(op, "round.betting") }
func TopicRoundStarted(op string) string  { return mustTopic(op, "round.started") }
func TopicRoundCrashed(op string) string  { return mustTopic(op, "round.crashed") }
func TopicTick(op string) string          { return mustTopic(op, "tick") }
func TopicBetPlaced(op string) string     { return mustTopic(op, "bet.placed") }
func TopicBetWon(op string) string        { return mustTopic(op, "bet.won") }
func TopicBetLost(op string) string       { return mustTopic(op, "bet.lost") }
func TopicBetRejected(op string) string   { return mustTopic(op, "bet.rejected") }
func TopicCreditFailed(op string) string  { return mustTopic(op, "credit.failed") }
func TopicCmdPlaceBet(op string) string   { return mustTopic(op, "cmd.place-bet") }
func TopicCmdCashout(op string) string    { return mustTopic(op, "cmd.cashout") }

// TopicAllGameEvents is the binding pattern a gateway uses to receive every
// message for one operator. Command subjects match too; subscribers that
// only relay events skip command kinds on receipt.
func TopicAllGameEvents(op string) string { return mustTopic(op, "#") }

// TopicAllCommands is the binding pattern the engine uses to receive
// inbound client commands.
func TopicAllCommands(op string) string { return mustTopic(op, "cmd.*") }

// TopicFor maps an event kind to its routing key.
func TopicFor(kind EventKind, op string) (string, error) {
	if err := ValidateOperatorID(op); err != nil {
		return "", err
	}
	switch kind {
	case EventRoundNew:
		return TopicRoundNew(op), nil
	case EventRoundBetting:
		return TopicRoundBetting(op), nil
	case EventRoundStarted:
		return TopicRoundStarted(op), nil
	case EventRoundCrashed:
		return TopicRoundCrashed(op), nil
	case EventTick:
		return TopicTick(op), nil
	case EventBetPlaced:
		return TopicBetPlaced(op), nil
	case EventBetWon:
		return TopicBetWon(op), nil
	case EventBetLost:
		return TopicBetLost(op), nil
	case EventBetRejected:
		return TopicBetRejected(op), nil
	case EventCreditFailed:
		return TopicCreditFailed(op), nil
	case CommandPlaceBet:
		return TopicCmdPlaceBet(op), nil
	case CommandCashout:
		return TopicCmdCashout(op), nil
	}
	return "", fmt.Errorf("broker: no topic for event kind %q", kind)
}
