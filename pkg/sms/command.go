package sms

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/voicepact/voicepact/pkg/contract"
)

// Action is a recognized inbound SMS command.
type Action string

const (
	ActionConfirm        Action = "confirm"
	ActionReject         Action = "reject"
	ActionAcceptDelivery Action = "accept_delivery"
	ActionDispute        Action = "dispute"
)

// ErrUnknownCommand is returned for messages that match no command prefix.
var ErrUnknownCommand = errors.New("sms: unknown command")

// commandPrefixes maps, in match order, each keyword prefix to its action.
var commandPrefixes = []struct {
	prefix string
	action Action
}{
	{"YES-", ActionConfirm},
	{"NO-", ActionReject},
	{"ACCEPT-", ActionAcceptDelivery},
	{"DISPUTE-", ActionDispute},
}

// ParseCommand extracts the action and contract ID from an inbound message.
// Matching is case-insensitive and whitespace-tolerant; the contract ID is
// normalized to upper case.
func ParseCommand(message string) (Action, string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(message))
	for _, c := range commandPrefixes {
		if strings.HasPrefix(normalized, c.prefix) {
			id := strings.TrimSpace(strings.TrimPrefix(normalized, c.prefix))
			if id == "" {
				return "", "", fmt.Errorf("%w: missing contract id", ErrUnknownCommand)
			}
			return c.action, id, nil
		}
	}
	return "", "", ErrUnknownCommand
}

// CommandResult is the outcome of dispatching one inbound command.
type CommandResult struct {
	Status     string `json:"status"`
	Action     Action `json:"action,omitempty"`
	ContractID string `json:"contractId,omitempty"`
	// ResponseMessage is the human-readable reply sent back to the sender.
	ResponseMessage string `json:"responseMessage,omitempty"`
	// QuorumReached is set when a confirm completed the signature quorum.
	QuorumReached bool `json:"quorumReached,omitempty"`
}

// Dispatcher executes inbound SMS commands against the contract engine.
// YES/NO record signatures and let quorum decide; ACCEPT/DISPUTE act on
// the contract status directly.
type Dispatcher struct {
	contracts *contract.Store
	log       *zap.Logger
}

// NewDispatcher creates a command dispatcher.
func NewDispatcher(contracts *contract.Store, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{contracts: contracts, log: log}
}

// Dispatch parses and executes one inbound message from the given phone.
// Unknown commands and unknown contracts produce a non-error CommandResult
// so the webhook always acknowledges the gateway.
func (d *Dispatcher) Dispatch(phoneNumber, message string) (*CommandResult, error) {
	action, contractID, err := ParseCommand(message)
	if err != nil {
		return &CommandResult{Status: "unknown_command", ResponseMessage: "Unknown SMS command"}, nil
	}

	if _, err := d.contracts.Get(contractID); err != nil {
		var nfErr *contract.NotFoundError
		if errors.As(err, &nfErr) {
			return &CommandResult{Status: "contract_not_found", ContractID: contractID}, nil
		}
		return nil, err
	}

	result := &CommandResult{Status: "processed", Action: action, ContractID: contractID}

	switch action {
	case ActionConfirm, ActionReject:
		decision := contract.DecisionConfirm
		if action == ActionReject {
			decision = contract.DecisionReject
		}
		sig, err := d.contracts.RecordSignature(contractID, phoneNumber, decision)
		if err != nil {
			var vErr *contract.ValidationError
			if errors.As(err, &vErr) {
				return &CommandResult{
					Status:          "rejected",
					Action:          action,
					ContractID:      contractID,
					ResponseMessage: vErr.Message,
				}, nil
			}
			return nil, err
		}
		result.QuorumReached = sig.QuorumReached
		if action == ActionConfirm {
			result.ResponseMessage = fmt.Sprintf("Contract %s confirmed successfully", contractID)
			if sig.QuorumReached {
				d.log.Info("contract fully confirmed by all parties",
					zap.String("contract_id", contractID))
			}
		} else {
			result.ResponseMessage = fmt.Sprintf("Contract %s rejected", contractID)
		}

	case ActionAcceptDelivery:
		if err := d.contracts.Transition(contractID, contract.StatusCompleted, phoneNumber); err != nil {
			return d.transitionFailure(result, err)
		}
		result.ResponseMessage = fmt.Sprintf("Delivery accepted for contract %s", contractID)

	case ActionDispute:
		if err := d.contracts.Transition(contractID, contract.StatusDisputed, phoneNumber); err != nil {
			return d.transitionFailure(result, err)
		}
		result.ResponseMessage = fmt.Sprintf("Dispute raised for contract %s. Mediation will be initiated.", contractID)
	}

	return result, nil
}

func (d *Dispatcher) transitionFailure(result *CommandResult, err error) (*CommandResult, error) {
	var tErr *contract.TransitionError
	var iErr *contract.IntegrityError
	switch {
	case errors.As(err, &tErr):
		result.Status = "rejected"
		result.ResponseMessage = tErr.Message
		return result, nil
	case errors.As(err, &iErr):
		result.Status = "rejected"
		result.ResponseMessage = "Contract failed integrity verification. Contact support."
		return result, nil
	default:
		return nil, err
	}
}
