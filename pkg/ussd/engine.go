package ussd

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/voicepact/voicepact/pkg/contract"
)

// ContractDirectory is the slice of the contract engine the menus need.
type ContractDirectory interface {
	ActiveForPhone(phone string, limit int) ([]contract.Contract, error)
	GetContract(contractID string) (*contract.Contract, error)
	Transition(contractID string, target contract.Status, actor string) error
}

// Reply is a gateway response: the screen text plus whether the session
// continues. The wire form is "CON <text>" or "END <text>".
type Reply struct {
	Text string
	End  bool
}

// Render produces the wire form the gateway expects.
func (r Reply) Render() string {
	if r.End {
		return "END " + r.Text
	}
	return "CON " + r.Text
}

func respond(text string) Reply { return Reply{Text: text} }
func finish(text string) Reply  { return Reply{Text: text, End: true} }

const maxMenuContracts = 5

// Engine drives the USSD menu state machine. Every decision is derived
// from the persisted session plus the current input; nothing is held in
// process memory across requests.
type Engine struct {
	sessions  *SessionStore
	contracts ContractDirectory
	log       *zap.Logger
}

// NewEngine creates a USSD engine.
func NewEngine(sessions *SessionStore, contracts ContractDirectory, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{sessions: sessions, contracts: contracts, log: log}
}

// Handle processes one gateway request and returns the rendered response.
// The full input history arrives as a *-joined string; only the last
// segment is the current selection.
func (e *Engine) Handle(sessionID, phoneNumber, text string) string {
	session, wasReset, err := e.sessions.GetOrCreate(sessionID, phoneNumber)
	if err != nil {
		e.log.Error("ussd session load failed",
			zap.String("session_id", sessionID), zap.Error(err))
		return finish("Service temporarily unavailable. Please try again later.").Render()
	}

	input := lastSegment(text)

	var reply Reply
	switch {
	case text == "" || wasReset:
		// First request of a session, or a resumed-but-expired one: always
		// land on the main menu.
		session.CurrentMenu = MenuMain
		session.Context = SessionContext{}
		reply = respond(mainMenuText)
	default:
		reply = e.navigate(session, input, phoneNumber)
	}

	if err := e.sessions.Save(session, input, reply.Render()); err != nil {
		e.log.Error("ussd session save failed",
			zap.String("session_id", sessionID), zap.Error(err))
		return finish("Service temporarily unavailable. Please try again later.").Render()
	}
	if reply.End {
		if err := e.sessions.End(session); err != nil {
			e.log.Warn("ussd session end failed",
				zap.String("session_id", sessionID), zap.Error(err))
		}
	}
	return reply.Render()
}

func (e *Engine) navigate(session *SessionRecord, input, phone string) Reply {
	switch session.CurrentMenu {
	case MenuMain:
		return e.mainMenu(session, input, phone)
	case MenuContracts:
		return e.contractsMenu(session, input)
	case MenuContractDetail:
		return e.contractDetail(session, input)
	case MenuDelivery:
		return e.deliveryMenu(session, input, phone)
	default:
		session.CurrentMenu = MenuMain
		session.Context = SessionContext{}
		return respond(mainMenuText)
	}
}

const mainMenuText = `Welcome to VoicePact
1. View My Contracts
2. Confirm Delivery
3. Check Payments
4. Help & Support
0. Exit`

func (e *Engine) mainMenu(session *SessionRecord, input, phone string) Reply {
	switch input {
	case "1":
		contracts, err := e.contracts.ActiveForPhone(phone, maxMenuContracts)
		if err != nil {
			e.log.Error("ussd contract list failed", zap.String("phone", phone), zap.Error(err))
			return finish("Service temporarily unavailable. Please try again later.")
		}
		if len(contracts) == 0 {
			return respond("No active contracts found.\n0. Back to Main Menu")
		}

		session.CurrentMenu = MenuContracts
		ids := make([]string, 0, len(contracts))
		var b strings.Builder
		b.WriteString("Your Contracts:\n")
		for i, c := range contracts {
			ids = append(ids, c.ID)
			fmt.Fprintf(&b, "%d. %s (%s)\n", i+1, shortID(c.ID), c.Status)
		}
		b.WriteString("\n0. Back to Main Menu")
		session.Context = SessionContext{ContractIDs: ids}
		return respond(b.String())

	case "2":
		return respond("Quick Delivery\nEnter Contract ID:")

	case "3":
		return respond("Payment Status\nFeature coming soon.\n0. Back to Main Menu")

	case "4":
		return respond("VoicePact Help\nCall 0700123456 for support\nSMS 'HELP' to 40404\n0. Back to Main Menu")

	case "0":
		return finish("Thank you for using VoicePact!")

	default:
		return respond("Invalid selection. Please try again.\n" + mainMenuText)
	}
}

func (e *Engine) contractsMenu(session *SessionRecord, input string) Reply {
	if input == "0" {
		session.CurrentMenu = MenuMain
		session.Context = SessionContext{}
		return respond(mainMenuText)
	}

	idx, err := strconv.Atoi(input)
	if err != nil {
		return respond("Invalid input. Please enter a number.\n0. Back to Main Menu")
	}

	ids := session.Context.ContractIDs
	if idx < 1 || idx > len(ids) {
		return respond("Invalid selection. Please choose a valid contract number.\n0. Back to Main Menu")
	}

	c, err := e.contracts.GetContract(ids[idx-1])
	if err != nil {
		return respond("Contract not found.\n0. Main Menu")
	}

	session.CurrentMenu = MenuContractDetail
	session.Context.SelectedContract = c.ID
	return respond(detailText(c))
}

func (e *Engine) contractDetail(session *SessionRecord, input string) Reply {
	selected := session.Context.SelectedContract

	switch input {
	case "1":
		session.CurrentMenu = MenuDelivery
		return respond(fmt.Sprintf("Confirm Delivery\nContract: %s\n1. Full Delivery\n2. Partial Delivery\n3. Report Issue\n0. Back", shortID(selected)))

	case "2":
		return respond("Issue reported successfully.\nSupport team will contact you.\n0. Back to Main Menu")

	case "0":
		session.CurrentMenu = MenuContracts
		return respond("Back to contracts list...\n0. Main Menu")

	default:
		c, err := e.contracts.GetContract(selected)
		if err != nil {
			return respond("Contract not found.\n0. Main Menu")
		}
		return respond(detailText(c))
	}
}

func (e *Engine) deliveryMenu(session *SessionRecord, input, phone string) Reply {
	selected := session.Context.SelectedContract

	switch input {
	case "1":
		if err := e.contracts.Transition(selected, contract.StatusCompleted, phone); err != nil {
			e.log.Warn("ussd delivery confirmation rejected",
				zap.String("contract_id", selected), zap.Error(err))
			return finish("Cannot confirm delivery at this stage.\nCheck contract status and try again.")
		}
		return finish("Full delivery confirmed!\nBuyer will be notified.\nPayment will be processed.")

	case "2":
		return respond("Partial delivery noted.\nSMS will be sent for details.\n0. Main Menu")

	case "3":
		if err := e.contracts.Transition(selected, contract.StatusDisputed, phone); err != nil {
			e.log.Warn("ussd dispute rejected",
				zap.String("contract_id", selected), zap.Error(err))
			return finish("Cannot report an issue at this stage.")
		}
		return finish("Issue reported.\nContract marked for review.\nSupport will contact you.")

	case "0":
		session.CurrentMenu = MenuContractDetail
		c, err := e.contracts.GetContract(selected)
		if err != nil {
			return respond("Contract not found.\n0. Main Menu")
		}
		return respond(detailText(c))

	default:
		return respond("Invalid selection.\n0. Back")
	}
}

func detailText(c *contract.Contract) string {
	product := "Product"
	if v, ok := c.Terms["product"].(string); ok && v != "" {
		product = v
	}

	var b strings.Builder
	b.WriteString("Contract Details\n")
	fmt.Fprintf(&b, "%s\n", shortID(c.ID))
	fmt.Fprintf(&b, "Product: %s\n", product)
	fmt.Fprintf(&b, "Value: %s %s\n", c.Currency, contract.Money(c.TotalAmount))
	fmt.Fprintf(&b, "Status: %s\n\n", titleCase(string(c.Status)))
	if c.Status == contract.StatusActive {
		b.WriteString("1. Confirm Delivery\n")
	}
	b.WriteString("2. Report Issue\n0. Back")
	return b.String()
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// shortID truncates a contract ID for narrow USSD screens.
func shortID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:12] + "..."
}

// lastSegment extracts the current selection from the *-joined input
// history the gateway accumulates.
func lastSegment(text string) string {
	if text == "" {
		return ""
	}
	parts := strings.Split(text, "*")
	return parts[len(parts)-1]
}
