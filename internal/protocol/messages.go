package protocol

// Wire envelopes exchanged with clients over the websocket. One flat
// envelope with optional payload pointers keeps decoding to a single
// pass on both ends.

type MessageType string

const (
	// client → server
	TypeQueue  MessageType = "queue"
	TypeCancel MessageType = "cancel"
	TypeMove   MessageType = "move"
	TypeResign MessageType = "resign"

	// server → client
	TypeColorAssigned        MessageType = "color-assigned"
	TypeOpponentInfo         MessageType = "opponent-info"
	TypeOpponentDisconnected MessageType = "opponent-disconnected"
	TypeOpponentReconnected  MessageType = "opponent-reconnected"
	TypeResync               MessageType = "resync"
	TypeGameOver             MessageType = "game-over"
	TypeError                MessageType = "error"
)

type Envelope struct {
	Type     MessageType   `json:"type"`
	Color    string        `json:"color,omitempty"`
	Opponent *OpponentInfo `json:"opponent,omitempty"`
	Move     *MoveMsg      `json:"move,omitempty"`
	Resync   *ResyncMsg    `json:"resync,omitempty"`
	Result   *GameOverMsg  `json:"result,omitempty"`
	Error    *ErrorMsg     `json:"error,omitempty"`
}

// OpponentInfo introduces the paired opponent at session start.
type OpponentInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Rating int    `json:"rating"`
	Wins   int    `json:"wins"`
	Losses int    `json:"losses"`
	Draws  int    `json:"draws"`
}

// MoveMsg is bidirectional: a candidate move inbound, the applied move
// outbound.
type MoveMsg struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
	SAN       string `json:"san,omitempty"`
	Check     bool   `json:"check,omitempty"`
}

// ResyncMsg is the full-state push realigning a reconnecting client.
type ResyncMsg struct {
	FEN   string   `json:"fen"`
	Moves []string `json:"moves"`
	Turn  string   `json:"turn"`
	Color string   `json:"color"`
}

type GameOverMsg struct {
	Outcome string `json:"outcome"`
	Method  string `json:"method,omitempty"`
	Winner  string `json:"winner,omitempty"`
}

type ErrorMsg struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

func ColorAssigned(color string) Envelope {
	return Envelope{Type: TypeColorAssigned, Color: color}
}

func Error(code, message string) Envelope {
	return Envelope{Type: TypeError, Error: &ErrorMsg{Code: code, Message: message}}
}
