// Package epp implements the registry wire protocol: the command parser,
// the response code table, the dispatch state machine, and the TCP server.
package epp

// Command is the closed set of wire commands. Each inbound message parses
// into exactly one variant, which the dispatcher consumes once.
type Command interface {
	// Name identifies the variant for logs and metrics.
	Name() string
}

// HelloCommand requests the server greeting.
type HelloCommand struct{}

func (HelloCommand) Name() string { return "hello" }

// LoginCommand authenticates a registrar and opens a session.
type LoginCommand struct {
	ID       string
	Password string
}

func (LoginCommand) Name() string { return "login" }

// CheckCommand asks whether a domain is available.
type CheckCommand struct {
	Domain    string
	SessionID string
}

func (CheckCommand) Name() string { return "check" }

// CreateCommand claims a domain for a registrar.
type CreateCommand struct {
	Domain    string
	Registrar string
	SessionID string
}

func (CreateCommand) Name() string { return "create" }

// InfoCommand requests the full record of a domain.
type InfoCommand struct {
	Domain    string
	SessionID string
}

func (InfoCommand) Name() string { return "info" }
