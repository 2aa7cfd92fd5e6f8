package epp

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrUnknownCommand means the payload matches none of the recognized
// command shapes.
var ErrUnknownCommand = errors.New("unknown command")

// ErrMalformedCommand means the payload matches a recognized shape but is
// missing a required field. Distinct from ErrUnknownCommand so callers can
// answer the two differently.
var ErrMalformedCommand = errors.New("malformed command")

var (
	commandRe = regexp.MustCompile(`(?s)<command>(.*?)</command>`)
	helloRe   = regexp.MustCompile(`<hello\s*/?>`)
	loginRe   = regexp.MustCompile(`<login[\s>/]`)
	checkRe   = regexp.MustCompile(`<check[\s>/]`)
	createRe  = regexp.MustCompile(`<create[\s>/]`)
	infoRe    = regexp.MustCompile(`<info[\s>/]`)

	clIDRe   = regexp.MustCompile(`<clID>([^<]+)</clID>`)
	pwRe     = regexp.MustCompile(`<pw>([^<]+)</pw>`)
	domainRe = regexp.MustCompile(`<domain:name[^>]*>([^<]+)</domain:name>`)
	clTRIDRe = regexp.MustCompile(`<clTRID>([^<]+)</clTRID>`)
)

func extract(re *regexp.Regexp, payload []byte) string {
	if m := re.FindSubmatch(payload); m != nil {
		return string(m[1])
	}
	return ""
}

// ParseCommand classifies one wire message into a Command. The classifier is
// total: every input yields a Command, ErrMalformedCommand, or
// ErrUnknownCommand. Domain-name syntax and business rules are not checked
// here; that is the dispatcher's job.
func ParseCommand(payload []byte) (Command, error) {
	if helloRe.Match(payload) {
		return HelloCommand{}, nil
	}

	m := commandRe.FindSubmatch(payload)
	if m == nil {
		return nil, ErrUnknownCommand
	}
	body := m[1]

	clID := extract(clIDRe, payload)
	pw := extract(pwRe, payload)
	domain := extract(domainRe, payload)
	clTRID := extract(clTRIDRe, payload)

	switch {
	case loginRe.Match(body):
		if clID == "" || pw == "" {
			return nil, fmt.Errorf("%w: login requires clID and pw", ErrMalformedCommand)
		}
		return LoginCommand{ID: clID, Password: pw}, nil

	case checkRe.Match(body):
		if domain == "" {
			return nil, fmt.Errorf("%w: check requires a domain name", ErrMalformedCommand)
		}
		return CheckCommand{Domain: domain, SessionID: clTRID}, nil

	case createRe.Match(body):
		if domain == "" || clID == "" {
			return nil, fmt.Errorf("%w: create requires a domain name and clID", ErrMalformedCommand)
		}
		return CreateCommand{Domain: domain, Registrar: clID, SessionID: clTRID}, nil

	case infoRe.Match(body):
		if domain == "" {
			return nil, fmt.Errorf("%w: info requires a domain name", ErrMalformedCommand)
		}
		return InfoCommand{Domain: domain, SessionID: clTRID}, nil

	default:
		return nil, ErrUnknownCommand
	}
}
