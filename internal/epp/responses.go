package epp

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"tshreg/internal/domain"
)

// Code is a protocol result code. The values follow the EPP result code
// registry so off-the-shelf registrar clients understand them.
type Code int

const (
	CodeSuccess        Code = 1000
	CodeUnknownCommand Code = 2000
	CodeCommandSyntax  Code = 2001
	CodeInvalidDomain  Code = 2005
	CodeAuthError      Code = 2200
	CodeObjectExists   Code = 2302
	CodeNotFound       Code = 2303
	CodeLimitExceeded  Code = 2308
	CodeSystemError    Code = 2400
)

// Response is one rendered protocol reply.
type Response struct {
	Code Code
	Body string
}

const xmlHeader = `<?xml version="1.0" encoding="UTF-8" standalone="no"?>`

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

func escape(s string) string {
	return xmlEscaper.Replace(s)
}

// trID renders the transaction block: the caller's correlation token (when
// present) echoed next to a fresh server transaction id.
func trID(clTRID string) string {
	var b strings.Builder
	b.WriteString("    <trID>\n")
	if clTRID != "" {
		fmt.Fprintf(&b, "      <clTRID>%s</clTRID>\n", escape(clTRID))
	}
	fmt.Fprintf(&b, "      <svTRID>%s</svTRID>\n", uuid.NewString())
	b.WriteString("    </trID>\n")
	return b.String()
}

func resultOnly(code Code, msg string) Response {
	body := fmt.Sprintf(`%s
<epp xmlns="urn:ietf:params:xml:ns:epp-1.0">
  <response>
    <result code="%d">
      <msg lang="en">%s</msg>
    </result>
  </response>
</epp>`, xmlHeader, code, msg)
	return Response{Code: code, Body: body}
}

func AuthError() Response     { return resultOnly(CodeAuthError, "Authentication error") }
func InvalidDomain() Response { return resultOnly(CodeInvalidDomain, "Invalid domain name format") }
func Unavailable() Response   { return resultOnly(CodeObjectExists, "Domain name is not available") }
func NotFound() Response      { return resultOnly(CodeNotFound, "Object does not exist") }
func RateLimited() Response   { return resultOnly(CodeLimitExceeded, "Rate limit exceeded") }
func UsageLimited() Response  { return resultOnly(CodeLimitExceeded, "Usage limit exceeded") }
func UnknownCmd() Response    { return resultOnly(CodeUnknownCommand, "Unknown command") }
func MalformedCmd() Response  { return resultOnly(CodeCommandSyntax, "Command syntax error") }
func SystemError() Response   { return resultOnly(CodeSystemError, "Command failed") }

// LoginSuccess returns the fresh session token in the transaction block,
// where clients echo it back as their correlation token.
func LoginSuccess(sessionID string) Response {
	body := fmt.Sprintf(`%s
<epp xmlns="urn:ietf:params:xml:ns:epp-1.0">
  <response>
    <result code="%d">
      <msg lang="en">Command completed successfully</msg>
    </result>
%s  </response>
</epp>`, xmlHeader, CodeSuccess, trID(sessionID))
	return Response{Code: CodeSuccess, Body: body}
}

func CheckResponse(name string, available bool, sessionID string) Response {
	avail := "0"
	reason := "\n          <domain:reason>In use</domain:reason>"
	if available {
		avail = "1"
		reason = ""
	}
	body := fmt.Sprintf(`%s
<epp xmlns="urn:ietf:params:xml:ns:epp-1.0">
  <response>
    <result code="%d">
      <msg lang="en">Command completed successfully</msg>
    </result>
    <resData>
      <domain:chkData xmlns:domain="urn:ietf:params:xml:ns:domain-1.0">
        <domain:cd>
          <domain:name avail="%s">%s</domain:name>%s
        </domain:cd>
      </domain:chkData>
    </resData>
%s  </response>
</epp>`, xmlHeader, CodeSuccess, avail, escape(name), reason, trID(sessionID))
	return Response{Code: CodeSuccess, Body: body}
}

func CreateSuccess(d *domain.Domain, sessionID string) Response {
	body := fmt.Sprintf(`%s
<epp xmlns="urn:ietf:params:xml:ns:epp-1.0">
  <response>
    <result code="%d">
      <msg lang="en">Command completed successfully</msg>
    </result>
    <resData>
      <domain:creData xmlns:domain="urn:ietf:params:xml:ns:domain-1.0">
        <domain:name>%s</domain:name>
        <domain:crDate>%s</domain:crDate>
        <domain:exDate>%s</domain:exDate>
      </domain:creData>
    </resData>
%s  </response>
</epp>`, xmlHeader, CodeSuccess, escape(d.Name), formatTime(d.CreatedAt), formatTimePtr(d.ExpiryDate), trID(sessionID))
	return Response{Code: CodeSuccess, Body: body}
}

func InfoResponse(d *domain.Domain, sessionID string) Response {
	upDate := ""
	if d.UpdatedAt != nil {
		upDate = fmt.Sprintf("\n        <domain:upDate>%s</domain:upDate>", formatTime(*d.UpdatedAt))
	}
	body := fmt.Sprintf(`%s
<epp xmlns="urn:ietf:params:xml:ns:epp-1.0">
  <response>
    <result code="%d">
      <msg lang="en">Command completed successfully</msg>
    </result>
    <resData>
      <domain:infData xmlns:domain="urn:ietf:params:xml:ns:domain-1.0">
        <domain:name>%s</domain:name>
        <domain:status s="%s"/>
        <domain:registrant>%s</domain:registrant>
        <domain:crDate>%s</domain:crDate>%s
        <domain:exDate>%s</domain:exDate>
      </domain:infData>
    </resData>
%s  </response>
</epp>`, xmlHeader, CodeSuccess, escape(d.Name), d.Status, escape(d.Registrar), formatTime(d.CreatedAt), upDate, formatTimePtr(d.ExpiryDate), trID(sessionID))
	return Response{Code: CodeSuccess, Body: body}
}

// Greeting is sent on connect and in answer to a hello command.
func Greeting(serverID string) Response {
	body := fmt.Sprintf(`%s
<epp xmlns="urn:ietf:params:xml:ns:epp-1.0">
  <greeting>
    <svID>%s</svID>
    <svDate>%s</svDate>
    <svcMenu>
      <version>1.0</version>
      <lang>en</lang>
      <objURI>urn:ietf:params:xml:ns:domain-1.0</objURI>
    </svcMenu>
  </greeting>
</epp>`, xmlHeader, escape(serverID), time.Now().UTC().Format(time.RFC3339))
	return Response{Code: CodeSuccess, Body: body}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return "not available"
	}
	return formatTime(*t)
}
