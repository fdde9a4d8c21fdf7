package nodes

import (
	"context"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/flowloom/loom/internal/service"
	"github.com/flowloom/loom/internal/service/workflow"
	"github.com/flowloom/loom/internal/tplengine"
)

const (
	gmailSMTPHost = "smtp.gmail.com"
	gmailSMTPPort = 587
	smtpTimeout   = 30 * time.Second
)

func init() {
	workflow.RegisterNodeType("send_email", newSendEmail)
}

// sendEmail sends a single message over Gmail's SMTP relay. The parameter
// set is fixed rather than arbitrary host/port/TLS/proxy configuration:
// from_email/app_password authenticate directly against smtp.gmail.com via
// STARTTLS.
type sendEmail struct {
	name        string
	fromEmail   string
	appPassword string
	to          string
	subjectTmpl string
	bodyTmpl    string
}

func newSendEmail(n service.WorkflowNode) (workflow.Noder, error) {
	e := &sendEmail{name: n.Name}

	if v, ok := n.Parameters["from_email"].(string); ok {
		e.fromEmail = v
	}
	if v, ok := n.Parameters["app_password"].(string); ok {
		e.appPassword = v
	}
	if v, ok := n.Parameters["to"].(string); ok {
		e.to = v
	}
	if v, ok := n.Parameters["subject"].(string); ok {
		e.subjectTmpl = v
	}
	if v, ok := n.Parameters["body"].(string); ok {
		e.bodyTmpl = v
	}

	return e, nil
}

func (e *sendEmail) Name() string { return e.name }
func (e *sendEmail) Kind() string { return "send_email" }

func (e *sendEmail) ValidateParameters() error {
	missing := func(name string) error {
		return &workflow.ValidationError{Node: e.name, Reason: fmt.Sprintf("%s is required", name)}
	}
	if e.fromEmail == "" {
		return missing("from_email")
	}
	if e.appPassword == "" {
		return missing("app_password")
	}
	if e.to == "" {
		return missing("to")
	}
	if e.subjectTmpl == "" {
		return missing("subject")
	}
	if e.bodyTmpl == "" {
		return missing("body")
	}
	return nil
}

func (e *sendEmail) Execute(_ context.Context, ec *workflow.Context) (any, error) {
	subject, err := tplengine.Render(e.subjectTmpl, ec.Data())
	if err != nil {
		return nil, &workflow.NodeExecutionError{Node: e.name, Reason: "render subject template", Cause: err}
	}
	body, err := tplengine.Render(e.bodyTmpl, ec.Data())
	if err != nil {
		return nil, &workflow.NodeExecutionError{Node: e.name, Reason: "render body template", Cause: err}
	}

	m := mail.NewMsg()
	if err := m.From(e.fromEmail); err != nil {
		return nil, &workflow.NodeExecutionError{Node: e.name, Reason: "set from address", Cause: err}
	}
	if err := m.To(e.to); err != nil {
		return nil, &workflow.NodeExecutionError{Node: e.name, Reason: "set to address", Cause: err}
	}
	m.Subject(subject)
	m.SetBodyString(mail.TypeTextPlain, body)

	c, err := mail.NewClient(gmailSMTPHost,
		mail.WithPort(gmailSMTPPort),
		mail.WithTimeout(smtpTimeout),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(e.fromEmail),
		mail.WithPassword(e.appPassword),
		mail.WithTLSPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return nil, &workflow.NodeExecutionError{Node: e.name, Reason: "create smtp client", Cause: err}
	}

	if err := c.DialAndSend(m); err != nil {
		return nil, &workflow.NodeExecutionError{Node: e.name, Reason: "send message", Cause: err}
	}

	return map[string]any{
		"success":  true,
		"provider": "gmail",
		"sent_to":  e.to,
		"subject":  subject,
		"body":     body,
	}, nil
}
