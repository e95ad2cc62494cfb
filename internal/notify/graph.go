package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	msgraphsdk "github.com/microsoftgraph/msgraph-sdk-go"
	"github.com/microsoftgraph/msgraph-sdk-go/models"
	"github.com/microsoftgraph/msgraph-sdk-go/models/odataerrors"
	"github.com/microsoftgraph/msgraph-sdk-go/users"

	"pbirefresh/internal/common/logger"
	"pbirefresh/internal/common/retry"
	"pbirefresh/internal/common/security"
)

// GraphScope is the token scope for Microsoft Graph.
const GraphScope = "https://graph.microsoft.com/.default"

// NewGraphClient returns a Graph client authorized by cred.
func NewGraphClient(cred azcore.TokenCredential) (*msgraphsdk.GraphServiceClient, error) {
	client, err := msgraphsdk.NewGraphServiceClientWithCredentials(cred, []string{GraphScope})
	if err != nil {
		return nil, fmt.Errorf("graph client initialization failed: %w", err)
	}
	return client, nil
}

// GraphConfig configures Graph sendMail delivery.
type GraphConfig struct {
	// From is the mailbox the report is sent as, usually the signed-in user.
	From string
	To   []string
	Cc   []string

	Retries    int
	RetryDelay time.Duration
}

// GraphNotifier sends the report with POST /users/{from}/sendMail.
type GraphNotifier struct {
	client *msgraphsdk.GraphServiceClient
	cfg    GraphConfig
	logger *slog.Logger
}

// NewGraphNotifier returns a notifier sending through client.
func NewGraphNotifier(client *msgraphsdk.GraphServiceClient, cfg GraphConfig, log *slog.Logger) (*GraphNotifier, error) {
	if client == nil {
		return nil, errors.New("graph: client is required")
	}
	if cfg.From == "" {
		return nil, errors.New("graph: sender mailbox is required")
	}
	if len(cfg.To) == 0 {
		return nil, errors.New("graph: at least one recipient is required")
	}
	if log == nil {
		log = logger.Discard()
	}
	return &GraphNotifier{client: client, cfg: cfg, logger: log}, nil
}

func (g *GraphNotifier) Notify(ctx context.Context, r Report) error {
	message, err := g.buildMessage(r)
	if err != nil {
		return err
	}

	requestBody := users.NewItemSendMailPostRequestBody()
	requestBody.SetMessage(message)
	save := true
	requestBody.SetSaveToSentItems(&save)

	g.logger.Debug("Calling Graph API", "request", "POST /users/{id}/sendMail", "from", security.MaskEmail(g.cfg.From))
	err = retry.RetryWithBackoff(ctx, g.cfg.Retries, g.cfg.RetryDelay, g.logger, func() error {
		return enrichGraphError(g.client.Users().ByUserId(g.cfg.From).SendMail().Post(ctx, requestBody, nil))
	})
	if err != nil {
		return fmt.Errorf("graph sendMail: %w", err)
	}
	g.logger.Info("Report sent by Graph", "from", security.MaskEmail(g.cfg.From), "to", security.MaskEmails(g.cfg.To))
	return nil
}

func (g *GraphNotifier) buildMessage(r Report) (models.Messageable, error) {
	html, err := RenderHTML(r.Result)
	if err != nil {
		return nil, err
	}

	message := models.NewMessage()
	subject := r.subject()
	message.SetSubject(&subject)

	body := models.NewItemBody()
	body.SetContent(&html)
	contentType := models.HTML_BODYTYPE
	body.SetContentType(&contentType)
	message.SetBody(body)

	message.SetToRecipients(createRecipients(g.cfg.To))
	if len(g.cfg.Cc) > 0 {
		message.SetCcRecipients(createRecipients(g.cfg.Cc))
	}

	files, err := loadAttachments(r.Attachments, g.logger)
	if err != nil {
		return nil, err
	}
	if len(files) > 0 {
		message.SetAttachments(createFileAttachments(files))
	}
	return message, nil
}

func createFileAttachments(files []attachment) []models.Attachmentable {
	attachments := make([]models.Attachmentable, 0, len(files))
	for _, f := range files {
		a := models.NewFileAttachment()
		odataType := "#microsoft.graph.fileAttachment"
		a.SetOdataType(&odataType)
		name, contentType := f.Name, f.ContentType
		a.SetName(&name)
		a.SetContentType(&contentType)
		a.SetContentBytes(f.Data)
		attachments = append(attachments, a)
	}
	return attachments
}

func createRecipients(emails []string) []models.Recipientable {
	recipients := make([]models.Recipientable, len(emails))
	for i, email := range emails {
		recipient := models.NewRecipient()
		emailAddress := models.NewEmailAddress()
		address := email
		emailAddress.SetAddress(&address)
		recipient.SetEmailAddress(emailAddress)
		recipients[i] = recipient
	}
	return recipients
}

// graphError describes a Graph OData failure from fields extracted without
// going through ODataError.Error, which dereferences a missing message.
type graphError struct {
	code       string
	message    string
	retryAfter string
	temporary  bool
	err        error
}

func (g *graphError) Error() string {
	msg := "graph error"
	if g.temporary {
		msg = "graph temporary failure"
	}
	if g.code != "" {
		msg += fmt.Sprintf(" (code: %s)", g.code)
	}
	if g.retryAfter != "" {
		msg += fmt.Sprintf(" (retry after %s seconds)", g.retryAfter)
	}
	if g.message != "" {
		msg += ": " + g.message
	}
	return msg
}

func (g *graphError) Unwrap() error   { return g.err }
func (g *graphError) Temporary() bool { return g.temporary }

// enrichGraphError adds the OData code and Retry-After guidance to Graph errors.
// Throttling and availability codes are marked temporary.
func enrichGraphError(err error) error {
	if err == nil {
		return nil
	}

	var odataErr *odataerrors.ODataError
	if !errors.As(err, &odataErr) {
		return err
	}

	g := &graphError{err: err}
	if info := odataErr.GetErrorEscaped(); info != nil {
		if info.GetCode() != nil {
			g.code = *info.GetCode()
		}
		if info.GetMessage() != nil {
			g.message = *info.GetMessage()
		}
	}
	if g.code == "" && g.message == "" {
		g.message = fmt.Sprintf("request failed with status %d", odataErr.ResponseStatusCode)
	}

	switch g.code {
	case "TooManyRequests", "activityLimitReached", "ServiceUnavailable", "GatewayTimeout":
		g.temporary = true
		if h := odataErr.GetResponseHeaders(); h != nil {
			if v := h.Get("Retry-After"); len(v) > 0 {
				g.retryAfter = v[0]
			}
		}
	}
	return g
}
