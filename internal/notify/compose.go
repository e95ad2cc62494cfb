package notify

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/emersion/go-message/mail"
)

// Envelope addresses a composed message.
type Envelope struct {
	From string
	To   []string
	Cc   []string
}

// Compose writes r as a MIME message: a text/HTML alternative followed by the
// attachments.
func Compose(w io.Writer, env Envelope, r Report, logger *slog.Logger) error {
	html, err := RenderHTML(r.Result)
	if err != nil {
		return err
	}
	files, err := loadAttachments(r.Attachments, logger)
	if err != nil {
		return err
	}

	var h mail.Header
	h.SetDate(time.Now())
	h.SetSubject(r.subject())
	h.SetAddressList("From", addressList([]string{env.From}))
	h.SetAddressList("To", addressList(env.To))
	if len(env.Cc) > 0 {
		h.SetAddressList("Cc", addressList(env.Cc))
	}
	if err := h.GenerateMessageID(); err != nil {
		return fmt.Errorf("generate Message-ID: %w", err)
	}

	mw, err := mail.CreateWriter(w, h)
	if err != nil {
		return fmt.Errorf("create message: %w", err)
	}

	iw, err := mw.CreateInline()
	if err != nil {
		return err
	}
	if err := writeInline(iw, "text/plain", RenderText(r.Result)); err != nil {
		return err
	}
	if err := writeInline(iw, "text/html", html); err != nil {
		return err
	}
	if err := iw.Close(); err != nil {
		return err
	}

	for _, f := range files {
		var ah mail.AttachmentHeader
		ah.Set("Content-Type", f.ContentType)
		ah.SetFilename(f.Name)

		aw, err := mw.CreateAttachment(ah)
		if err != nil {
			return fmt.Errorf("attach %s: %w", f.Name, err)
		}
		if _, err := aw.Write(f.Data); err != nil {
			return fmt.Errorf("attach %s: %w", f.Name, err)
		}
		if err := aw.Close(); err != nil {
			return err
		}
	}

	return mw.Close()
}

func writeInline(iw *mail.InlineWriter, contentType, body string) error {
	var ph mail.InlineHeader
	ph.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	pw, err := iw.CreatePart(ph)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(pw, body); err != nil {
		return err
	}
	return pw.Close()
}

func addressList(addrs []string) []*mail.Address {
	list := make([]*mail.Address, len(addrs))
	for i, a := range addrs {
		list[i] = &mail.Address{Address: a}
	}
	return list
}
