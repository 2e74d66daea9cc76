package notify

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
	"time"
)

const layoutHTML = `{{define "layout"}}<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1.0"><title>{{.Heading}}</title></head>
<body style="margin:0;padding:0;font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,sans-serif;background-color:#f5f5f5;">
<table role="presentation" style="width:100%;border-collapse:collapse;"><tr><td align="center" style="padding:40px 0;">
<table role="presentation" style="width:600px;border-collapse:collapse;background-color:#ffffff;border-radius:8px;">
<tr><td style="padding:40px 40px 20px 40px;text-align:center;border-bottom:1px solid #e5e5e5;">
<h1 style="margin:0;font-size:24px;font-weight:700;color:#1a1a1a;">Grendel Press</h1>
</td></tr>
<tr><td style="padding:40px;">{{template "body" .}}</td></tr>
<tr><td style="padding:30px 40px;background-color:#f9f9f9;border-top:1px solid #e5e5e5;text-align:center;">
<p style="margin:0;font-size:12px;color:#999;">&copy; {{.Year}} Grendel Press. All rights reserved.</p>
</td></tr>
</table></td></tr></table>
</body>
</html>{{end}}`

const accessRequestHTML = `{{define "body"}}
<h2 style="margin:0 0 24px 0;font-size:20px;color:#1a1a1a;">New Access Request</h2>
<p style="font-size:16px;color:#333;">Hello {{.AuthorName}},</p>
<p style="font-size:16px;color:#333;">You have received a new access request for your book <strong>{{.BookTitle}}</strong>.</p>
<p style="margin:0;font-size:14px;color:#666;">Requester Name:</p>
<p style="margin:0 0 16px 0;font-size:16px;font-weight:600;">{{.RequesterName}}</p>
<p style="margin:0;font-size:14px;color:#666;">Email:</p>
<p style="margin:0 0 16px 0;font-size:16px;font-weight:600;">{{.RequesterEmail}}</p>
<p style="margin:0;font-size:14px;color:#666;">Request Time:</p>
<p style="margin:0 0 24px 0;font-size:16px;font-weight:600;">{{.When}}</p>
<p style="text-align:center;"><a href="{{.Link}}" style="display:inline-block;padding:14px 32px;background-color:#1a1a1a;color:#ffffff;text-decoration:none;border-radius:6px;">View Request in Dashboard</a></p>
<p style="font-size:13px;color:#666;text-align:center;">You can approve or deny this request from your admin dashboard.</p>
{{end}}`

const approvalHTML = `{{define "body"}}
<h2 style="margin:0 0 24px 0;font-size:20px;color:#1a1a1a;text-align:center;">Welcome to "{{.BookTitle}}"</h2>
<p style="font-size:16px;color:#333;">Hello {{.ReaderName}},</p>
<p style="font-size:16px;color:#333;">Great news! Your access request has been approved. You can now download and read <strong>{{.BookTitle}}</strong>.</p>
<div style="padding:20px;background-color:#fef3c7;border-radius:6px;text-align:center;">
<p style="margin:0 0 8px 0;font-size:14px;font-weight:600;color:#92400e;">Your Temporary Password:</p>
<p style="margin:0;font-size:24px;font-weight:700;font-family:'Courier New',monospace;letter-spacing:2px;">{{.Password}}</p>
</div>
<ol style="font-size:14px;line-height:1.8;color:#333;">
<li>Click the button below to go to the book page</li>
<li>Enter the temporary password shown above</li>
<li>Fill in your details and download your copy</li>
</ol>
<p style="text-align:center;"><a href="{{.Link}}" style="display:inline-block;padding:14px 32px;background-color:#1a1a1a;color:#ffffff;text-decoration:none;border-radius:6px;">Access Your Book</a></p>
<p style="font-size:14px;color:#991b1b;"><strong>Important:</strong> This temporary password will expire on <strong>{{.When}}</strong>. Please download your book before this date.</p>
{{end}}`

const expiryHTML = `{{define "body"}}
<h2 style="margin:0 0 24px 0;font-size:20px;color:#1a1a1a;">Your access expires soon</h2>
<p style="font-size:16px;color:#333;">Hello {{.ReaderName}},</p>
<p style="font-size:16px;color:#333;">The temporary password you were sent for <strong>{{.BookTitle}}</strong> has not been used yet and will expire on <strong>{{.When}}</strong>.</p>
<p style="text-align:center;"><a href="{{.Link}}" style="display:inline-block;padding:14px 32px;background-color:#1a1a1a;color:#ffffff;text-decoration:none;border-radius:6px;">Download Your Copy</a></p>
{{end}}`

const accessRequestText = `New Access Request

Hello {{.AuthorName}},

You have received a new access request for your book "{{.BookTitle}}".

Requester Name: {{.RequesterName}}
Email: {{.RequesterEmail}}
Request Time: {{.When}}

View the request in your dashboard:
{{.Link}}

You can approve or deny this request from your admin dashboard.

(c) {{.Year}} Grendel Press. All rights reserved.
`

const approvalText = `Welcome to "{{.BookTitle}}"

Hello {{.ReaderName}},

Great news! Your access request has been approved. You can now download and read "{{.BookTitle}}".

Your Temporary Password: {{.Password}}

How to access your book:
1. Go to: {{.Link}}
2. Enter the temporary password shown above
3. Fill in your details and download your copy

IMPORTANT: This temporary password will expire on {{.When}}. Please download your book before this date.

Happy reading!

(c) {{.Year}} Grendel Press. All rights reserved.
`

const expiryText = `Your access expires soon

Hello {{.ReaderName}},

The temporary password you were sent for "{{.BookTitle}}" has not been used yet and will expire on {{.When}}.

Download your copy at: {{.Link}}

(c) {{.Year}} Grendel Press. All rights reserved.
`

// emailData is the view model shared by every template.
type emailData struct {
	Heading        string
	Year           int
	AuthorName     string
	ReaderName     string
	BookTitle      string
	RequesterName  string
	RequesterEmail string
	Password       string
	When           string
	Link           string
}

type emailTemplate struct {
	html *htmltemplate.Template
	text *texttemplate.Template
}

func mustTemplate(name, htmlBody, textBody string) emailTemplate {
	h := htmltemplate.Must(htmltemplate.New(name).Parse(layoutHTML))
	htmltemplate.Must(h.Parse(htmlBody))
	return emailTemplate{
		html: h,
		text: texttemplate.Must(texttemplate.New(name).Parse(textBody)),
	}
}

var templates = map[string]emailTemplate{
	KindAccessRequest: mustTemplate(KindAccessRequest, accessRequestHTML, accessRequestText),
	KindApproval:      mustTemplate(KindApproval, approvalHTML, approvalText),
	KindExpiry:        mustTemplate(KindExpiry, expiryHTML, expiryText),
}

// render produces the HTML and plain text bodies for kind.
func render(kind string, data emailData) (htmlBody, textBody string, err error) {
	tmpl, ok := templates[kind]
	if !ok {
		return "", "", fmt.Errorf("unknown email kind %q", kind)
	}
	var h, t bytes.Buffer
	if err := tmpl.html.ExecuteTemplate(&h, "layout", data); err != nil {
		return "", "", fmt.Errorf("render %s html: %w", kind, err)
	}
	if err := tmpl.text.Execute(&t, data); err != nil {
		return "", "", fmt.Errorf("render %s text: %w", kind, err)
	}
	return h.String(), t.String(), nil
}

func formatDateTime(t time.Time) string {
	return t.UTC().Format("Jan 2, 2006, 3:04 PM MST")
}

func formatDate(t time.Time) string {
	return t.UTC().Format("Monday, January 2, 2006")
}
