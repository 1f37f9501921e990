package view

import (
	"fmt"
	"html/template"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// FormatNumber formats v as a US dollar amount with thousands separators.
func FormatNumber(v float64) string {
	if v < 0 {
		return "-$" + printer.Sprintf("%.2f", -v)
	}
	return "$" + printer.Sprintf("%.2f", v)
}

func formatDelta(v float64) string {
	if v >= 0 {
		return "+" + printer.Sprintf("%.2f", v)
	}
	return printer.Sprintf("%.2f", v)
}

var templates = map[Kind]string{
	KindSpinner:        `<p><em>…</em></p>`,
	KindSpinnerMessage: `<div class="message bot"><p><em>{{if .Text}}{{.Text}}{{else}}Thinking…{{end}}</em></p></div>`,
	KindUserMessage:    `<div class="message user"><p>{{.Text}}</p></div>`,
	KindBotMessage:     `<div class="message bot"><p>{{.Text}}</p></div>`,
	KindErrorMessage:   `<div class="message bot error"><p><strong>{{.Text}}</strong></p></div>`,
	KindSystemMessage:  `<div class="message system"><p><em>{{.Text}}</em></p></div>`,
	KindBotCard:        `<div class="card">{{range .Children}}{{render .}}{{end}}</div>`,
	KindGroup:          `<div class="group">{{range .Children}}{{render .}}{{end}}</div>`,
	KindStocks: `<table class="stocks"><thead><tr><th>Symbol</th><th>Price</th><th>Change</th></tr></thead><tbody>` +
		`{{range .Data}}<tr><td>{{.Symbol}}</td><td>{{money .Price}}</td><td>{{delta .Delta}}</td></tr>{{end}}</tbody></table>`,
	KindStocksSkeleton: `<p><em>Loading trending stocks…</em></p>`,
	KindStock:          `<div class="stock"><h3>{{.Data.Symbol}}</h3><p>{{money .Data.Price}} ({{delta .Data.Delta}})</p></div>`,
	KindStockSkeleton:  `<p><em>Loading stock price…</em></p>`,
	KindPurchase: `<div class="purchase"><p>{{.Data.NumberOfShares}} shares of <strong>{{.Data.Symbol}}</strong> at {{money .Data.Price}}</p>` +
		`<p>Total: {{money (total .Data.Price .Data.NumberOfShares)}}</p>{{if .Data.Status}}<p>Status: {{.Data.Status}}</p>{{end}}</div>`,
	KindEvents:          `<ul class="events">{{range .Data}}<li><strong>{{.Date}}</strong>: {{.Headline}}<br>{{.Description}}</li>{{end}}</ul>`,
	KindEventsSkeleton:  `<p><em>Loading events…</em></p>`,
	KindAppointmentHead: `<p><em>Booking your appointment…</em></p>`,
	KindAppointment:     `{{template "appointmentCard" .Data}}`,
	KindAppointments:    `<div class="appointments">{{range .Data}}{{template "appointmentCard" .}}{{end}}</div>`,
}

// appointmentPartial is shared by the single and list appointment kinds.
const appointmentPartial = `{{define "appointmentCard"}}<div class="appointment"><h3>Appointment</h3><ul>` +
	`<li>Name: {{.Name}}</li><li>Email: {{.Email}}</li><li>Date: {{.Date}}</li><li>Time: {{.Time}}</li>` +
	`{{if .Description}}<li>Note: {{.Description}}</li>{{end}}</ul></div>{{end}}`

var compiled map[Kind]*template.Template

func init() {
	funcs := template.FuncMap{
		"render": func(n Node) (template.HTML, error) {
			html, err := RenderHTML(n)
			return template.HTML(html), err
		},
		"money": FormatNumber,
		"delta": formatDelta,
		"total": func(price float64, shares int) float64 { return price * float64(shares) },
	}
	compiled = make(map[Kind]*template.Template, len(templates))
	for kind, text := range templates {
		compiled[kind] = template.Must(template.New("node:" + string(kind)).Funcs(funcs).Parse(appointmentPartial + text))
	}
}

// templateData is what node templates execute against.
type templateData struct {
	Kind     Kind
	Text     string
	Data     any
	Children []Node
}

// RenderHTML renders n and its children to an HTML fragment. Unknown kinds
// render as nothing.
func RenderHTML(n Node) (string, error) {
	if n.IsZero() {
		return "", nil
	}
	tmpl, ok := compiled[n.Kind]
	if !ok {
		return "", nil
	}
	var sb strings.Builder
	data := templateData{Kind: n.Kind, Text: n.Content(), Data: n.Data, Children: n.Children}
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render %s: %w", n.Kind, err)
	}
	return sb.String(), nil
}

// RenderMarkdown renders n as Markdown for text-only front-ends.
func RenderMarkdown(n Node) (string, error) {
	html, err := RenderHTML(n)
	if err != nil {
		return "", err
	}
	if html == "" {
		return "", nil
	}
	md, err := htmltomarkdown.ConvertString(html)
	if err != nil {
		return "", fmt.Errorf("convert to markdown: %w", err)
	}
	return strings.TrimSpace(md), nil
}
