package email

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/cmallory/storydigest/internal/store"
	"github.com/cmallory/storydigest/pkg/selector"
	"github.com/cmallory/storydigest/pkg/topic"
)

// Renderer turns a selection into the newsletter HTML.
type Renderer struct {
	fromName string
	tmpl     *template.Template
}

// NewRenderer parses the embedded newsletter template.
func NewRenderer(fromName string) (*Renderer, error) {
	if fromName == "" {
		fromName = "Story Digest"
	}
	tmpl, err := template.New("newsletter").Parse(newsletterTmpl)
	if err != nil {
		return nil, fmt.Errorf("parse newsletter template: %w", err)
	}
	return &Renderer{fromName: fromName, tmpl: tmpl}, nil
}

type section struct {
	Topic        topic.Topic
	Articles     []store.Article
	FallbackUsed bool
	Exhausted    bool
}

type newsletterData struct {
	FromName      string
	Email         string
	Date          string
	TotalArticles int
	Sections      []section
}

// Render produces the newsletter HTML for one subscriber. Sections follow
// the subscriber's topic order, duplicates collapsed.
func (r *Renderer) Render(sub *store.Subscriber, sel *selector.Selection) (string, error) {
	data := newsletterData{
		FromName:      r.fromName,
		Email:         sub.Email,
		Date:          time.Now().Format("January 2, 2006"),
		TotalArticles: sel.Total(),
	}

	seen := make(map[topic.Topic]bool, 3)
	for _, t := range sub.Topics() {
		if seen[t] {
			continue
		}
		seen[t] = true
		data.Sections = append(data.Sections, section{
			Topic:        t,
			Articles:     sel.Articles[t],
			FallbackUsed: sel.FallbackUsed[t],
			Exhausted:    sel.Exhausted[t],
		})
	}

	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render newsletter for %s: %w", sub.Email, err)
	}
	return buf.String(), nil
}

const newsletterTmpl = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>Your Weekly Solutions Stories</title>
<style>
body { font-family: Georgia, 'Times New Roman', serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; background-color: #f9f9f9; }
.container { background-color: white; padding: 30px; border-radius: 8px; }
.header { text-align: center; margin-bottom: 30px; border-bottom: 3px solid #2c5aa0; padding-bottom: 20px; }
.header h1 { color: #2c5aa0; margin: 0; font-size: 28px; }
.header .date { color: #666; font-size: 16px; margin-top: 5px; }
.section { margin-bottom: 35px; border-left: 4px solid #2c5aa0; padding-left: 20px; }
.section-title { color: #2c5aa0; font-size: 20px; font-weight: bold; margin-bottom: 15px; }
.article { margin-bottom: 20px; padding: 15px; background-color: #fafafa; border-radius: 5px; }
.article-title a { color: #2c5aa0; text-decoration: none; font-size: 18px; font-weight: bold; }
.article-meta { font-size: 14px; color: #666; font-style: italic; }
.fallback-notice { background-color: #fff3cd; border: 1px solid #ffeaa7; color: #856404; padding: 10px; border-radius: 4px; font-size: 14px; margin-bottom: 15px; }
.footer { margin-top: 40px; padding-top: 20px; border-top: 1px solid #eee; text-align: center; font-size: 14px; color: #666; }
</style>
</head>
<body>
<div class="container">
  <div class="header">
    <h1>Your Weekly Solutions Stories</h1>
    <div class="date">{{.Date}}</div>
  </div>
  <p>Hello!</p>
  <p>Here are your personalized solutions stories for this week, featuring {{.TotalArticles}} article{{if ne .TotalArticles 1}}s{{end}} across your chosen topics.</p>
{{range .Sections}}
  <div class="section">
    <div class="section-title">{{.Topic}}</div>
{{- if .FallbackUsed}}
    <div class="fallback-notice"><strong>Note:</strong> We included some articles from related categories to ensure you have fresh content this week.</div>
{{- end}}
{{- if .Exhausted}}
    <div class="article"><div class="article-meta">No new articles available in this category this week. Check back next week!</div></div>
{{- else}}
{{- range .Articles}}
    <div class="article">
      <div class="article-title"><a href="{{.URL}}" target="_blank">{{.Title}}</a></div>
      <div class="article-meta">Source: {{if .Outlet}}{{.Outlet}}{{else}}Unknown{{end}} &bull; Category: {{.Topic}}</div>
    </div>
{{- end}}
{{- end}}
  </div>
{{end}}
  <div class="footer">
    <p>This email was generated for {{.Email}}</p>
    <p>These solutions stories highlight positive, actionable approaches to social issues.</p>
    <p>{{.FromName}}</p>
  </div>
</div>
</body>
</html>
`
