package server

import (
	"html/template"
	"net/http"
)

// Shared page chrome. Pages fill the "title" and "content" blocks.
const chromeHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{block "title" .}}consumerd{{end}}</title>
<style>
  *, *::before, *::after { box-sizing: border-box; margin: 0; padding: 0; }
  body {
    font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif;
    background: #f5f5f5;
    color: #1a1a1a;
    padding: 2rem;
  }
  .wrap { max-width: 860px; margin: 0 auto; }
  h1 { font-size: 1.4rem; font-weight: 600; margin-bottom: 1rem; }
  h1 a.add-new {
    font-size: 0.8rem;
    font-weight: 500;
    margin-left: 0.75rem;
    padding: 0.25rem 0.6rem;
    background: #1a1a1a;
    color: #fff;
    border-radius: 4px;
    text-decoration: none;
    vertical-align: middle;
  }
  .notice {
    background: #f0fdf4;
    color: #14532d;
    border: 1px solid #bbf7d0;
    border-radius: 6px;
    padding: 0.6rem 0.75rem;
    font-size: 0.9rem;
    margin-bottom: 1rem;
  }
  table { width: 100%; border-collapse: collapse; background: #fff; border: 1px solid #e0e0e0; border-radius: 6px; }
  th, td { text-align: left; padding: 0.6rem 0.75rem; border-bottom: 1px solid #eee; font-size: 0.9rem; }
  th { background: #fafafa; font-weight: 600; }
  td.actions a { margin-right: 0.75rem; }
  td.empty { color: #666; text-align: center; padding: 1.5rem; }
  form.card { background: #fff; border: 1px solid #e0e0e0; border-radius: 6px; padding: 1.5rem; }
  .field { margin-bottom: 1rem; }
  label { display: block; font-size: 0.85rem; font-weight: 500; margin-bottom: 0.35rem; }
  input[type="text"] {
    width: 100%;
    padding: 0.5rem 0.65rem;
    border: 1px solid #d0d0d0;
    border-radius: 6px;
    font-size: 0.9rem;
  }
  textarea {
    width: 100%;
    padding: 0.5rem 0.65rem;
    border: 1px solid #d0d0d0;
    border-radius: 6px;
    font-size: 0.9rem;
    min-height: 6rem;
  }
  p.description { font-size: 0.8rem; color: #666; margin-top: 0.3rem; }
  code { background: #f4f4f5; padding: 0.15rem 0.35rem; border-radius: 4px; font-size: 0.85rem; }
  button {
    padding: 0.55rem 1rem;
    background: #1a1a1a;
    color: #fff;
    border: none;
    border-radius: 6px;
    font-size: 0.9rem;
    font-weight: 500;
    cursor: pointer;
  }
</style>
</head>
<body>
<div class="wrap">
{{block "content" .}}{{end}}
</div>
</body>
</html>`

const listHTML = `{{define "title"}}Registered Applications{{end}}{{define "content"}}
<h1>Registered Applications
  {{if .CanCreate}}<a class="add-new" href="{{.AddURL}}">Add New</a>{{end}}
</h1>
{{if .Deleted}}<div class="notice">Deleted application.</div>{{end}}
<table>
  <tr><th>Name</th><th>Description</th><th>Client Key</th><th></th></tr>
  {{range .Consumers}}
  <tr>
    <td>{{.Consumer.Name}}</td>
    <td>{{.Consumer.Description}}</td>
    <td><code>{{.Consumer.Key}}</code></td>
    <td class="actions">
      <a href="{{.EditURL}}">Edit</a>
      <a href="{{.DeleteURL}}">Delete</a>
    </td>
  </tr>
  {{else}}
  <tr><td class="empty" colspan="4">No applications registered.</td></tr>
  {{end}}
</table>
{{end}}`

const editHTML = `{{define "title"}}{{.Title}}{{end}}{{define "content"}}
<h1>{{.Title}}</h1>
{{range .Messages}}<div class="notice">{{.}}</div>{{end}}
<form class="card" method="post" action="{{.FormAction}}">
  <div class="field">
    <label for="oauth-name">Consumer Name</label>
    <input type="text" name="name" id="oauth-name" value="{{.Name}}">
    <p class="description">This is shown to users during authorization and in their profile.</p>
  </div>
  <div class="field">
    <label for="oauth-description">Description</label>
    <textarea name="description" id="oauth-description">{{.Description}}</textarea>
  </div>
  <div class="field">
    <label for="oauth-callback">Callback</label>
    <input type="text" name="callback" id="oauth-callback" value="{{.Callback}}">
    <p class="description">Your application's callback URL. The callback passed with the request token must match the scheme, host, port, and path of this URL.</p>
  </div>
  {{with .Consumer}}
  <div class="field">
    <label>Client Key</label>
    <code>{{.Key}}</code>
  </div>
  <div class="field">
    <label>Client Secret</label>
    <code>{{.Secret}}</code>
  </div>
  <input type="hidden" name="id" value="{{.ID}}">
  {{end}}
  <input type="hidden" name="csrf_token" value="{{.CSRFToken}}">
  {{if .Consumer}}
  <button type="submit" name="submit" value="1">Save Consumer</button>
  {{else}}
  <button type="submit" name="submit" value="1">Add Consumer</button>
  {{end}}
</form>
{{end}}`

var (
	baseTemplate = template.Must(template.New("base").Parse(chromeHTML))
	listTemplate = template.Must(template.Must(baseTemplate.Clone()).Parse(listHTML))
	editTemplate = template.Must(template.Must(baseTemplate.Clone()).Parse(editHTML))
)

func (a *App) renderPage(w http.ResponseWriter, t *template.Template, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := t.Execute(w, data); err != nil {
		a.Logger.Error("render page", "error", err)
	}
}
