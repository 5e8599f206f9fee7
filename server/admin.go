package server

import (
	"net/http"
	"net/url"
)

// appsPath is the admin base page for consumer management.
const appsPath = "/apps"

// Actions dispatched from the ?action parameter. Absence means list.
const (
	actionAdd    = "add"
	actionEdit   = "edit"
	actionDelete = "delete"
)

// CSRF scopes. Add has a single shared scope; edit and delete are bound
// to the targeted record.
const csrfScopeAdd = "create"

func csrfScopeEdit(id string) string { return "edit:" + id }

func csrfScopeDelete(id string) string { return "delete:" + id }

type effectKind int

const (
	effectShowPage effectKind = iota
	effectRedirect
	effectFatal
	effectNone
)

// Effect is the outcome of the preparation phase. Side-effecting work
// happens entirely during preparation; rendering only ever emits the
// ShowPage variant, so no response byte precedes a write's redirect.
type Effect struct {
	kind     effectKind
	redirect string
	status   int
	message  string
	list     *ListPageData
	edit     *EditPageData
}

func showList(data *ListPageData) Effect { return Effect{kind: effectShowPage, list: data} }

func showEdit(data *EditPageData) Effect { return Effect{kind: effectShowPage, edit: data} }

func redirectTo(target string) Effect { return Effect{kind: effectRedirect, redirect: target} }

func fatal(status int, message string) Effect {
	return Effect{kind: effectFatal, status: status, message: message}
}

// ListPageData is the prepared dataset handed to the list view.
type ListPageData struct {
	Consumers []ListItem
	Deleted   bool
	CanCreate bool
	AddURL    string
}

// ListItem pairs a consumer with its per-row action links. The delete
// link carries a one-time CSRF token scoped to the record.
type ListItem struct {
	Consumer  *Consumer
	EditURL   string
	DeleteURL string
}

// EditPageData backs the add/edit form. Consumer is nil when adding.
type EditPageData struct {
	Title       string
	FormAction  string
	Name        string
	Description string
	Callback    string
	Consumer    *Consumer
	Messages    []string
	CSRFToken   string
}

// appsURL builds a URL for the admin page with the given parameters.
func appsURL(params url.Values) string {
	if len(params) == 0 {
		return appsPath
	}
	return appsPath + "?" + params.Encode()
}

// handleApps is the single admin endpoint for consumer management. The
// preparation phase resolves the requested action and performs any writes
// or redirects; the render phase is strictly read-only output.
func (a *App) handleApps(w http.ResponseWriter, r *http.Request) {
	user := a.Sessions.Fetch(r)
	if user == nil {
		http.Redirect(w, r, "/login?return_to="+url.QueryEscape(r.URL.RequestURI()), http.StatusFound)
		return
	}
	if !user.Can(CapListApps) {
		http.Error(w, "You do not have permission to access this page.", http.StatusForbidden)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	a.renderApps(w, r, a.prepareApps(r, user))
}

// prepareApps routes the request to exactly one action handler.
func (a *App) prepareApps(r *http.Request, user *AdminUser) Effect {
	switch r.URL.Query().Get("action") {
	case actionAdd, actionEdit:
		return a.prepareEditPage(r, user)
	case actionDelete:
		return a.prepareDelete(r)
	default:
		return a.prepareList(r, user)
	}
}

// renderApps applies the prepared effect to the response.
func (a *App) renderApps(w http.ResponseWriter, r *http.Request, eff Effect) {
	switch eff.kind {
	case effectRedirect:
		http.Redirect(w, r, eff.redirect, http.StatusFound)
	case effectFatal:
		http.Error(w, eff.message, eff.status)
	case effectNone:
		// Deliberately empty response.
	case effectShowPage:
		if eff.list != nil {
			a.renderPage(w, listTemplate, eff.list)
			return
		}
		a.renderPage(w, editTemplate, eff.edit)
	}
}

// prepareList assembles the dataset consumed by the list view.
func (a *App) prepareList(r *http.Request, user *AdminUser) Effect {
	consumers, err := a.Registry.List()
	if err != nil {
		a.Logger.Error("list consumers", "error", err)
		return fatal(http.StatusInternalServerError, "Unable to load applications.")
	}

	data := &ListPageData{
		Deleted:   r.URL.Query().Get("deleted") != "",
		CanCreate: user.Can(CapCreateApps),
		AddURL:    appsURL(url.Values{"action": {actionAdd}}),
	}
	for _, c := range consumers {
		data.Consumers = append(data.Consumers, ListItem{
			Consumer: c,
			EditURL:  appsURL(url.Values{"action": {actionEdit}, "id": {c.ID}}),
			DeleteURL: appsURL(url.Values{
				"action":     {actionDelete},
				"id":         {c.ID},
				"csrf_token": {a.State.IssueCSRF(csrfScopeDelete(c.ID))},
			}),
		})
	}
	return showList(data)
}

// prepareEditPage serves both add and edit: the two differ only in
// whether an existing consumer is loaded first.
func (a *App) prepareEditPage(r *http.Request, user *AdminUser) Effect {
	if !user.Can(CapEditApps) {
		return fatal(http.StatusForbidden, "You do not have permission to access this page.")
	}

	var consumer *Consumer
	formAction := appsURL(url.Values{"action": {actionAdd}})
	if id := r.FormValue("id"); id != "" {
		var err error
		consumer, err = a.Registry.Get(id)
		if err != nil {
			return fatal(http.StatusBadRequest, "Invalid consumer ID.")
		}
		formAction = appsURL(url.Values{"action": {actionEdit}, "id": {id}})
	}

	var messages []string
	submitted := r.Method == http.MethodPost && r.PostFormValue("submit") != ""
	if submitted {
		eff, errs := a.handleEditSubmit(r, consumer)
		if eff != nil {
			return *eff
		}
		messages = errs
	}

	if did := r.URL.Query().Get("did_action"); did != "" {
		if did == actionEdit {
			messages = append(messages, "Updated application.")
		} else {
			messages = append(messages, "Successfully created application.")
		}
	}

	data := &EditPageData{
		FormAction: formAction,
		Consumer:   consumer,
		Messages:   messages,
	}
	if consumer == nil || submitted {
		data.Name = r.PostFormValue("name")
		data.Description = r.PostFormValue("description")
		data.Callback = r.PostFormValue("callback")
	} else {
		data.Name = consumer.Name
		data.Description = consumer.Description
		data.Callback = consumer.Callback
	}
	if consumer == nil {
		data.Title = "Add Application"
		data.CSRFToken = a.State.IssueCSRF(csrfScopeAdd)
	} else {
		data.Title = "Edit Application"
		data.CSRFToken = a.State.IssueCSRF(csrfScopeEdit(consumer.ID))
	}
	return showEdit(data)
}

// handleEditSubmit processes a form submission. It returns a terminal
// effect (redirect on success, fatal on CSRF mismatch) or the messages to
// surface on the re-rendered form. No write happens unless the CSRF token
// and all fields check out.
func (a *App) handleEditSubmit(r *http.Request, consumer *Consumer) (*Effect, []string) {
	var didAction, scope string
	if consumer == nil {
		didAction = actionAdd
		scope = csrfScopeAdd
	} else {
		didAction = actionEdit
		scope = csrfScopeEdit(consumer.ID)
	}
	if !a.State.VerifyCSRF(r.PostFormValue("csrf_token"), scope) {
		eff := fatal(http.StatusForbidden, "Invalid or expired CSRF token.")
		return &eff, nil
	}

	params, verr := ValidateConsumerParams(
		r.PostFormValue("name"),
		r.PostFormValue("description"),
		r.PostFormValue("callback"),
	)
	if verr != nil {
		return nil, []string{verr.Message}
	}

	if consumer == nil {
		created, err := a.Registry.Create(params)
		if err != nil {
			return nil, []string{err.Error()}
		}
		consumer = created
	} else {
		if _, err := a.Registry.Update(consumer.ID, params.Name, params.Description); err != nil {
			return nil, []string{err.Error()}
		}
		if err := a.Registry.SetCallback(consumer.ID, params.Callback); err != nil {
			return nil, []string{err.Error()}
		}
	}

	eff := redirectTo(appsURL(url.Values{
		"action":     {actionEdit},
		"id":         {consumer.ID},
		"did_action": {didAction},
	}))
	return &eff, nil
}

// prepareDelete removes a consumer. Without an explicit target the
// handler does nothing at all.
func (a *App) prepareDelete(r *http.Request) Effect {
	id := r.FormValue("id")
	if id == "" {
		return Effect{kind: effectNone}
	}

	if !a.State.VerifyCSRF(r.FormValue("csrf_token"), csrfScopeDelete(id)) {
		return fatal(http.StatusForbidden, "Invalid or expired CSRF token.")
	}

	if !a.Registry.Delete(id) {
		return fatal(http.StatusBadRequest, "Invalid consumer ID.")
	}

	return redirectTo(appsURL(url.Values{"deleted": {"1"}}))
}
