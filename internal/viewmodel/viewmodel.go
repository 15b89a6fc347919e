package viewmodel

// ControllerPage holds data for the controller console.
type ControllerPage struct {
	Title string
}

// ClientPage holds data for a display page.
type ClientPage struct {
	Title string
	Name  string
	// Transport is "ws" or "sse".
	Transport string
}

// TemplatePage holds data for the template editor.
type TemplatePage struct {
	Title     string
	Templates []string
	Name      string
	Body      string
}
