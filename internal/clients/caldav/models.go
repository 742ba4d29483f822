package caldav

// Calendar is a calendar collection on the CalDAV server.
type Calendar struct {
	Name string
	Path string
}
