package caldav

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"

	"github.com/tazhate/icsync/internal/domain"
)

const prodID = "-//icsync//CalDAV sync//EN"

// Client talks to the local CalDAV server. It resolves the target
// calendar by display name and replaces its contents wholesale.
type Client struct {
	client        *caldav.Client
	calendarName  string
	createMissing bool
}

// NewClient creates a CalDAV client with basic auth credentials.
func NewClient(baseURL, username, password, calendarName string, createMissing bool, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	httpClient := webdav.HTTPClientWithBasicAuth(&http.Client{Timeout: timeout}, username, password)

	client, err := caldav.NewClient(httpClient, baseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to CalDAV: %w", err)
	}

	return &Client{
		client:        client,
		calendarName:  calendarName,
		createMissing: createMissing,
	}, nil
}

// ResolveCalendar walks principal -> home set -> calendars and returns
// the collection whose name matches the configured calendar. The lookup
// runs every cycle so calendars moved or recreated on the server are
// picked up without a restart.
func (c *Client) ResolveCalendar(ctx context.Context) (Calendar, error) {
	principal, err := c.client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return Calendar{}, classify("find principal", err)
	}

	homeSet, err := c.client.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return Calendar{}, classify("find calendar home set", err)
	}

	cals, err := c.client.FindCalendars(ctx, homeSet)
	if err != nil {
		return Calendar{}, classify("find calendars", err)
	}

	names := make([]string, 0, len(cals))
	for _, cal := range cals {
		// Collections we created ourselves carry the name in the path,
		// not in the displayname property.
		if cal.Name == c.calendarName || pathLeaf(cal.Path) == c.calendarName {
			return Calendar{Name: c.calendarName, Path: cal.Path}, nil
		}
		if cal.Name != "" {
			names = append(names, cal.Name)
		}
	}

	if c.createMissing {
		return c.createCalendar(ctx, homeSet)
	}

	sort.Strings(names)
	return Calendar{}, domain.Wrap(domain.ErrConfig, fmt.Errorf(
		"calendar %q not found on server (existing: %s)",
		c.calendarName, strings.Join(names, ", ")))
}

func (c *Client) createCalendar(ctx context.Context, homeSet string) (Calendar, error) {
	calPath := path.Join(homeSet, url.PathEscape(c.calendarName)) + "/"
	if err := c.client.Mkdir(ctx, calPath); err != nil {
		return Calendar{}, classify(fmt.Sprintf("create calendar %q", c.calendarName), err)
	}
	return Calendar{Name: c.calendarName, Path: calPath}, nil
}

// Replace makes the target calendar contain exactly the given events.
// All uploads happen before any deletion, so a failing cycle leaves
// extra events behind rather than missing ones.
func (c *Client) Replace(ctx context.Context, events []domain.Event) (domain.ReplaceStats, error) {
	var stats domain.ReplaceStats

	cal, err := c.ResolveCalendar(ctx)
	if err != nil {
		return stats, err
	}

	existing, err := c.listObjects(ctx, cal.Path)
	if err != nil {
		return stats, err
	}

	desired := make(map[string]bool, len(events))
	for i := range events {
		ev := &events[i]
		desired[ev.UID] = true

		obj := buildObject(ev)
		objPath := eventPath(cal.Path, ev.UID)
		if _, err := c.client.PutCalendarObject(ctx, objPath, obj); err != nil {
			return stats, classify(fmt.Sprintf("put event %q", ev.UID), err)
		}
		stats.Uploaded++
	}

	for uid, objPath := range existing {
		if desired[uid] {
			continue
		}
		if err := c.client.RemoveAll(ctx, objPath); err != nil {
			if isNotFound(err) {
				continue
			}
			return stats, classify(fmt.Sprintf("delete stale event %q", uid), err)
		}
		stats.Deleted++
	}

	return stats, nil
}

// listObjects returns the UIDs currently in the calendar, mapped to
// their object paths.
func (c *Client) listObjects(ctx context.Context, calendarPath string) (map[string]string, error) {
	query := &caldav.CalendarQuery{
		CompFilter: caldav.CompFilter{
			Name: ical.CompCalendar,
			Comps: []caldav.CompFilter{
				{Name: ical.CompEvent},
			},
		},
	}

	objects, err := c.client.QueryCalendar(ctx, calendarPath, query)
	if err != nil {
		return nil, classify("list calendar objects", err)
	}

	existing := make(map[string]string, len(objects))
	for _, obj := range objects {
		uid := objectUID(&obj)
		if uid == "" {
			continue
		}
		existing[uid] = obj.Path
	}
	return existing, nil
}

// objectUID pulls the UID out of the object data, falling back to the
// path stem for servers that return objects without calendar data.
func objectUID(obj *caldav.CalendarObject) string {
	if obj.Data != nil {
		for _, comp := range obj.Data.Children {
			if comp.Name != ical.CompEvent {
				continue
			}
			if prop := comp.Props.Get(ical.PropUID); prop != nil && prop.Value != "" {
				return prop.Value
			}
		}
	}
	return pathLeaf(strings.TrimSuffix(obj.Path, ".ics"))
}

// buildObject wraps the event's original components in a fresh
// VCALENDAR together with the timezone definitions they reference.
func buildObject(ev *domain.Event) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, prodID)

	for _, tz := range ev.Timezones {
		cal.Children = append(cal.Children, tz)
	}

	now := time.Now().UTC()
	for _, comp := range ev.Components {
		if prop := comp.Props.Get(ical.PropUID); prop == nil || prop.Value == "" {
			comp.Props.SetText(ical.PropUID, ev.UID)
		}
		if comp.Props.Get(ical.PropDateTimeStamp) == nil {
			comp.Props.SetDateTime(ical.PropDateTimeStamp, now)
		}
		cal.Children = append(cal.Children, comp)
	}

	return cal
}

func eventPath(calendarPath, uid string) string {
	p := calendarPath
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p + url.PathEscape(uid) + ".ics"
}

func pathLeaf(p string) string {
	leaf := path.Base(strings.TrimSuffix(p, "/"))
	if unescaped, err := url.PathUnescape(leaf); err == nil {
		return unescaped
	}
	return leaf
}

// classify maps CalDAV failures onto the sync failure kinds. go-webdav
// surfaces HTTP status only in the error text, so it is sniffed there.
func classify(op string, err error) error {
	msg := err.Error()
	if strings.Contains(msg, "401") || strings.Contains(msg, "403") {
		return domain.Wrap(domain.ErrAuth, fmt.Errorf("%s: %w", op, err))
	}
	return domain.Wrap(domain.ErrSync, fmt.Errorf("%s: %w", op, err))
}

func isNotFound(err error) bool {
	return strings.Contains(err.Error(), "404") || strings.Contains(err.Error(), "not found")
}
