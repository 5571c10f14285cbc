package calendar

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	ical "github.com/arran4/golang-ical"

	"cadetplan/internal/model"
)

const productID = "-//cadetplan//training calendar//EN"

// ExportOptions carries everything rendered into the ICS feed.
type ExportOptions struct {
	// Dates are the training nights; one all-day VEVENT each.
	Dates []civil.Date
	// Entries are the scheduled slots, listed in the owning night's description.
	Entries map[model.SlotKey]model.ScheduledItem
	// DayPlanners become one all-day VEVENT each.
	DayPlanners []model.DayPlanner
	// NightTitle is the summary used for training nights. Defaults to "Training night".
	NightTitle string
	// Stamp is written as DTSTAMP. Zero means time.Now().
	Stamp time.Time
}

// ExportICS renders training nights and day planners into an iCalendar feed.
// UIDs are derived from dates / planner ids so re-exports update rather than
// duplicate entries in subscribed clients.
func ExportICS(opts ExportOptions) string {
	stamp := opts.Stamp
	if stamp.IsZero() {
		stamp = time.Now()
	}
	title := opts.NightTitle
	if title == "" {
		title = "Training night"
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)

	byDate := make(map[civil.Date][]model.SlotKey)
	for k := range opts.Entries {
		byDate[k.Date] = append(byDate[k.Date], k)
	}

	for _, d := range opts.Dates {
		ev := cal.AddEvent("night-" + d.String() + "@cadetplan")
		ev.SetDtStampTime(stamp.UTC())
		ev.SetSummary(title)
		ev.SetAllDayStartAt(d.In(time.UTC))
		ev.SetAllDayEndAt(d.AddDays(1).In(time.UTC))

		keys := byDate[d]
		if len(keys) == 0 {
			continue
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
		lines := make([]string, 0, len(keys))
		for _, k := range keys {
			lines = append(lines, describeSlot(k, opts.Entries[k]))
		}
		ev.SetDescription(strings.Join(lines, "\n"))
	}

	for _, p := range opts.DayPlanners {
		ev := cal.AddEvent("planner-" + p.ID + "@cadetplan")
		ev.SetDtStampTime(stamp.UTC())
		ev.SetSummary(p.Name)
		ev.SetAllDayStartAt(p.Date.In(time.UTC))
		ev.SetAllDayEndAt(p.Date.AddDays(1).In(time.UTC))
		if len(p.EOs) > 0 {
			ids := make([]string, 0, len(p.EOs))
			for _, eo := range p.EOs {
				ids = append(ids, eo.ID)
			}
			ev.SetDescription(strings.Join(ids, ", "))
		}
	}

	return cal.Serialize()
}

// describeSlot formats one line: "P1 Ph2 A-001 Title (Smith, Rm 3)".
func describeSlot(k model.SlotKey, it model.ScheduledItem) string {
	var b strings.Builder
	b.WriteString("P" + strconv.Itoa(k.Period) + " Ph" + strconv.Itoa(k.Phase) + " " + it.EO.ID)
	if it.EO.Title != "" {
		b.WriteString(" " + it.EO.Title)
	}
	who := make([]string, 0, 2)
	if it.Instructor != "" {
		who = append(who, it.Instructor)
	}
	if it.Classroom != "" {
		who = append(who, it.Classroom)
	}
	if len(who) > 0 {
		b.WriteString(" (" + strings.Join(who, ", ") + ")")
	}
	return b.String()
}
