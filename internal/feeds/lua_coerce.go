package feeds

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/slowlime/feedgen/internal/models"
)

// coerceEntry converts one returned Lua table into a models.Entry per the
// return-coercion contract: id/title must be non-empty, description/url are
// tostring-coercible, author absent if empty, pubDate an optional structured
// table resolved against a timezone. url is resolved against the fetch URL.
func coerceEntry(L *lua.LState, tbl *lua.LTable, ectx Context) (*models.Entry, error) {
	id, err := requiredString(L, tbl, "id")
	if err != nil {
		return nil, err
	}
	title, err := requiredString(L, tbl, "title")
	if err != nil {
		return nil, err
	}
	description := optionalString(L, tbl, "description")

	rawURL, err := requiredString(L, tbl, "url")
	if err != nil {
		return nil, err
	}
	resolved, err := ectx.FetchURL.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("resolving url %q: %w", rawURL, err)
	}

	entry := &models.Entry{
		ID:          id,
		Title:       title,
		Description: description,
		URL:         resolved,
	}

	if author := optionalString(L, tbl, "author"); author != "" {
		entry.Author = &author
	}

	if pubDateVal := tbl.RawGetString("pubDate"); pubDateVal != lua.LNil {
		pubDateTbl, ok := pubDateVal.(*lua.LTable)
		if !ok {
			return nil, fmt.Errorf("pubDate must be a table, got %s", pubDateVal.Type().String())
		}
		t, err := coercePubDate(pubDateTbl)
		if err != nil {
			return nil, fmt.Errorf("coercing pubDate: %w", err)
		}
		entry.PubDate = t
	}

	return entry, nil
}

func requiredString(L *lua.LState, tbl *lua.LTable, field string) (string, error) {
	raw := tbl.RawGetString(field)
	if raw == lua.LNil {
		return "", fmt.Errorf("%s must not be empty", field)
	}
	s := L.ToStringMeta(raw).String()
	if s == "" {
		return "", fmt.Errorf("%s must not be empty", field)
	}
	return s, nil
}

func optionalString(L *lua.LState, tbl *lua.LTable, field string) string {
	v := tbl.RawGetString(field)
	if v == lua.LNil {
		return ""
	}
	return L.ToStringMeta(v).String()
}

// coercePubDate builds a time.Time from the structured
// {year,month,day,hour,minute,second,utcOffset?,tz?} table. At least one of
// tz (an IANA name) or utcOffset (minutes east of UTC) must be present;
// when both are, tz decides the zone. A tz-ambiguous local time (DST fold) resolves to the earlier offset
// and logs a warning; a tz-gap local time (the wall clock never occurs, a
// DST spring-forward) is an error.
func coercePubDate(tbl *lua.LTable) (*time.Time, error) {
	year := int(lua.LVAsNumber(tbl.RawGetString("year")))
	month := int(lua.LVAsNumber(tbl.RawGetString("month")))
	day := int(lua.LVAsNumber(tbl.RawGetString("day")))
	hour := int(lua.LVAsNumber(tbl.RawGetString("hour")))
	minute := int(lua.LVAsNumber(tbl.RawGetString("minute")))
	second := int(lua.LVAsNumber(tbl.RawGetString("second")))

	if year == 0 || month == 0 || day == 0 {
		return nil, errors.New("pubDate requires year, month, and day")
	}

	tzVal := tbl.RawGetString("tz")
	offsetVal := tbl.RawGetString("utcOffset")

	var loc *time.Location
	switch {
	case tzVal != lua.LNil:
		name, ok := tzVal.(lua.LString)
		if !ok {
			return nil, fmt.Errorf("tz must be a string, got %s", tzVal.Type().String())
		}
		var err error
		loc, err = time.LoadLocation(string(name))
		if err != nil {
			return nil, fmt.Errorf("loading timezone %q: %w", string(name), err)
		}
	case offsetVal != lua.LNil:
		minutes := int(lua.LVAsNumber(offsetVal))
		loc = time.FixedZone(fmt.Sprintf("UTC%+d", minutes/60), minutes*60)
	default:
		return nil, errors.New("pubDate requires either tz or utcOffset")
	}

	t := time.Date(year, time.Month(month), day, hour, minute, second, 0, loc)

	// Detect a DST gap: Go normalizes a nonexistent wall-clock time forward
	// past the transition, so the result no longer matches the requested
	// fields when reformatted in the same location.
	wall := t.In(loc)
	if wall.Year() != year || int(wall.Month()) != month || wall.Day() != day ||
		wall.Hour() != hour || wall.Minute() != minute || wall.Second() != second {
		return nil, fmt.Errorf("local time %04d-%02d-%02d %02d:%02d:%02d does not exist in %s (DST gap)",
			year, month, day, hour, minute, second, loc.String())
	}

	// Detect a DST fold (ambiguous local time): the same wall clock maps to
	// two instants one offset-delta apart, and time.Date may return either.
	// If the instant an hour earlier shows the same wall-clock hour under a
	// different offset, t is the later of the two and is replaced by it; if
	// the instant an hour later does, t is already the earlier one. Either
	// way the earlier offset is kept; log so operators can audit it.
	ambiguous := false
	if prev := t.Add(-time.Hour); prev.Hour() == hour && isOffsetTransition(prev, loc) {
		t, ambiguous = prev, true
	} else if next := t.Add(time.Hour); next.Hour() == hour && isOffsetTransition(t, loc) {
		ambiguous = true
	}
	if ambiguous {
		slog.Warn("pubDate local time is ambiguous (DST fold); using the earlier offset",
			"year", year, "month", month, "day", day, "hour", hour, "minute", minute, "tz", loc.String())
	}

	return &t, nil
}

// isOffsetTransition reports whether t falls within an hour of a UTC-offset
// change in loc, which combined with the same-hour checks in coercePubDate
// signals a DST fold rather than an ordinary hour.
func isOffsetTransition(t time.Time, loc *time.Location) bool {
	_, offsetNow := t.In(loc).Zone()
	_, offsetLater := t.Add(time.Hour).In(loc).Zone()
	return offsetNow != offsetLater
}
