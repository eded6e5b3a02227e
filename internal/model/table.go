package model

import (
	"errors"
	"fmt"
	"strings"
)

// Table is a study table on a library floor.  Tables are provisioned
// offline and are never deleted by the service; only their seats and the
// join metadata change at runtime.
//
// Fields:
//
//	TableID      – unique, immutable primary key.
//	FloorID      – grouping key used by the floor listing.
//	Type         – category tag (individual, duo, group, room).
//	Capacity     – number of seats; always equal to len(Seats).
//	Seats        – ordered, index-addressed seats.
//	IsOpenToJoin – whether other students may join the table.
//	Tags         – free-form labels.
//	TopicTags    – study topics, used for matching.
//	CourseCodes  – course codes, used for matching.
type Table struct {
	TableID      string   `json:"tableId"`
	FloorID      string   `json:"floorId"`
	Type         string   `json:"type"`
	Capacity     int      `json:"capacity"`
	Tags         []string `json:"tags"`
	Seats        []Seat   `json:"seats"`
	IsOpenToJoin bool     `json:"isOpenToJoin"`
	TopicTags    []string `json:"topicTags"`
	CourseCodes  []string `json:"courseCodes"`
}

// NewTable returns a table with capacity FREE seats.
func NewTable(tableID, floorID, typ string, capacity int) Table {
	seats := make([]Seat, capacity)
	for i := range seats {
		seats[i] = Seat{SeatID: SeatIDFor(tableID, i), Status: SeatFree}
	}
	return Table{
		TableID:     tableID,
		FloorID:     floorID,
		Type:        typ,
		Capacity:    capacity,
		Tags:        []string{},
		Seats:       seats,
		TopicTags:   []string{},
		CourseCodes: []string{},
	}
}

// InBounds reports whether index addresses an existing seat.
func (t Table) InBounds(index int) bool {
	return index >= 0 && index < t.Capacity && index < len(t.Seats)
}

// Validate checks that the record is complete and that its seat sequence
// matches the declared capacity.
func (t Table) Validate() error {
	if strings.TrimSpace(t.TableID) == "" {
		return errors.New("table: empty tableId")
	}
	if t.Capacity < 0 {
		return fmt.Errorf("table %s: negative capacity %d", t.TableID, t.Capacity)
	}
	if len(t.Seats) != t.Capacity {
		return fmt.Errorf("table %s: %d seats for capacity %d", t.TableID, len(t.Seats), t.Capacity)
	}
	for _, s := range t.Seats {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("table %s: %w", t.TableID, err)
		}
	}
	return nil
}

// Clone returns a deep copy so that callers can mutate the result without
// touching shared state.
func (t Table) Clone() Table {
	c := t
	c.Seats = append([]Seat(nil), t.Seats...)
	c.Tags = cloneStrings(t.Tags)
	c.TopicTags = cloneStrings(t.TopicTags)
	c.CourseCodes = cloneStrings(t.CourseCodes)
	return c
}

// MergeTags appends the values of add that are not already present in
// have, comparing case-insensitively.  Blank values are skipped.
func MergeTags(have, add []string) []string {
	out := cloneStrings(have)
	seen := make(map[string]struct{}, len(have)+len(add))
	for _, v := range have {
		seen[strings.ToUpper(v)] = struct{}{}
	}
	for _, v := range add {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		k := strings.ToUpper(v)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, v)
	}
	return out
}

func cloneStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return append([]string{}, s...)
}
