// Package match filters table listings for study partners.
package match

import (
	"strings"

	"github.com/iliyamo/library-seat-lease/internal/model"
)

// Match keeps the tables a student could join.  With openOnly, tables not
// open to join are dropped.  With wanted courses, only tables sharing at
// least one course code (case-insensitively) are kept.  The input order is
// preserved and tables is not modified.
func Match(tables []model.Table, openOnly bool, wantedCourses []string) []model.Table {
	wanted := make(map[string]struct{}, len(wantedCourses))
	for _, c := range wantedCourses {
		if c = strings.TrimSpace(c); c != "" {
			wanted[strings.ToUpper(c)] = struct{}{}
		}
	}

	out := make([]model.Table, 0, len(tables))
	for _, t := range tables {
		if openOnly && !t.IsOpenToJoin {
			continue
		}
		if len(wanted) > 0 && !sharesCourse(t.CourseCodes, wanted) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func sharesCourse(codes []string, wanted map[string]struct{}) bool {
	for _, c := range codes {
		if _, ok := wanted[strings.ToUpper(strings.TrimSpace(c))]; ok {
			return true
		}
	}
	return false
}

// ParseCourses flattens query values such as ?courses=CS101,MATH200 or
// repeated ?courses= parameters into a list of non-blank codes.
func ParseCourses(values []string) []string {
	var out []string
	for _, v := range values {
		for _, c := range strings.Split(v, ",") {
			if c = strings.TrimSpace(c); c != "" {
				out = append(out, c)
			}
		}
	}
	return out
}
