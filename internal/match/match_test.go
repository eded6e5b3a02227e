package match

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/library-seat-lease/internal/model"
)

func table(id string, open bool, codes ...string) model.Table {
	t := model.NewTable(id, "F1", "group", 2)
	t.IsOpenToJoin = open
	t.CourseCodes = codes
	return t
}

func ids(ts []model.Table) []string {
	out := []string{}
	for _, t := range ts {
		out = append(out, t.TableID)
	}
	return out
}

func TestMatch(t *testing.T) {
	tables := []model.Table{
		table("closed-cs", false, "CS101"),
		table("open-math", true, "MATH200"),
		table("open-cs", true, "cs101", "PHYS1"),
		table("open-none", true),
	}

	tests := []struct {
		name     string
		openOnly bool
		courses  []string
		want     []string
	}{
		{"open with course", true, []string{"CS101"}, []string{"open-cs"}},
		{"open only", true, nil, []string{"open-math", "open-cs", "open-none"}},
		{"any with course", false, []string{"cs101"}, []string{"closed-cs", "open-cs"}},
		{"no filters", false, nil, []string{"closed-cs", "open-math", "open-cs", "open-none"}},
		{"blank course ignored", true, []string{" "}, []string{"open-math", "open-cs", "open-none"}},
		{"unknown course", true, []string{"BIO9"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(Match(tables, tt.openOnly, tt.courses)))
		})
	}
}

func TestParseCourses(t *testing.T) {
	assert.Equal(t, []string{"CS101", "MATH200", "PHYS1"}, ParseCourses([]string{"CS101, MATH200", "PHYS1", ""}))
	assert.Nil(t, ParseCourses(nil))
}
