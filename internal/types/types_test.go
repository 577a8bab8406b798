package types

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFileIDFor_SeparatorIndependent(t *testing.T) {
	a := FileIDFor(filepath.Join("src", "main.go"))
	b := FileIDFor("src/main.go")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, FileIDFor("src/other.go"))
}

func TestLocationSet_AddKeepsDefinition(t *testing.T) {
	loc := Location{File: 1, Position: Position{Line: 3, Column: 5}}
	set := make(LocationSet)

	set.Add(loc, FlagDefinition)
	set.Add(loc, FlagReference)
	assert.Equal(t, FlagDefinition, set[loc])

	other := make(LocationSet)
	other.Add(loc, FlagReference)
	other.Add(loc, FlagDefinition)
	assert.Equal(t, FlagDefinition, other[loc])
}

func TestLocationSet_Merge(t *testing.T) {
	a := LocationSet{
		{File: 1, Position: Position{Line: 1, Column: 1}}: FlagReference,
	}
	b := LocationSet{
		{File: 1, Position: Position{Line: 1, Column: 1}}: FlagDefinition,
		{File: 2, Position: Position{Line: 4, Column: 2}}: FlagReference,
	}

	changed := a.Merge(b)
	assert.Equal(t, 2, changed)
	assert.Len(t, a, 2)
	assert.Equal(t, 0, a.Merge(b), "merging the same set twice changes nothing")
}

func TestLocationSet_RemoveFile(t *testing.T) {
	set := LocationSet{
		{File: 1, Position: Position{Line: 1, Column: 1}}: FlagReference,
		{File: 1, Position: Position{Line: 2, Column: 1}}: FlagDefinition,
		{File: 2, Position: Position{Line: 1, Column: 1}}: FlagReference,
	}

	assert.True(t, set.HasFile(1))
	assert.Equal(t, 2, set.RemoveFile(1))
	assert.False(t, set.HasFile(1))
	assert.Len(t, set, 1)
	assert.Equal(t, 0, set.RemoveFile(3))
}

func TestLocationSet_Sorted(t *testing.T) {
	set := LocationSet{
		{File: 2, Position: Position{Line: 1, Column: 1}}: FlagReference,
		{File: 1, Position: Position{Line: 9, Column: 1}}: FlagReference,
		{File: 1, Position: Position{Line: 2, Column: 7}}: FlagReference,
		{File: 1, Position: Position{Line: 2, Column: 3}}: FlagReference,
	}

	got := set.Sorted()
	want := []Location{
		{File: 1, Position: Position{Line: 2, Column: 3}},
		{File: 1, Position: Position{Line: 2, Column: 7}},
		{File: 1, Position: Position{Line: 9, Column: 1}},
		{File: 2, Position: Position{Line: 1, Column: 1}},
	}
	assert.Equal(t, want, got)
}

func TestTags_AddAndEntries(t *testing.T) {
	tags := make(Tags)
	tags.Add("main", Location{File: 1, Position: Position{Line: 1, Column: 6}}, FlagDefinition)
	tags.Add("main", Location{File: 1, Position: Position{Line: 8, Column: 2}}, FlagReference)
	tags.Add("fmt", Location{File: 1, Position: Position{Line: 3, Column: 2}}, FlagReference)

	assert.Equal(t, 3, tags.Entries())
	assert.Equal(t, []string{"fmt", "main"}, tags.Tokens())
}

func TestFlag_String(t *testing.T) {
	tests := []struct {
		flag Flag
		want string
	}{
		{FlagReference, "reference"},
		{FlagDefinition, "definition"},
		{Flag(7), "flag(7)"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.flag.String())
		})
	}
}
