package group

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kleo-app/kleo/internal/domain/shared"
)

func TestDeriveCode(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		prefix string
	}{
		{name: "two words", input: "Algorithms A", prefix: "AA-"},
		{name: "long name keeps three initials", input: "Data Structures and Algorithms", prefix: "DSA-"},
		{name: "digits count as initials", input: "2nd year math", prefix: "2YM-"},
		{name: "no ascii initials", input: "Алгоритмы", prefix: "GR-"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := DeriveCode(tt.input)
			assert.True(t, code.IsValid(), "code %q", code)
			assert.Equal(t, tt.prefix, code.String()[:len(tt.prefix)])
		})
	}
}

func TestDeriveCode_Deterministic(t *testing.T) {
	assert.Equal(t, DeriveCode("Algorithms A"), DeriveCode("Algorithms A"))
	assert.Equal(t, DeriveCode("Algorithms A"), DeriveCode("  algorithms   a "))
	assert.NotEqual(t, DeriveCode("Algorithms A"), DeriveCode("Algorithms B"))
}

func TestParseCode(t *testing.T) {
	valid := DeriveCode("Algorithms A")

	got, err := ParseCode(" " + string(valid) + " ")
	require.NoError(t, err)
	assert.Equal(t, valid, got)

	for _, raw := range []string{"", "AA", "AAAA-BCDEF", "AA-BCDE1", "AA-BCD"} {
		_, err := ParseCode(raw)
		assert.True(t, shared.IsValidation(err), "input %q", raw)
	}
}

func TestGroup_RenameKeepsCode(t *testing.T) {
	g, err := New("Algorithms A")
	require.NoError(t, err)
	original := g.Code()

	require.NoError(t, g.Rename("Operating Systems"))
	assert.Equal(t, "Operating Systems", g.Name())
	assert.Equal(t, original, g.Code())

	recomputed := g.RecomputeCode()
	assert.Equal(t, DeriveCode("Operating Systems"), recomputed)
	assert.NotEqual(t, original, g.Code())
}
