package recipients

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidAddress(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"jane@example.com", true},
		{"first.last+tag@mail.example.co.uk", true},
		{"user_1@sub-domain.example.org", true},
		{"UPPER@EXAMPLE.COM", true},
		{"", false},
		{"plainaddress", false},
		{"@example.com", false},
		{"jane@", false},
		{"jane@localhost", false},
		{"jane@example", false},
		{"jane@example.c", false},
		{"jane@-example.com", false},
		{"jane@example..com", false},
		{"jane@@example.com", false},
		{"Jane <jane@example.com>", false},
		{"<jane@example.com>", false},
		{"jane@192.168.0.1", false},
		{" jane@example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidAddress(tt.input))
		})
	}
}

func TestValidate_PartitionsInOrder(t *testing.T) {
	in := []string{"a@x.com", "nope", " b@y.com ", "", "a@x.com"}

	p := Validate(in)

	assert.Equal(t, []string{"a@x.com", "b@y.com", "a@x.com"}, p.Valid)
	assert.Equal(t, []string{"nope", ""}, p.Invalid)
	assert.Len(t, in, len(p.Valid)+len(p.Invalid))
}

func TestValidate_Idempotent(t *testing.T) {
	in := []string{"a@x.com", "bad@", "c@z.io", "d@@e.com", " e@f.net"}

	first := Validate(in)
	second := Validate(first.Valid)

	assert.Equal(t, first.Valid, second.Valid)
	assert.Empty(t, second.Invalid)
}

func TestValidate_EmptyInput(t *testing.T) {
	p := Validate(nil)
	assert.Empty(t, p.Valid)
	assert.Empty(t, p.Invalid)
}
