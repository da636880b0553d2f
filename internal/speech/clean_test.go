package speech

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanForTTS(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		in   string
		want string
	}{
		"stage directions": {
			in:   "*clears throat* Welcome (quietly) to the [ominous music] crypt",
			want: "Welcome to the crypt.",
		},
		"emotion verbs with adverb": {
			in:   "You came back chuckles warmly at last",
			want: "You came back at last.",
		},
		"laughter and punctuation": {
			in:   "Hahaha!!! You fool... Hehe??",
			want: "Ha! You fool. He?",
		},
		"fancy quotes": {
			in:   "“Stay close,” she said. ‘Always’ means always",
			want: "'Stay close,' she said. 'Always' means always.",
		},
		"symbols and whitespace": {
			in:   "The   <gate> #opens\n\n at ~dawn|",
			want: "The gate opens at dawn.",
		},
		"keeps existing terminal punctuation": {
			in:   "Who goes there?",
			want: "Who goes there?",
		},
		"empty falls back": {
			in:   "  *silence*  ",
			want: FallbackUtterance,
		},
		"too short falls back": {
			in:   "a",
			want: FallbackUtterance,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, CleanForTTS(tc.in))
		})
	}
}

func TestCleanForTTSIsIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"*coughs* Hello there!!! (pauses) How are you",
		"Hahaha... sighs heavily. [thunder] The end?!?!",
		"“Quoted” words,, and more,,,",
		"(",
		"",
		"Fine, *sighs*",
		"ha*x*ha",
		"Nothing to change here.",
		"The treasure waits beyond the gate",
	}

	for _, in := range inputs {
		once := CleanForTTS(in)
		twice := CleanForTTS(once)
		assert.Equal(t, once, twice, "input %q", in)
		assert.NotEmpty(t, once)
	}
}
