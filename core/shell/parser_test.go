package shell

import (
	"errors"
	"path/filepath"
	"sort"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGolden(t *testing.T) {
	cases := map[string]string{
		"simple":              `echo hi`,
		"pipe":                `printf 'b\na\n' | sort`,
		"redirect-out":        `echo hi > out.txt`,
		"redirect-in":         `wc -l < threeline.txt`,
		"background":          `sleep 5 &`,
		"three-stage":         `cat < in.txt | tr a-z A-Z | sort -r > out.txt`,
		"quoting":             `echo "hello world" 'it'"'"'s' a\ b`,
		"pipeline-background": `grep x >o | wc &`,
	}

	g := goldie.New(
		t,
		goldie.WithFixtureDir(filepath.Join("testdata", "golden")),
		goldie.WithDiffEngine(goldie.ColoredDiff),
		goldie.WithTestNameForDir(true),
	)

	var names []string
	for name := range cases {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		p, err := Parse(cases[name])
		require.NoError(t, err, name)
		g.Assert(t, name, []byte(p.String()+"\n"))
	}
}

func TestParseInvalid(t *testing.T) {
	cases := map[string]string{
		"dangling-pipe":     `echo hi |`,
		"leading-pipe":      `| sort`,
		"missing-target":    `cat <`,
		"and":               `true && false`,
		"or":                `true || false`,
		"sequence":          `echo a; echo b`,
		"background-middle": `sleep 1 & echo b`,
		"variable":          `echo $HOME`,
		"quoted-variable":   `echo "$HOME"`,
		"command-subst":     `echo $(ls)`,
		"assignment":        `A=B env`,
		"append":            `echo hi >> out`,
		"stderr":            `ls 2> err`,
		"dup":               `ls 2>&1`,
		"subshell":          `(ls)`,
		"negation":          `! ls`,
		"redirect-only":     `> out`,
		"pipe-all":          `ls |& cat`,
		"unterminated":      `echo "hi`,
	}

	for tn, line := range cases {
		t.Run(tn, func(t *testing.T) {
			p, err := Parse(line)
			assert.Nil(t, p)
			assert.True(t, errors.Is(err, ErrInvalidInput), "got %v", err)
		})
	}
}

func TestParseEmpty(t *testing.T) {
	for _, line := range []string{"", "   ", "# just a comment"} {
		_, err := Parse(line)
		assert.ErrorIs(t, err, ErrEmpty, "line %q", line)
	}
}

func TestParseFields(t *testing.T) {
	p, err := Parse(`sort -r < in.txt > "out file.txt" &`)
	require.NoError(t, err)
	require.Equal(t, 1, p.Len())

	c := p.Commands[0]
	assert.Equal(t, []string{"sort", "-r"}, c.Args)
	assert.Equal(t, "sort", c.Name())
	assert.Equal(t, "in.txt", c.InFile)
	assert.Equal(t, "out file.txt", c.OutFile)
	assert.True(t, c.Background)
	assert.True(t, p.Background())
}

func TestParseExplicitDescriptors(t *testing.T) {
	p, err := Parse(`tr a b 0< in 1> out`)
	require.NoError(t, err)
	assert.Equal(t, "in", p.Commands[0].InFile)
	assert.Equal(t, "out", p.Commands[0].OutFile)
}

func TestParseLastRedirectWins(t *testing.T) {
	p, err := Parse(`cat < a < b > c > d`)
	require.NoError(t, err)
	assert.Equal(t, "b", p.Commands[0].InFile)
	assert.Equal(t, "d", p.Commands[0].OutFile)
}

func TestParseNoSpaces(t *testing.T) {
	p, err := Parse(`echo hi>out|cat`)
	require.NoError(t, err)
	require.Equal(t, 2, p.Len())
	assert.Equal(t, "out", p.Commands[0].OutFile)
	assert.Equal(t, []string{"cat"}, p.Commands[1].Args)
}

func TestArgvIsACopy(t *testing.T) {
	c := &Command{Args: []string{"ls", "-l"}}
	argv := c.Argv()
	argv[0] = "rm"
	assert.Equal(t, "ls", c.Args[0])
}

func TestUnescape(t *testing.T) {
	cases := map[string]struct {
		in   string
		only map[byte]bool
		want string
	}{
		"plain":             {`abc`, nil, `abc`},
		"space":             {`a\ b`, nil, `a b`},
		"backslash":         {`a\\b`, nil, `a\b`},
		"trailing":          {`a\`, nil, `a\`},
		"dbl-keeps-letters": {`a\nb`, dblQuoteEscapes, `a\nb`},
		"dbl-drops-quote":   {`a\"b`, dblQuoteEscapes, `a"b`},
		"dbl-drops-dollar":  {`\$x`, dblQuoteEscapes, `$x`},
	}

	for tn, tc := range cases {
		t.Run(tn, func(t *testing.T) {
			assert.Equal(t, tc.want, unescape(tc.in, tc.only))
		})
	}
}
