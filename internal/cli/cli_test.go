package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/blues/tcf/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEnv() (Environment, *bytes.Buffer, *bytes.Buffer) {
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	return Environment{Stdout: stdout, Stderr: stderr}, stdout, stderr
}

func TestParseCommands(t *testing.T) {
	cases := []struct {
		args    []string
		command string
	}{
		{[]string{"serve", "--port", "9090", "--no-monitor"}, "serve"},
		{[]string{"campaigns", "--owner", "0xabc", "-q", "solar"}, "campaigns"},
		{[]string{"show", "3"}, "show <id>"},
		{[]string{"quote", "1", "250"}, "quote <id> <amount>"},
		{[]string{"donate", "1", "0.5"}, "donate <id> <amount>"},
		{[]string{"refund", "1"}, "refund <id>"},
		{[]string{"end", "1"}, "end <id>"},
		{[]string{"withdraw", "1"}, "withdraw <id>"},
		{[]string{"mint", "1000"}, "mint <amount>"},
		{[]string{"transactions", "--campaign", "2"}, "transactions"},
		{[]string{"create", "--title", "Solar", "--target", "10", "--deadline", "2027-01-01"}, "create"},
	}

	for _, tc := range cases {
		t.Run(tc.command, func(t *testing.T) {
			env, _, _ := testEnv()
			app := CLI{}
			parser, err := newParser(&app, env)
			require.NoError(t, err)

			cntx, err := parser.Parse(tc.args)
			require.NoError(t, err)
			assert.Equal(t, tc.command, cntx.Command())
		})
	}
}

func TestParseFlagValues(t *testing.T) {
	env, _, _ := testEnv()
	app := CLI{}
	parser, err := newParser(&app, env)
	require.NoError(t, err)

	_, err = parser.Parse([]string{"--log-level", "debug", "donate", "7", "12.5"})
	require.NoError(t, err)
	assert.Equal(t, "debug", app.LogLevel)
	assert.Equal(t, int64(7), app.Donate.ID)
	assert.Equal(t, "12.5", app.Donate.Amount)

	app = CLI{}
	parser, err = newParser(&app, env)
	require.NoError(t, err)
	_, err = parser.Parse([]string{"transactions"})
	require.NoError(t, err)
	assert.Equal(t, int64(-1), app.Transactions.Campaign)
	assert.Equal(t, 20, app.Transactions.Limit)
}

func TestRunHelpExitsZero(t *testing.T) {
	env, stdout, _ := testEnv()

	code := Run(env, []string{"--help"})
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout.String(), "donate")
}

func TestRunUsageErrorExitsNonZero(t *testing.T) {
	env, _, stderr := testEnv()

	code := Run(env, []string{"donate", "not-a-number", "1"})
	assert.NotEqual(t, 0, code)
	assert.NotEmpty(t, stderr.String())

	code = Run(env, []string{"create", "--title", "missing target"})
	assert.NotEqual(t, 0, code)
}

func TestParseDeadline(t *testing.T) {
	d, err := parseDeadline("2027-01-02")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2027, 1, 2, 0, 0, 0, 0, time.UTC), d)

	d, err = parseDeadline("2027-01-02T10:30:00+02:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2027, 1, 2, 8, 30, 0, 0, time.UTC), d)

	_, err = parseDeadline("next week")
	assert.ErrorIs(t, err, errs.ErrInvalidCampaign)
}
