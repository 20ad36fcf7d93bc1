package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/Veraticus/firetrack/internal/common"
	"github.com/Veraticus/firetrack/internal/model"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const statementOFX = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20240315120000[0:GMT]
<LANGUAGE>ENG
</SONRS>
</SIGNONMSGSRSV1>
<BANKMSGSRSV1>
<STMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<STMTRS>
<CURDEF>GBP
<BANKACCTFROM>
<BANKID>123456789
<ACCTID>55556666
<ACCTTYPE>CHECKING
</BANKACCTFROM>
<BANKTRANLIST>
<DTSTART>20240101120000[0:GMT]
<DTEND>20240131120000[0:GMT]
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240105120000[0:GMT]
<TRNAMT>-2.80
<FITID>T1
<NAME>TFL TRAVEL CH 0123
</STMTTRN>
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240110120000[0:GMT]
<TRNAMT>-420.00
<FITID>T2
<NAME>HMRC SELF ASSESSMENT
</STMTTRN>
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240115120000[0:GMT]
<TRNAMT>-31.17
<FITID>T3
<NAME>TESCO STORES 1234
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>1000.00
<DTASOF>20240131120000[0:GMT]
</LEDGERBAL>
</STMTRS>
</STMTTRNRS>
</BANKMSGSRSV1>
</OFX>
`

// testEnv points a fresh root command at a temporary database with AI disabled.
type testEnv struct {
	t          *testing.T
	configPath string
	dir        string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	config := "database:\n  path: " + filepath.Join(dir, "firetrack.db") + "\n" +
		"logging:\n  level: error\n" +
		"llm:\n  enabled: false\n"
	require.NoError(t, os.WriteFile(configPath, []byte(config), 0o600))
	return &testEnv{t: t, configPath: configPath, dir: dir}
}

func (e *testEnv) run(args ...string) (string, error) {
	e.t.Helper()
	viper.Reset()
	cfgFile = ""

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", e.configPath}, args...))
	err := root.Execute()
	return out.String(), err
}

func (e *testEnv) mustRun(args ...string) string {
	e.t.Helper()
	out, err := e.run(args...)
	require.NoError(e.t, err, out)
	return out
}

func TestVersion(t *testing.T) {
	env := newTestEnv(t)
	assert.Contains(t, env.mustRun("version"), "firetrack dev")
}

func TestMigrateSeedsSystemRules(t *testing.T) {
	env := newTestEnv(t)
	out := env.mustRun("migrate")
	assert.Contains(t, out, "Database is up to date")
	assert.Contains(t, out, "(5 system)")

	out = env.mustRun("rules", "list", "--system")
	assert.Contains(t, out, "tfl travel ch")
	assert.Contains(t, out, "Public Transport")
	assert.Contains(t, out, "system")

	assert.Contains(t, env.mustRun("rules", "list", "--user"), "No rules found")
	assert.Contains(t, env.mustRun("rules", "stats"), "System: 5")
}

func TestRulesLifecycle(t *testing.T) {
	env := newTestEnv(t)

	out := env.mustRun("rules", "create", "--pattern", "netflix.com", "--match", "exact", "--category", "entertainment")
	assert.Contains(t, out, "Created rule")
	assert.Contains(t, out, "Entertainment")

	out = env.mustRun("categorise", "NETFLIX.COM")
	assert.Contains(t, out, "Entertainment")
	assert.Contains(t, out, "exact rule")

	_, err := env.run("rules", "create", "--pattern", "NETFLIX.COM", "--match", "exact", "--category", "Entertainment")
	assert.Error(t, err, "duplicate pattern")

	_, err = env.run("rules", "create", "--pattern", "deliveroo", "--category", "Takeawy")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `did you mean "Takeaway"`)

	_, err = env.run("rules", "create", "--pattern", "([", "--match", "regex", "--category", "Takeaway")
	assert.Error(t, err, "invalid regex")

	out = env.mustRun("rules", "test", "--pattern", "tfl", "--match", "contains")
	assert.Contains(t, out, "matches 0 transactions")
}

func TestImportAndCategorise(t *testing.T) {
	env := newTestEnv(t)
	statement := filepath.Join(env.dir, "january.ofx")
	require.NoError(t, os.WriteFile(statement, []byte(statementOFX), 0o600))

	out := env.mustRun("import", env.dir)
	assert.Contains(t, out, "3 new")

	out = env.mustRun("import", statement)
	assert.Contains(t, out, "Imported 0 new transactions, 3 already present")

	out = env.mustRun("categorise", "--apply", "--verbose")
	assert.Contains(t, out, "Applied 2 categories")
	assert.Contains(t, out, "Public Transport")
	assert.Contains(t, out, "Taxes")
	assert.Contains(t, out, "AI categorisation not available")

	out = env.mustRun("categorise", "--verbose")
	assert.Contains(t, out, "TESCO STORES 1234")
	assert.NotContains(t, out, "TFL TRAVEL CH")

	out = env.mustRun("rules", "test", "--pattern", "tfl travel", "--category", "Public Transport")
	assert.Contains(t, out, "matches 1 transactions (0 would change)")
}

func TestCorrectionsBecomeRules(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 2; i++ {
		env.mustRun("corrections", "record", "DELIVEROO LONDON", "--category", "Takeaway", "--was", "Eating Out", "--source", "ai")
	}
	_, err := env.run("corrections", "record", "X", "--category", "Takeaway", "--source", "guess")
	assert.Error(t, err)

	out := env.mustRun("corrections", "history", "deliveroo london")
	assert.Contains(t, out, "Eating Out")
	assert.Contains(t, out, "Takeaway")

	out = env.mustRun("suggestions", "list")
	assert.Contains(t, out, `"deliveroo london"`)
	assert.Contains(t, out, "Takeaway")

	_, err = env.run("suggestions", "accept", "7")
	assert.Error(t, err)

	out = env.mustRun("suggestions", "accept", "1")
	assert.Contains(t, out, `Created exact rule "deliveroo london"`)

	assert.Contains(t, env.mustRun("suggestions", "list"), "No suggestions yet")
	assert.Contains(t, env.mustRun("categorise", "Deliveroo London"), "Takeaway")
}

func TestUsageWithoutAI(t *testing.T) {
	env := newTestEnv(t)
	out := env.mustRun("usage")
	assert.Contains(t, out, "Remaining: 100")
	assert.Contains(t, out, "AI categorisation is off")
}

func TestSelectSuggestions(t *testing.T) {
	suggestions := []model.PatternSuggestion{{Pattern: "a"}, {Pattern: "b"}, {Pattern: "c"}}

	got, err := selectSuggestions(suggestions, []string{"3", "1"}, false)
	require.NoError(t, err)
	assert.Equal(t, []model.PatternSuggestion{{Pattern: "c"}, {Pattern: "a"}}, got)

	got, err = selectSuggestions(suggestions, nil, true)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	for _, bad := range []string{"0", "4", "x"} {
		_, err := selectSuggestions(suggestions, []string{bad}, false)
		assert.Error(t, err, bad)
	}
}

func TestParseSource(t *testing.T) {
	src, err := parseSource(" AI ")
	require.NoError(t, err)
	assert.Equal(t, model.SourceAI, src)

	_, err = parseSource("manual")
	assert.Error(t, err)
}

func TestErrorMessage(t *testing.T) {
	plain := errors.New("boom")
	assert.Equal(t, "boom", errorMessage(plain))

	friendly := fmt.Errorf("rules edit: %w", common.NewUserError("unknown category \"Foo\"", common.ErrNotFound))
	assert.Equal(t, "unknown category \"Foo\"", errorMessage(friendly))
}
