package cmd

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BASIL960/FinalYearProject/internal/fakeauditor"
	"github.com/BASIL960/FinalYearProject/internal/output"
)

const samplePDF = "%PDF-1.4\nData classification policy. Backup schedule. Access control reviews.\n%%EOF"

type cliEnv struct {
	fake     *fakeauditor.Server
	baseArgs []string
	storeDir string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	fake := fakeauditor.New(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "compliancectl.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("output:\n  colors: false\n"), 0o600))

	storeDir := filepath.Join(dir, "store")
	return &cliEnv{
		fake:     fake,
		storeDir: storeDir,
		baseArgs: []string{
			"--config", cfgPath,
			"--base-url", srv.URL,
			"--store-dir", storeDir,
			"--color", "never",
		},
	}
}

// resetFlags restores every flag to its default so runs don't leak state
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// run executes one invocation and returns stdout, stderr and the error
func (e *cliEnv) run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(append(append([]string{}, e.baseArgs...), args...))

	err := rootCmd.Execute()
	shutdown()
	return out.String(), errOut.String(), err
}

func (e *cliEnv) login(t *testing.T) {
	t.Helper()
	_, _, err := e.fake.SeedUser("auditor", "password123")
	require.NoError(t, err)
	_, _, err = e.run(t, "password123\n", "login", "auditor", "--password-stdin")
	require.NoError(t, err)
}

func TestVersion(t *testing.T) {
	env := newCLIEnv(t)
	SetVersion("1.2.3")
	SetBuildInfo("abc1234", "2026-02-06T07:16:38Z")
	t.Cleanup(func() { SetVersion("dev") })

	out, _, err := env.run(t, "", "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, "1.2.3\n", out)

	out, _, err = env.run(t, "", "version", "--json")
	require.NoError(t, err)
	var info map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "abc1234", info["commit"])
	assert.True(t, strings.HasPrefix(info["baseURL"], "http://127.0.0.1"))
}

func TestRootHelp_ListsCommands(t *testing.T) {
	env := newCLIEnv(t)

	out, _, err := env.run(t, "", "--help")
	require.NoError(t, err)
	for _, sub := range []string{"login", "logout", "register", "audit", "records", "request", "session", "whoami"} {
		assert.Contains(t, out, sub)
	}
}

func TestLoginWhoamiLogout(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)

	out, _, err := env.run(t, "", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "auditor@example.com")
	assert.Contains(t, out, "INDIVIDUAL")

	out, _, err = env.run(t, "", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "[OK] Signed out")
	assert.Equal(t, 1, env.fake.Calls(fakeauditor.PathLogout))

	_, _, err = env.run(t, "", "whoami")
	require.Error(t, err)
	assert.Equal(t, output.ExitAuthError, output.FromError(err).ExitCode)

	out, _, err = env.run(t, "", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "No active session")
	assert.Equal(t, 1, env.fake.Calls(fakeauditor.PathLogout), "no server call without a session")
}

func TestLogin_BadPassword(t *testing.T) {
	env := newCLIEnv(t)
	_, _, err := env.fake.SeedUser("auditor", "password123")
	require.NoError(t, err)

	_, _, err = env.run(t, "", "login", "auditor", "--password", "wrong")

	require.Error(t, err)
	cliErr := output.FromError(err)
	assert.Equal(t, output.ExitUsageError, cliErr.ExitCode)
	assert.Equal(t, "No active account found with the given credentials", cliErr.Summary)
}

func TestLogin_RequiresPassword(t *testing.T) {
	env := newCLIEnv(t)

	_, _, err := env.run(t, "", "login", "auditor")

	require.Error(t, err)
	assert.Equal(t, output.ExitUsageError, output.FromError(err).ExitCode)
	assert.Zero(t, env.fake.Calls(fakeauditor.PathLogin))
}

func TestRegister_Organization(t *testing.T) {
	env := newCLIEnv(t)

	out, _, err := env.run(t, "s3cretpass\n", "register",
		"--user-type", "organization",
		"--username", "acme",
		"--email", "sec@acme.example",
		"--password-stdin",
		"--company-name", "Acme Corp",
		"--industry", "Finance",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "Registered and signed in as Acme Corp")

	out, _, err = env.run(t, "", "whoami", "--json")
	require.NoError(t, err)
	var user map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &user))
	assert.Equal(t, "ORGANIZATION", user["user_type"])
	assert.Equal(t, "Finance", user["industry"])
}

func TestRegister_FieldErrors(t *testing.T) {
	env := newCLIEnv(t)

	_, _, err := env.run(t, "", "register", "--username", "x", "--email", "bad", "--password", "short")

	require.Error(t, err)
	cliErr := output.FromError(err)
	assert.Equal(t, output.ExitUsageError, cliErr.ExitCode)
	assert.Equal(t, "Enter a valid email address.", cliErr.Summary)
	assert.Contains(t, cliErr.Detail, "password: This password is too short.")
}

func TestAuditSubmit_JSON(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)
	pdf := filepath.Join(t.TempDir(), "policy.pdf")
	require.NoError(t, os.WriteFile(pdf, []byte(samplePDF), 0o600))

	out, _, err := env.run(t, "", "audit", "submit", pdf, "--framework", "NCA", "--detailed", "--json")
	require.NoError(t, err)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Equal(t, "detailed", rec["report_kind"])
	assert.Equal(t, "PARTIAL", rec["status"])
	report, ok := rec["report"].(map[string]any)
	require.True(t, ok)
	assert.NotEmpty(t, report["violations"])
}

func TestAuditSubmit_Summary(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)
	pdf := filepath.Join(t.TempDir(), "policy.pdf")
	require.NoError(t, os.WriteFile(pdf, []byte(samplePDF), 0o600))

	out, _, err := env.run(t, "", "audit", "submit", pdf, "-f", "2")
	require.NoError(t, err)

	assert.Contains(t, out, "[PARTIAL]")
	assert.Contains(t, out, "Key issues")
	assert.NotContains(t, out, "Recommendations")
}

func TestAuditSubmit_BadInput(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)
	empty := filepath.Join(t.TempDir(), "empty.pdf")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))

	_, _, err := env.run(t, "", "audit", "submit", empty, "--framework", "ECC")
	require.Error(t, err)
	assert.Equal(t, output.ExitUsageError, output.FromError(err).ExitCode)

	_, _, err = env.run(t, "", "audit", "submit", empty, "--framework", "PCI")
	require.Error(t, err)
	assert.Equal(t, output.ExitUsageError, output.FromError(err).ExitCode)

	assert.Zero(t, env.fake.Calls(fakeauditor.PathSubmit))
}

func TestRecords_ListAndGet(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)
	id, err := env.fake.SeedRecord("auditor", 1, map[string]any{
		"compliance_score":  40.0,
		"executive_summary": "Weak governance.",
		"compliant_areas":   []string{"Asset management"},
		"violations":        []string{"Incident management is not addressed"},
		"recommendations":   []string{"Document an incident response procedure."},
	})
	require.NoError(t, err)

	out, _, err := env.run(t, "", "records", "list")
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "[NON_COMPLIANT]")
	assert.Contains(t, out, "40%")

	out, _, err = env.run(t, "", "records", "get", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Weak governance.")
	assert.Contains(t, out, "  - Incident management is not addressed")
	assert.Contains(t, out, "Recommendations")

	_, _, err = env.run(t, "", "records", "get", "missing")
	require.Error(t, err)
	assert.Equal(t, output.ExitServerError, output.FromError(err).ExitCode)
}

func TestRecords_EmptyList(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)

	out, _, err := env.run(t, "", "records", "list", "--json")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)

	out, _, err = env.run(t, "", "records", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No compliance records yet")
}

func TestRecords_RenewsExpiredAccessToken(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)
	env.fake.ExpireAccessTokens()

	_, _, err := env.run(t, "", "records", "list")

	require.NoError(t, err)
	assert.Equal(t, 1, env.fake.RefreshCalls())
	assert.Equal(t, 2, env.fake.Calls(fakeauditor.PathRecords))
}

func TestRecords_WithoutSession(t *testing.T) {
	env := newCLIEnv(t)

	_, _, err := env.run(t, "", "records", "list")

	require.Error(t, err)
	assert.Equal(t, output.ExitAuthError, output.FromError(err).ExitCode)
	assert.Zero(t, env.fake.Calls(fakeauditor.PathRecords))
}

func TestSessionRefresh(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)

	out, _, err := env.run(t, "", "session", "refresh")
	require.NoError(t, err)
	assert.Contains(t, out, "Session renewed")

	env.fake.SetRejectRefresh(true)
	_, _, err = env.run(t, "", "session", "refresh")
	require.Error(t, err)
	assert.Equal(t, output.ExitAuthError, output.FromError(err).ExitCode)

	_, _, err = env.run(t, "", "whoami")
	require.Error(t, err, "a rejected refresh clears the stored session")
}

func TestRequest_Raw(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)

	out, _, err := env.run(t, "", "request", "auditor/compliance-records/all", "--include")
	require.NoError(t, err)
	assert.Contains(t, out, "200 OK")
	assert.Contains(t, out, `"records"`)

	_, _, err = env.run(t, "", "request", "/auditor/compliance-records/nope")
	require.Error(t, err)
	assert.Equal(t, output.ExitServerError, output.FromError(err).ExitCode)
}

func TestExecute_ExitCodeAndMetrics(t *testing.T) {
	env := newCLIEnv(t)
	metricsPath := filepath.Join(t.TempDir(), "compliancectl.prom")

	resetFlags(rootCmd)
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(append(append([]string{}, env.baseArgs...), "--metrics-textfile", metricsPath, "records", "list"))

	code := Execute()

	assert.Equal(t, output.ExitAuthError, code)
	assert.Contains(t, errOut.String(), "[ERROR] You are not logged in.")

	data, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "compliancectl_")
}

func TestInvalidConfig(t *testing.T) {
	env := newCLIEnv(t)

	_, _, err := env.run(t, "", "--store", "sqlite", "records", "list")

	require.Error(t, err)
	assert.Equal(t, output.ExitConfigError, output.FromError(err).ExitCode)
}
