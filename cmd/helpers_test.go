// File: cmd/helpers_test.go
package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/warranty-cli/internal/computer"
	"github.com/xkilldash9x/warranty-cli/internal/config"
	"github.com/xkilldash9x/warranty-cli/internal/observability"
	"github.com/xkilldash9x/warranty-cli/internal/warranty"
)

// resetForTest isolates a test from the global logger, the hooks in
// lookup.go and the developer's environment.
func resetForTest(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	observability.ResetForTest()
	t.Cleanup(observability.ResetForTest)

	t.Setenv("WARRANTY_LOGGER_LEVEL", "fatal")
	t.Setenv("WARRANTY_LOGGER_LOG_FILE", filepath.Join(dir, "warranty.log"))
	t.Setenv("WARRANTY_LOOKUP_POLL_INTERVAL", "1ms")
	unsetEnv(t, "WARRANTY_STORE_URL")

	originalWithPage, originalOpenStore := withPage, openStore
	t.Cleanup(func() {
		withPage = originalWithPage
		openStore = originalOpenStore
	})
	withPage = func(context.Context, *config.Config, *zap.Logger, func(warranty.Page) error) error {
		t.Fatal("browser started unexpectedly")
		return nil
	}
	return dir
}

// unsetEnv removes key for the duration of the test.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}

// executeCommand runs a fresh command tree with args.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// usePage makes the lookup command drive page instead of a browser and
// records the config it was given.
func usePage(t *testing.T, page warranty.Page) *config.Config {
	t.Helper()
	seen := &config.Config{}
	withPage = func(_ context.Context, cfg *config.Config, _ *zap.Logger, fn func(warranty.Page) error) error {
		*seen = *cfg
		return fn(page)
	}
	return seen
}

// stubPage is a vendor site on which every serial number is found and every
// warranty runs from April 1 2024 to April 1 2027.
type stubPage struct {
	mu      sync.Mutex
	serials map[int]string
	current string
}

func newStubPage() *stubPage {
	return &stubPage{serials: make(map[int]string)}
}

func (p *stubPage) OpenForm(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = "https://support.example.com/check-warranty#multiple"
	return nil
}

func (p *stubPage) ResetForm(context.Context, int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.serials = make(map[int]string)
	return nil
}

func (p *stubPage) FillSerial(_ context.Context, index int, serial string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.serials[index] = serial
	return true, nil
}

func (p *stubPage) FillProduct(context.Context, int, string) (bool, error) { return true, nil }

func (p *stubPage) Submit(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = "https://support.example.com/warrantyresult"
	return nil
}

func (p *stubPage) Outcome(context.Context) (warranty.Outcome, error) {
	return warranty.OutcomeSummary, nil
}

func (p *stubPage) SerialRejected(context.Context, int) (bool, error) { return false, nil }

func (p *stubPage) ResultLinks(_ context.Context, rows int) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var links []string
	for i := 0; i < rows; i++ {
		if serial, ok := p.serials[i]; ok {
			links = append(links, "https://support.example.com/warrantyresult/detail?serialnumber="+serial)
		}
	}
	return links, nil
}

func (p *stubPage) LoadState(context.Context) (warranty.LoadState, error) {
	return warranty.LoadStateLoaded, nil
}

func (p *stubPage) Reload(context.Context) error { return nil }

func (p *stubPage) Navigate(_ context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = url
	return nil
}

func (p *stubPage) WarrantyRendered(context.Context) (bool, error) { return true, nil }

func (p *stubPage) HTML(context.Context) (string, error) {
	return fmt.Sprintf(`<html><body>
<div><label>Start date</label><span>%s</span></div>
<div><label>End date</label><span>%s</span></div>
</body></html>`, "April 01, 2024", "April 01, 2027"), nil
}

func (p *stubPage) CurrentURL(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, nil
}

// recordingSink collects the batches handed to it.
type recordingSink struct {
	mu      sync.Mutex
	batches [][]*computer.Computer
}

func (s *recordingSink) WriteBatch(_ context.Context, batch []*computer.Computer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, batch)
	return nil
}

func inputCSV(serials ...string) string {
	var b strings.Builder
	b.WriteString("serial_number,product_number\n")
	for _, s := range serials {
		b.WriteString(s + ",\n")
	}
	return b.String()
}
