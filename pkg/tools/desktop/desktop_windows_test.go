//go:build windows

package desktop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPsQuote(t *testing.T) {
	assert.Equal(t, `'C:\Projects\demo.emtp'`, psQuote(`C:\Projects\demo.emtp`))
	assert.Equal(t, `'O''Brien'`, psQuote("O'Brien"))
}

func TestAlternation(t *testing.T) {
	assert.Equal(t, `Save As|Зберегти як`, alternation([]string{"Save As", "Зберегти як"}))
	assert.Equal(t, `Open\.\.\.`, alternation([]string{"Open..."}))
}

func TestRenderMenuScript(t *testing.T) {
	script := renderMenuScript("EasyBuilder Pro", []string{"Build", "Build"}, 2*time.Second)

	assert.Contains(t, script, "$title = 'EasyBuilder Pro'")
	assert.Contains(t, script, "$path = @('Build', 'Build')")
	assert.Contains(t, script, "AddMilliseconds(2000)")
	// A repeated caption must resolve below the expanded item, not to it.
	assert.Contains(t, script, "$parent.FindFirst($Scope::Descendants, $cond)")
	assert.Contains(t, script, "Compare($item, $parent)")
	// The last step has to be invoked; expanding it again is a failure.
	assert.Contains(t, script, `Fail 5 "menu command cannot be invoked: $name"`)
	assert.NotContains(t, script, "%!")
}
