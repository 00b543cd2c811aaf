package gwlog

import (
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bmizerany/assert"
)

func TestGWLog(t *testing.T) {
	SetSource("gwlog_test")
	SetLevel(DebugLevel)

	assert.Equal(t, DebugLevel, StringToLevel("debug"))
	assert.Equal(t, InfoLevel, StringToLevel("INFO"))
	assert.Equal(t, WarnLevel, StringToLevel("warning"))
	assert.Equal(t, ErrorLevel, StringToLevel("error"))
	assert.Equal(t, PanicLevel, StringToLevel("panic"))
	assert.Equal(t, FatalLevel, StringToLevel("fatal"))
	assert.Equal(t, DebugLevel, StringToLevel("nonsense"))

	Debugf("this is a debug %d", 1)
	SetLevel(InfoLevel)
	assert.Equal(t, InfoLevel, GetLevel())
	Debugf("SHOULD NOT SEE THIS!")
	Infof("this is an info %d", 2)
	Warnf("this is a warning %d", 3)
	TraceError("this is a trace error %d", 4)

	paniced := false
	func() {
		defer func() {
			paniced = recover() != nil
		}()
		Panicf("this is a panic %d", 5)
	}()
	assert.T(t, paniced)
	SetLevel(DebugLevel)
}

func TestRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mercury.log")
	SetOutput([]string{RotatingFile(path)})
	defer SetOutput([]string{"stderr"})

	Infof("written to %s", "the log file")
	Sync()
	data, err := ioutil.ReadFile(path)
	assert.Equal(t, nil, err)
	assert.T(t, strings.Contains(string(data), "written to the log file"))
}
