// internal/reporting/junit_test.go
package reporting

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/kickstart-cli/internal/checkout"
	"github.com/xkilldash9x/kickstart-cli/internal/faults"
	"github.com/xkilldash9x/kickstart-cli/internal/install"
)

type bufferCloser struct {
	bytes.Buffer
}

func (b *bufferCloser) Close() error { return nil }

func renderJUnit(t *testing.T, runs ...*Run) *etree.Document {
	t.Helper()
	out := &bufferCloser{}
	r := NewJUnitReporter(out, "v-test")
	for _, run := range runs {
		require.NoError(t, r.Write(run))
	}
	require.NoError(t, r.Close())

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(out.Bytes()))
	return doc
}

func TestJUnitInstallRun(t *testing.T) {
	timeout := faults.InstallTimeout(install.StageInstallProfile, 50, nil)
	report := &install.Report{
		RunID:        "run-7",
		DetectedTask: install.StageSetUpDatabase,
		Stages: []install.StageResult{
			{Name: install.StageSetUpDatabase, Duration: 1500 * time.Millisecond},
			{Name: install.StageInstallProfile, Duration: 50 * time.Second, Polls: 50, Err: timeout},
		},
		Duration: 52 * time.Second,
	}

	doc := renderJUnit(t, FromInstall(report, timeout))

	root := doc.SelectElement("testsuites")
	require.NotNil(t, root)
	assert.Equal(t, "2", root.SelectAttrValue("tests", ""))
	assert.Equal(t, "1", root.SelectAttrValue("failures", ""))

	suite := root.SelectElement("testsuite")
	require.NotNil(t, suite)
	assert.Equal(t, "install", suite.SelectAttrValue("name", ""))
	assert.Equal(t, "52.000", suite.SelectAttrValue("time", ""))

	cases := suite.SelectElements("testcase")
	require.Len(t, cases, 2)
	assert.Equal(t, "set_up_database", cases[0].SelectAttrValue("name", ""))
	assert.Equal(t, "1.500", cases[0].SelectAttrValue("time", ""))
	assert.Nil(t, cases[0].SelectElement("failure"))

	f := cases[1].SelectElement("failure")
	require.NotNil(t, f)
	assert.Equal(t, "install_timeout", f.SelectAttrValue("type", ""))
	assert.Equal(t, "polls: 50", cases[1].SelectElement("system-out").Text())

	detected := suite.FindElement("./properties/property[@name='detected_task']")
	require.NotNil(t, detected)
	assert.Equal(t, "set_up_database", detected.SelectAttrValue("value", ""))
}

func TestJUnitRunFailedBeforeAnyStep(t *testing.T) {
	report := &checkout.Report{RunID: "run-1", Target: checkout.MaxLevel}
	doc := renderJUnit(t, FromCheckout(report, faults.EmptyCart()))

	suite := doc.FindElement("//testsuite")
	require.NotNil(t, suite)
	assert.Equal(t, "1", suite.SelectAttrValue("failures", ""))

	cases := suite.SelectElements("testcase")
	require.Len(t, cases, 1)
	assert.Equal(t, "checkout", cases[0].SelectAttrValue("name", ""))
	assert.Equal(t, "empty_cart", cases[0].SelectElement("failure").SelectAttrValue("type", ""))
}

func TestJUnitMultipleRuns(t *testing.T) {
	cart := NewRun(checkout.CartFlow, "run-1")
	cart.AddStep("add_42", time.Second, 0, nil)
	cart.AddStep("add_7", time.Second, 0, errors.New("connection reset"))
	cart.Finish(2*time.Second, errors.New("connection reset"))

	checkoutRun := FromCheckout(&checkout.Report{
		RunID:         "run-1",
		Target:        checkout.LevelReview,
		Levels:        []checkout.LevelResult{{Level: checkout.LevelStart, Name: "start", Duration: time.Second}},
		CompletionURL: "http://shop.test/user/1/orders/1",
		Duration:      time.Second,
	}, nil)

	doc := renderJUnit(t, cart, checkoutRun)
	suites := doc.FindElements("//testsuite")
	require.Len(t, suites, 2)
	assert.Equal(t, "cart", suites[0].SelectAttrValue("name", ""))
	assert.Equal(t, "unknown", suites[0].FindElement(".//failure").SelectAttrValue("type", ""))
	assert.Equal(t, "3", doc.SelectElement("testsuites").SelectAttrValue("tests", ""))

	url := suites[1].FindElement("./properties/property[@name='completion_url']")
	require.NotNil(t, url)
	assert.Equal(t, "http://shop.test/user/1/orders/1", url.SelectAttrValue("value", ""))
}

type failingWriter struct{ closed bool }

func (f *failingWriter) Write([]byte) (int, error) { return 0, io.ErrClosedPipe }
func (f *failingWriter) Close() error              { f.closed = true; return nil }

func TestJUnitWriteFailureStillCloses(t *testing.T) {
	out := &failingWriter{}
	r := NewJUnitReporter(out, "v-test")
	require.NoError(t, r.Write(NewRun("install", "run-1")))

	err := r.Close()
	assert.ErrorIs(t, err, io.ErrClosedPipe)
	assert.True(t, out.closed)
}
