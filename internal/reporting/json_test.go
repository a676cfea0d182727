// internal/reporting/json_test.go
package reporting

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/kickstart-cli/internal/checkout"
	"github.com/xkilldash9x/kickstart-cli/internal/faults"
)

func TestJSONReporter(t *testing.T) {
	formErr := faults.CheckoutFormInvalid("information")
	run := FromCheckout(&checkout.Report{
		RunID:  "run-3",
		Target: checkout.MaxLevel,
		Levels: []checkout.LevelResult{
			{Level: checkout.LevelStart, Name: "start", Duration: time.Second},
			{Level: checkout.LevelInformation, Name: "information", Duration: 2 * time.Second, Err: formErr},
		},
		Duration: 3 * time.Second,
	}, formErr)

	out := &bufferCloser{}
	r := NewJSONReporter(out, "v-test")
	require.NoError(t, r.Write(run))
	require.NoError(t, r.Write(nil))
	require.NoError(t, r.Close())

	var got jsonDocument
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, "kickstart", got.Tool)
	assert.Equal(t, "v-test", got.Version)
	require.Len(t, got.Runs, 1)

	want := []Step{
		{Name: "start", Duration: time.Second},
		{Name: "information", Duration: 2 * time.Second, Failure: &Failure{Kind: "checkout_form_invalid", Message: formErr.Error()}},
	}
	if diff := cmp.Diff(want, got.Runs[0].Steps); diff != "" {
		t.Errorf("steps mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "4", got.Runs[0].Properties["target_level"])
	require.NotNil(t, got.Runs[0].Failure)
	assert.Equal(t, "checkout_form_invalid", got.Runs[0].Failure.Kind)
}

func TestFromInstallNilReport(t *testing.T) {
	run := FromInstall(nil, faults.NoActiveInstallTask())
	assert.Equal(t, "install", run.Flow)
	assert.Empty(t, run.Steps)
	assert.True(t, run.Failed())
}
